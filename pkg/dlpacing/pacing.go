// Package dlpacing models transmit pacing and receive backpressure as
// pluggable function hooks around the DL flit path, the way a host
// would throttle or drop flits under rate limits without the DL layer
// itself knowing the policy.
package dlpacing

// Decision is the outcome of a Tx pacing check.
type Decision int

const (
	Allow Decision = iota
	Throttle
	Drop
)

// TxPacingFunc decides whether a flit carrying flitCount TL flits and
// totalBytes bytes may be transmitted now.
type TxPacingFunc func(flitCount, totalBytes int) Decision

// RxRateFunc is notified as each flit is received, with whether its CRC
// verified, so a host can adapt receive-side behavior or signal
// backpressure.
type RxRateFunc func(flitCount, totalBytes int, crcValid bool)

// Controller holds an optional Tx pacing hook and an optional Rx rate
// hook; with neither set, every transmission is allowed and every
// receive notification is a no-op.
type Controller struct {
	tx TxPacingFunc
	rx RxRateFunc
}

// NewController returns a Controller with no callbacks installed.
func NewController() *Controller { return &Controller{} }

// SetTxCallback installs (or, passed nil, clears) the Tx pacing hook.
func (c *Controller) SetTxCallback(fn TxPacingFunc) { c.tx = fn }

// SetRxCallback installs (or, passed nil, clears) the Rx rate hook.
func (c *Controller) SetRxCallback(fn RxRateFunc) { c.rx = fn }

// ClearCallbacks removes both hooks.
func (c *Controller) ClearCallbacks() {
	c.tx = nil
	c.rx = nil
}

// HasTxCallback reports whether a Tx pacing hook is installed.
func (c *Controller) HasTxCallback() bool { return c.tx != nil }

// HasRxCallback reports whether an Rx rate hook is installed.
func (c *Controller) HasRxCallback() bool { return c.rx != nil }

// CheckTxPacing consults the Tx pacing hook, defaulting to Allow when
// none is installed.
func (c *Controller) CheckTxPacing(flitCount, totalBytes int) Decision {
	if c.tx != nil {
		return c.tx(flitCount, totalBytes)
	}
	return Allow
}

// NotifyRx informs the Rx rate hook of a received flit.
func (c *Controller) NotifyRx(flitCount, totalBytes int, crcValid bool) {
	if c.rx != nil {
		c.rx(flitCount, totalBytes, crcValid)
	}
}

// SimpleTxRateLimiter allows up to maxFlitsPerWindow TL flits per
// window; the caller resets the window on its own timer tick.
type SimpleTxRateLimiter struct {
	maxFlitsPerWindow int
	windowCount       int
}

// NewSimpleTxRateLimiter returns a limiter bounding each window to
// maxFlitsPerWindow flits.
func NewSimpleTxRateLimiter(maxFlitsPerWindow int) *SimpleTxRateLimiter {
	return &SimpleTxRateLimiter{maxFlitsPerWindow: maxFlitsPerWindow}
}

// Check is a TxPacingFunc: it throttles once the window's flit budget
// would be exceeded, otherwise admits and accounts the flits.
func (l *SimpleTxRateLimiter) Check(flitCount, _ int) Decision {
	if l.windowCount+flitCount > l.maxFlitsPerWindow {
		return Throttle
	}
	l.windowCount += flitCount
	return Allow
}

// ResetWindow zeroes the window's flit count.
func (l *SimpleTxRateLimiter) ResetWindow() { l.windowCount = 0 }

// WindowCount returns the flits admitted in the current window.
func (l *SimpleTxRateLimiter) WindowCount() int { return l.windowCount }

// ByteBasedRateLimiter allows up to maxBytesPerWindow bytes per window.
type ByteBasedRateLimiter struct {
	maxBytesPerWindow int
	windowBytes       int
}

// NewByteBasedRateLimiter returns a limiter bounding each window to
// maxBytesPerWindow bytes.
func NewByteBasedRateLimiter(maxBytesPerWindow int) *ByteBasedRateLimiter {
	return &ByteBasedRateLimiter{maxBytesPerWindow: maxBytesPerWindow}
}

// Check is a TxPacingFunc: it throttles once the window's byte budget
// would be exceeded, otherwise admits and accounts the bytes.
func (l *ByteBasedRateLimiter) Check(_ int, totalBytes int) Decision {
	if l.windowBytes+totalBytes > l.maxBytesPerWindow {
		return Throttle
	}
	l.windowBytes += totalBytes
	return Allow
}

// ResetWindow zeroes the window's byte count.
func (l *ByteBasedRateLimiter) ResetWindow() { l.windowBytes = 0 }

// WindowBytes returns the bytes admitted in the current window.
func (l *ByteBasedRateLimiter) WindowBytes() int { return l.windowBytes }

// RxBackpressureTracker tracks a receive buffer's simulated occupancy
// and signals backpressure at 75% capacity.
type RxBackpressureTracker struct {
	bufferCapacity        int
	currentOccupancy      int
	backpressureThreshold int
}

// NewRxBackpressureTracker returns a tracker over a buffer of the given
// capacity, with the backpressure threshold fixed at 3/4 capacity.
func NewRxBackpressureTracker(bufferCapacity int) *RxBackpressureTracker {
	return &RxBackpressureTracker{
		bufferCapacity:        bufferCapacity,
		backpressureThreshold: (bufferCapacity * 3) / 4,
	}
}

// Notify is an RxRateFunc: it accounts flitCount more flits into the
// buffer, capped at capacity.
func (r *RxBackpressureTracker) Notify(flitCount, _ int, _ bool) {
	r.currentOccupancy += flitCount
	if r.currentOccupancy > r.bufferCapacity {
		r.currentOccupancy = r.bufferCapacity
	}
}

// ShouldSignalBackpressure reports whether occupancy has reached the
// backpressure threshold.
func (r *RxBackpressureTracker) ShouldSignalBackpressure() bool {
	return r.currentOccupancy >= r.backpressureThreshold
}

// ConsumeFlits simulates processing count flits out of the buffer.
func (r *RxBackpressureTracker) ConsumeFlits(count int) {
	if count > r.currentOccupancy {
		r.currentOccupancy = 0
		return
	}
	r.currentOccupancy -= count
}

// BufferOccupancy returns the current simulated occupancy.
func (r *RxBackpressureTracker) BufferOccupancy() int { return r.currentOccupancy }

// Reset clears the tracked occupancy.
func (r *RxBackpressureTracker) Reset() { r.currentOccupancy = 0 }
