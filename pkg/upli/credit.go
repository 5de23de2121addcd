package upli

import "fmt"

// MaxVirtualChannels is the number of virtual channels a port's credit
// pool tracks independently when not using pooled credits.
const MaxVirtualChannels = 4

// DefaultCreditsPerVC is the per-VC credit count a port starts with
// unless configured otherwise.
const DefaultCreditsPerVC = 16

// DefaultPoolCredits is the pooled credit count a port starts with when
// UsePool is set.
const DefaultPoolCredits = 32

// VcCreditConfig configures one virtual channel's initial credit count.
type VcCreditConfig struct {
	InitialCredits int
	Enabled        bool
}

// PortCreditConfig configures one port: either per-VC credits or a
// single pooled count shared across all VCs.
type PortCreditConfig struct {
	VcConfig    [MaxVirtualChannels]VcCreditConfig
	PoolCredits int
	UsePool     bool
}

// DefaultPortCreditConfig returns the configuration a port starts with
// before any explicit Configure call.
func DefaultPortCreditConfig() PortCreditConfig {
	cfg := PortCreditConfig{PoolCredits: DefaultPoolCredits}
	for i := range cfg.VcConfig {
		cfg.VcConfig[i] = VcCreditConfig{InitialCredits: DefaultCreditsPerVC, Enabled: true}
	}
	return cfg
}

// CreditStats tracks credit traffic for one virtual channel.
type CreditStats struct {
	CreditsConsumed  int
	CreditsReturned  int
	CreditsAvailable int
	SendBlockedCount int
}

type vcCreditState struct {
	availableCredits int
	initialCredits   int
	initDone         bool
	stats            CreditStats
}

type portCreditState struct {
	vcState       [MaxVirtualChannels]vcCreditState
	poolAvailable int
	poolInitial   int
	usePool       bool
	portInitDone  bool
}

// CreditManager gates sends on credit-based flow control, tracked
// independently per port and, unless a port uses pooled credits, per
// virtual channel.
type CreditManager struct {
	portState  [MaxPorts]portCreditState
	portConfig [MaxPorts]PortCreditConfig
}

// NewCreditManager returns a CreditManager with every port at its
// default configuration; call InitializeCredits to make credits
// available.
func NewCreditManager() *CreditManager {
	m := &CreditManager{}
	for i := range m.portConfig {
		m.portConfig[i] = DefaultPortCreditConfig()
	}
	return m
}

func (m *CreditManager) validatePortVc(portId, vc uint8) error {
	if int(portId) >= MaxPorts {
		return fmt.Errorf("upli: port_id %d out of range", portId)
	}
	if int(vc) >= MaxVirtualChannels {
		return fmt.Errorf("upli: vc %d out of range", vc)
	}
	return nil
}

// ConfigurePort replaces port portId's configuration. Credits must be
// re-initialized via InitializeCredits before they take effect.
func (m *CreditManager) ConfigurePort(portId uint8, cfg PortCreditConfig) error {
	if int(portId) >= MaxPorts {
		return fmt.Errorf("upli: port_id %d out of range", portId)
	}
	m.portConfig[portId] = cfg
	return nil
}

// Reset clears all port state back to uninitialized, configuration
// untouched.
func (m *CreditManager) Reset() {
	m.portState = [MaxPorts]portCreditState{}
}

// InitializeCredits applies each port's configuration, making its
// credits available.
func (m *CreditManager) InitializeCredits() {
	for i := 0; i < MaxPorts; i++ {
		cfg := m.portConfig[i]
		state := &m.portState[i]
		state.usePool = cfg.UsePool
		if cfg.UsePool {
			state.poolInitial = cfg.PoolCredits
			state.poolAvailable = cfg.PoolCredits
		} else {
			for vc := 0; vc < MaxVirtualChannels; vc++ {
				if cfg.VcConfig[vc].Enabled {
					state.vcState[vc].initialCredits = cfg.VcConfig[vc].InitialCredits
					state.vcState[vc].availableCredits = cfg.VcConfig[vc].InitialCredits
					state.vcState[vc].initDone = true
				}
			}
		}
		state.portInitDone = true
	}
}

// HasCredit reports whether port portId has an available credit on vc
// (or in its pool, if pooled).
func (m *CreditManager) HasCredit(portId, vc uint8) bool {
	if err := m.validatePortVc(portId, vc); err != nil {
		return false
	}
	state := &m.portState[portId]
	if !state.portInitDone {
		return false
	}
	if state.usePool {
		return state.poolAvailable > 0
	}
	return state.vcState[vc].initDone && state.vcState[vc].availableCredits > 0
}

// ConsumeCredit consumes one credit on port portId / vc if available,
// reporting whether it succeeded. A failed consume increments the VC's
// SendBlockedCount (pooled ports track no per-VC stats).
func (m *CreditManager) ConsumeCredit(portId, vc uint8) bool {
	if !m.HasCredit(portId, vc) {
		if int(portId) < MaxPorts && int(vc) < MaxVirtualChannels {
			state := &m.portState[portId]
			if !state.usePool {
				state.vcState[vc].stats.SendBlockedCount++
			}
		}
		return false
	}
	state := &m.portState[portId]
	if state.usePool {
		state.poolAvailable--
		return true
	}
	state.vcState[vc].availableCredits--
	state.vcState[vc].stats.CreditsConsumed++
	state.vcState[vc].stats.CreditsAvailable = state.vcState[vc].availableCredits
	return true
}

// ReturnCredits credits count credits back to port portId / vc,
// clamped at the VC's (or pool's) initial credit count.
func (m *CreditManager) ReturnCredits(portId, vc uint8, count int) error {
	if err := m.validatePortVc(portId, vc); err != nil {
		return err
	}
	state := &m.portState[portId]
	if state.usePool {
		state.poolAvailable += count
		if state.poolAvailable > state.poolInitial {
			state.poolAvailable = state.poolInitial
		}
		return nil
	}
	state.vcState[vc].availableCredits += count
	if state.vcState[vc].availableCredits > state.vcState[vc].initialCredits {
		state.vcState[vc].availableCredits = state.vcState[vc].initialCredits
	}
	state.vcState[vc].stats.CreditsReturned += count
	state.vcState[vc].stats.CreditsAvailable = state.vcState[vc].availableCredits
	return nil
}

// ProcessCreditReturn applies a received CreditReturn message,
// returning credits to whichever ports/VCs it names.
func (m *CreditManager) ProcessCreditReturn(credits CreditReturn) {
	for i := 0; i < MaxPorts; i++ {
		p := credits.Ports[i]
		if !p.Valid {
			continue
		}
		creditCount := int(p.CreditNum) + 1
		state := &m.portState[i]
		if p.Pool {
			state.poolAvailable += creditCount
			if state.poolAvailable > state.poolInitial {
				state.poolAvailable = state.poolInitial
			}
		} else if int(p.Vc) < MaxVirtualChannels {
			vc := p.Vc
			state.vcState[vc].availableCredits += creditCount
			if state.vcState[vc].availableCredits > state.vcState[vc].initialCredits {
				state.vcState[vc].availableCredits = state.vcState[vc].initialCredits
			}
			state.vcState[vc].stats.CreditsReturned += creditCount
			state.vcState[vc].stats.CreditsAvailable = state.vcState[vc].availableCredits
		}
		if p.InitDone {
			state.portInitDone = true
		}
	}
}

// GenerateCreditReturn builds a credit-return message for VCs that have
// consumed credits, one VC per port per call, or (false) if nothing has
// been consumed anywhere.
func (m *CreditManager) GenerateCreditReturn() (CreditReturn, bool) {
	var out CreditReturn
	hasCredits := false
	for i := 0; i < MaxPorts; i++ {
		state := &m.portState[i]
		if !state.portInitDone {
			continue
		}
		out.Ports[i].InitDone = true
		if state.usePool {
			continue
		}
		for vc := 0; vc < MaxVirtualChannels; vc++ {
			consumed := state.vcState[vc].stats.CreditsConsumed
			if consumed <= 0 {
				continue
			}
			toReturn := consumed
			if toReturn > 4 {
				toReturn = 4
			}
			out.Ports[i].Valid = true
			out.Ports[i].Pool = false
			out.Ports[i].Vc = uint8(vc)
			out.Ports[i].CreditNum = uint8(toReturn - 1)
			hasCredits = true
			break
		}
	}
	if !hasCredits {
		return CreditReturn{}, false
	}
	return out, true
}

// GetAvailableCredits returns the credit count currently available to
// port portId / vc (or the port's pool, if pooled).
func (m *CreditManager) GetAvailableCredits(portId, vc uint8) int {
	if err := m.validatePortVc(portId, vc); err != nil {
		return 0
	}
	state := &m.portState[portId]
	if !state.portInitDone {
		return 0
	}
	if state.usePool {
		return state.poolAvailable
	}
	return state.vcState[vc].availableCredits
}

// IsInitialized reports whether port portId has completed credit
// initialization.
func (m *CreditManager) IsInitialized(portId uint8) bool {
	if int(portId) >= MaxPorts {
		return false
	}
	return m.portState[portId].portInitDone
}

// GetStats returns port portId / vc's credit statistics.
func (m *CreditManager) GetStats(portId, vc uint8) CreditStats {
	if err := m.validatePortVc(portId, vc); err != nil {
		return CreditStats{}
	}
	return m.portState[portId].vcState[vc].stats
}
