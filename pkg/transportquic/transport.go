// Package transportquic ships DL flits between two endpoints over a
// QUIC stream: fixed-size 640-byte frames need no length prefix, so
// the read loop here is a flat io.ReadFull on dl.FlitBytes rather than
// the variable-length framing a byte-stream transport would need.
package transportquic

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/rosslwheeler/ualink-go/pkg/dl"
)

// ConnectionStateListener is notified of connection lifecycle events.
type ConnectionStateListener interface {
	OnConnectionEstablished()
	OnConnectionLost()
}

// Stats tracks wire-level traffic for a Transport.
type Stats struct {
	FlitsSent     uint64
	FlitsReceived uint64
	WriteErrors   uint64
	ReadErrors    uint64
	Connects      uint64
	Disconnects   uint64
}

// Config configures a Transport.
type Config struct {
	Address        string // "host:port"
	IsServer       bool   // true = listen, false = dial
	ReconnectDelay time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	TLSConfig      *tls.Config // nil generates a self-signed cert
}

// Transport carries dl.Flit wire frames over a single QUIC stream,
// reconnecting automatically on the client side.
type Transport struct {
	connection *quic.Conn
	stream     *quic.Stream
	connLock   sync.RWMutex
	streamLock sync.RWMutex

	address        string
	isServer       bool
	reconnectDelay time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	tlsConfig      *tls.Config
	listener       *quic.Listener

	stateListener     ConnectionStateListener
	stateListenerLock sync.RWMutex

	stats struct {
		flitsSent     atomic.Uint64
		flitsReceived atomic.Uint64
		writeErrors   atomic.Uint64
		readErrors    atomic.Uint64
		connects      atomic.Uint64
		disconnects   atomic.Uint64
	}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New establishes a Transport: a server listens for the first
// connection, a client dials immediately and reconnects in the
// background if the connection drops.
func New(cfg Config) (*Transport, error) {
	if cfg.Address == "" {
		return nil, errors.New("transportquic: address is required")
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	tlsConfig := cfg.TLSConfig
	if tlsConfig == nil {
		var err error
		tlsConfig, err = generateTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("transportquic: generate tls config: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		address:        cfg.Address,
		isServer:       cfg.IsServer,
		reconnectDelay: cfg.ReconnectDelay,
		readTimeout:    cfg.ReadTimeout,
		writeTimeout:   cfg.WriteTimeout,
		tlsConfig:      tlsConfig,
		ctx:            ctx,
		cancel:         cancel,
	}

	var err error
	if cfg.IsServer {
		err = t.startServer()
	} else {
		err = t.connect()
	}
	if err != nil {
		cancel()
		return nil, err
	}
	return t, nil
}

// generateTLSConfig self-signs a one-year certificate, the way a
// local demo harness stands up QUIC without operator-supplied
// material.
func generateTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates:       []tls.Certificate{tlsCert},
		NextProtos:         []string{"ualink-quic"},
		InsecureSkipVerify: true,
	}, nil
}

func (t *Transport) startServer() error {
	udpAddr, err := net.ResolveUDPAddr("udp", t.address)
	if err != nil {
		return fmt.Errorf("transportquic: resolve %s: %w", t.address, err)
	}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("transportquic: listen on %s: %w", t.address, err)
	}
	listener, err := quic.Listen(udpConn, t.tlsConfig, nil)
	if err != nil {
		udpConn.Close()
		return fmt.Errorf("transportquic: quic listen: %w", err)
	}
	t.listener = listener

	t.wg.Add(1)
	go t.acceptLoop()
	return nil
}

func (t *Transport) acceptLoop() {
	defer t.wg.Done()
	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}

		conn, err := t.listener.Accept(t.ctx)
		if err != nil {
			if t.closed.Load() {
				return
			}
			continue
		}

		t.connLock.Lock()
		hadConnection := t.connection != nil
		if t.connection != nil {
			t.connection.CloseWithError(0, "new connection")
			t.stats.disconnects.Add(1)
		}
		t.connection = conn
		t.stats.connects.Add(1)
		t.connLock.Unlock()

		t.wg.Add(1)
		go t.acceptStream(conn, hadConnection)
	}
}

func (t *Transport) acceptStream(conn *quic.Conn, hadConnection bool) {
	defer t.wg.Done()
	stream, err := conn.AcceptStream(t.ctx)
	if err != nil {
		return
	}
	t.streamLock.Lock()
	if t.stream != nil {
		t.stream.Close()
	}
	t.stream = stream
	t.streamLock.Unlock()

	if hadConnection {
		t.notifyConnectionLost()
	}
	t.notifyConnectionEstablished()
}

// dialStream resolves a fresh local socket, dials the remote address, and
// opens the single stream a Transport carries flits over. Both the initial
// client connect and every reconnect attempt go through this one path, so
// the dial/open-stream error handling only needs to live in one place.
func (t *Transport) dialStream() (*quic.Conn, *quic.Stream, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", "0.0.0.0:0")
	if err != nil {
		return nil, nil, fmt.Errorf("transportquic: resolve local address: %w", err)
	}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("transportquic: open udp socket: %w", err)
	}
	remoteAddr, err := net.ResolveUDPAddr("udp", t.address)
	if err != nil {
		udpConn.Close()
		return nil, nil, fmt.Errorf("transportquic: resolve remote %s: %w", t.address, err)
	}
	conn, err := quic.Dial(t.ctx, udpConn, remoteAddr, t.tlsConfig, nil)
	if err != nil {
		udpConn.Close()
		return nil, nil, fmt.Errorf("transportquic: dial %s: %w", t.address, err)
	}
	stream, err := conn.OpenStreamSync(t.ctx)
	if err != nil {
		conn.CloseWithError(0, "open stream failed")
		return nil, nil, fmt.Errorf("transportquic: open stream: %w", err)
	}
	return conn, stream, nil
}

func (t *Transport) connect() error {
	conn, stream, err := t.dialStream()
	if err != nil {
		return err
	}

	t.connLock.Lock()
	t.connection = conn
	t.stats.connects.Add(1)
	t.connLock.Unlock()

	t.streamLock.Lock()
	t.stream = stream
	t.streamLock.Unlock()

	t.notifyConnectionEstablished()

	t.wg.Add(1)
	go t.reconnectLoop()
	return nil
}

func (t *Transport) reconnectLoop() {
	defer t.wg.Done()
	for {
		select {
		case <-t.ctx.Done():
			return
		case <-time.After(1 * time.Second):
			t.connLock.RLock()
			conn := t.connection
			t.connLock.RUnlock()
			if conn != nil && conn.Context().Err() == nil {
				continue
			}

			select {
			case <-t.ctx.Done():
				return
			case <-time.After(t.reconnectDelay):
			}

			newConn, stream, err := t.dialStream()
			if err != nil {
				continue
			}

			t.connLock.Lock()
			if t.connection != nil {
				t.connection.CloseWithError(0, "reconnecting")
			}
			t.connection = newConn
			t.stats.connects.Add(1)
			t.connLock.Unlock()

			t.streamLock.Lock()
			if t.stream != nil {
				t.stream.Close()
			}
			t.stream = stream
			t.streamLock.Unlock()

			t.notifyConnectionEstablished()
		}
	}
}

// SendFlit writes one DL flit's wire bytes to the stream.
func (t *Transport) SendFlit(ctx context.Context, flit dl.Flit) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.ctx.Done():
		return errors.New("transportquic: transport closed")
	default:
	}

	t.streamLock.RLock()
	stream := t.stream
	t.streamLock.RUnlock()
	if stream == nil {
		t.stats.writeErrors.Add(1)
		return errors.New("transportquic: no stream")
	}

	if t.writeTimeout > 0 {
		stream.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}

	if _, err := stream.Write(flit.Bytes()); err != nil {
		t.handleWriteError()
		return err
	}
	t.stats.flitsSent.Add(1)
	return nil
}

// ReceiveFlit blocks until one complete DL flit arrives on the stream.
func (t *Transport) ReceiveFlit(ctx context.Context) (dl.Flit, error) {
	for {
		select {
		case <-ctx.Done():
			return dl.Flit{}, ctx.Err()
		case <-t.ctx.Done():
			return dl.Flit{}, errors.New("transportquic: transport closed")
		default:
		}

		var stream *quic.Stream
		for {
			t.streamLock.RLock()
			stream = t.stream
			t.streamLock.RUnlock()
			if stream != nil {
				break
			}
			select {
			case <-time.After(100 * time.Millisecond):
				continue
			case <-ctx.Done():
				return dl.Flit{}, ctx.Err()
			case <-t.ctx.Done():
				return dl.Flit{}, errors.New("transportquic: transport closed")
			}
		}

		if t.readTimeout > 0 {
			stream.SetReadDeadline(time.Now().Add(t.readTimeout))
		}

		buf := make([]byte, dl.FlitBytes)
		if _, err := io.ReadFull(stream, buf); err != nil {
			t.handleReadError()
			continue
		}

		flit, err := dl.FlitFromBytes(buf)
		if err != nil {
			t.stats.readErrors.Add(1)
			continue
		}
		t.stats.flitsReceived.Add(1)
		return flit, nil
	}
}

func (t *Transport) handleReadError() {
	t.stats.readErrors.Add(1)
	t.dropConnection("read error")
}

func (t *Transport) handleWriteError() {
	t.stats.writeErrors.Add(1)
	t.dropConnection("write error")
}

func (t *Transport) dropConnection(reason string) {
	t.streamLock.Lock()
	if t.stream != nil {
		t.stream.Close()
		t.stream = nil
	}
	t.streamLock.Unlock()

	t.connLock.Lock()
	hadConnection := t.connection != nil
	if t.connection != nil {
		t.connection.CloseWithError(0, reason)
		t.stats.disconnects.Add(1)
		t.connection = nil
	}
	t.connLock.Unlock()

	if hadConnection {
		t.notifyConnectionLost()
	}
}

// Close tears down the transport and unblocks any pending Send/Receive.
func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	t.cancel()
	if t.listener != nil {
		t.listener.Close()
	}

	t.streamLock.Lock()
	if t.stream != nil {
		t.stream.Close()
		t.stream = nil
	}
	t.streamLock.Unlock()

	t.connLock.Lock()
	if t.connection != nil {
		t.connection.CloseWithError(0, "transport closed")
		t.stats.disconnects.Add(1)
		t.connection = nil
	}
	t.connLock.Unlock()

	t.wg.Wait()
	return nil
}

// Statistics returns a snapshot of wire-level counters.
func (t *Transport) Statistics() Stats {
	return Stats{
		FlitsSent:     t.stats.flitsSent.Load(),
		FlitsReceived: t.stats.flitsReceived.Load(),
		WriteErrors:   t.stats.writeErrors.Load(),
		ReadErrors:    t.stats.readErrors.Load(),
		Connects:      t.stats.connects.Load(),
		Disconnects:   t.stats.disconnects.Load(),
	}
}

// IsConnected reports whether an active QUIC connection is present.
func (t *Transport) IsConnected() bool {
	t.connLock.RLock()
	defer t.connLock.RUnlock()
	return t.connection != nil && t.connection.Context().Err() == nil
}

// LocalAddr returns the local address of the active connection, or nil.
func (t *Transport) LocalAddr() net.Addr {
	t.connLock.RLock()
	defer t.connLock.RUnlock()
	if t.connection != nil {
		return t.connection.LocalAddr()
	}
	return nil
}

// RemoteAddr returns the remote address of the active connection, or nil.
func (t *Transport) RemoteAddr() net.Addr {
	t.connLock.RLock()
	defer t.connLock.RUnlock()
	if t.connection != nil {
		return t.connection.RemoteAddr()
	}
	return nil
}

// SetConnectionStateListener installs listener for connect/disconnect
// notifications.
func (t *Transport) SetConnectionStateListener(listener ConnectionStateListener) {
	t.stateListenerLock.Lock()
	defer t.stateListenerLock.Unlock()
	t.stateListener = listener
}

func (t *Transport) notifyConnectionEstablished() {
	t.stateListenerLock.RLock()
	listener := t.stateListener
	t.stateListenerLock.RUnlock()
	if listener != nil {
		listener.OnConnectionEstablished()
	}
}

func (t *Transport) notifyConnectionLost() {
	t.stateListenerLock.RLock()
	listener := t.stateListener
	t.stateListenerLock.RUnlock()
	if listener != nil {
		listener.OnConnectionLost()
	}
}
