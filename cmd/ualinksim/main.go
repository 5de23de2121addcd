// Command ualinksim runs a two-sided UALink endpoint demo over a QUIC
// transport: one side listens, the other dials and issues a periodic
// sweep of read requests, the way a DNP3 master polls an outstation on
// a schedule.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rosslwheeler/ualink-go/internal/obslog"
	"github.com/rosslwheeler/ualink-go/internal/simclock"
	"github.com/rosslwheeler/ualink-go/internal/simconfig"
	"github.com/rosslwheeler/ualink-go/internal/simsched"
	"github.com/rosslwheeler/ualink-go/pkg/dl"
	"github.com/rosslwheeler/ualink-go/pkg/dlpacing"
	"github.com/rosslwheeler/ualink-go/pkg/endpoint"
	"github.com/rosslwheeler/ualink-go/pkg/transportquic"
)

func main() {
	listenAddr := flag.String("listen", "", "listen address (server mode)")
	connectAddr := flag.String("connect", "", "address to dial (client mode)")
	configPath := flag.String("config", "", "path to a simulation TOML config")
	scanInterval := flag.Duration("scan-interval", 2*time.Second, "client-mode read-request sweep interval")
	scanAddress := flag.Uint64("scan-address", 0x1000, "client-mode read-request target address")
	logLevel := flag.String("log-level", "info", "debug|info|warn|error")
	flag.Parse()

	if (*listenAddr == "") == (*connectAddr == "") {
		fmt.Fprintln(os.Stderr, "ualinksim: exactly one of -listen or -connect is required")
		os.Exit(1)
	}

	log := obslog.NewLogger("ualinksim", parseLevel(*logLevel))
	obslog.SetDefault(log)

	cfg := simconfig.DefaultSimulationConfig()
	if *configPath != "" {
		loaded, err := simconfig.Load(*configPath)
		if err != nil {
			log.Error("load config: %v", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	ep := endpoint.New(buildEndpointConfig(cfg))
	ep.SetReadCompletionCallback(func(tag uint16, status uint8, data []byte) {
		log.Info("read completion tag=%d status=%d bytes=%d", tag, status, len(data))
	})
	ep.SetWriteCompletionCallback(func(tag uint16, status uint8) {
		log.Info("write completion tag=%d status=%d", tag, status)
	})

	isServer := *listenAddr != ""
	address := *listenAddr
	if !isServer {
		address = *connectAddr
	}

	transport, err := transportquic.New(transportquic.Config{Address: address, IsServer: isServer})
	if err != nil {
		log.Error("transport init: %v", err)
		os.Exit(1)
	}
	defer transport.Close()
	transport.SetConnectionStateListener(&reconnectReplay{ep: ep, log: log})

	ep.SetTransmitCallback(func(f dl.Flit) {
		if err := transport.SendFlit(context.Background(), f); err != nil {
			log.Warn("send flit: %v", err)
		}
	})

	go receiveLoop(transport, ep, log)

	if isServer {
		log.Info("listening on %s", address)
		select {}
	}

	log.Info("connected to %s, sweeping address 0x%x every %s", address, *scanAddress, *scanInterval)
	runClientSchedule(ep, *scanAddress, *scanInterval, log)
}

// reconnectReplay replays the endpoint's whole outstanding transmit window
// after a reconnect, since the peer may have missed traffic sent during the
// outage. The very first OnConnectionEstablished is the initial connect,
// not a reconnect, so it is not a replay trigger.
type reconnectReplay struct {
	ep   *endpoint.Endpoint
	log  obslog.Logger
	seen bool
}

func (r *reconnectReplay) OnConnectionEstablished() {
	if !r.seen {
		r.seen = true
		return
	}
	if seq, ok := r.ep.OldestBufferedSeq(); ok {
		r.log.Info("transport reconnected, replaying from seq=%d", seq)
		r.ep.ReplayFrom(seq)
	}
}

func (r *reconnectReplay) OnConnectionLost() {
	r.log.Warn("transport connection lost")
}

func receiveLoop(transport *transportquic.Transport, ep *endpoint.Endpoint, log obslog.Logger) {
	ctx := context.Background()
	for {
		flit, err := transport.ReceiveFlit(ctx)
		if err != nil {
			log.Warn("receive flit: %v", err)
			return
		}
		ep.ReceiveFlit(flit)
	}
}

func runClientSchedule(ep *endpoint.Endpoint, scanAddress uint64, interval time.Duration, log obslog.Logger) {
	sched := simsched.New()
	now := time.Now()
	sched.AddPeriodic(simsched.Task{
		Name: "read-sweep",
		Run: func() {
			tag, err := ep.SendReadRequest(scanAddress, 16)
			if err != nil {
				log.Warn("send read request: %v", err)
				return
			}
			log.Debug("sent read request tag=%d at %d", tag, simclock.Now())
		},
	}, interval, now)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	statsTicker := time.NewTicker(10 * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case t := <-ticker.C:
			sched.RunDue(t)
		case <-statsTicker.C:
			stats := ep.Stats()
			log.Info("stats: tx_reads=%d rx_reads=%d retransmissions=%d",
				stats.TxReadRequests, stats.RxReadResponses, stats.Retransmissions)
		}
	}
}

func buildEndpointConfig(cfg simconfig.SimulationConfig) endpoint.Config {
	ecfg := endpoint.Config{
		EnableCrcCheck: cfg.Endpoint.EnableCrcCheck,
		EnableAckNak:   cfg.Endpoint.EnableAckNak,
		AckEveryNFlits: cfg.Endpoint.AckEveryNFlits,
	}
	if cfg.Pacing.Enabled && cfg.Pacing.MaxFlitsPerWindow > 0 {
		limiter := dlpacing.NewSimpleTxRateLimiter(cfg.Pacing.MaxFlitsPerWindow)
		ecfg.TxPacing = limiter.Check
	}
	if policy := simconfig.BuildPolicy(cfg.ErrorInjection); policy != nil {
		ecfg.ErrorPolicy = policy
	}
	return ecfg
}

func parseLevel(s string) obslog.Level {
	switch s {
	case "debug":
		return obslog.LevelDebug
	case "warn":
		return obslog.LevelWarn
	case "error":
		return obslog.LevelError
	default:
		return obslog.LevelInfo
	}
}
