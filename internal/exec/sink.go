package exec

import (
	"net"
	"sync"

	"es-maker-bot/internal/metrics"

	"go.uber.org/zap"
)

// Sink is where the engine pushes commands. Implementations must not block:
// the engine calls Send synchronously from its event loop.
type Sink interface {
	Send(cmd OrderCommand)
}

// UDPSink delivers commands to the executor bridge as single datagrams.
// Sends are fire-and-forget; failures are counted and the engine relies on
// position/monitored-limit reconciliation to resynchronise.
type UDPSink struct {
	mu       sync.Mutex
	conn     net.Conn
	addr     string
	log      *zap.Logger
	failures metrics.Counter
}

func NewUDPSink(addr string, failures metrics.Counter, log *zap.Logger) (*UDPSink, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, err
	}
	return &UDPSink{conn: conn, addr: addr, log: log, failures: failures}, nil
}

func (s *UDPSink) Send(cmd OrderCommand) {
	wire, err := cmd.Wire()
	if err != nil {
		s.failures.Inc()
		s.log.Warn("unencodable order command", zap.String("op", string(cmd.Op)), zap.Error(err))
		return
	}
	s.mu.Lock()
	_, err = s.conn.Write([]byte(wire))
	s.mu.Unlock()
	if err != nil {
		s.failures.Inc()
		s.log.Warn("order send failed", zap.String("cmd", wire), zap.Error(err))
		return
	}
	s.log.Info("order command sent",
		zap.String("cmd", wire),
		zap.Uint64("client_id", cmd.ClientID),
		zap.String("reason", cmd.Reason),
	)
}

func (s *UDPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(cmd OrderCommand)

func (f SinkFunc) Send(cmd OrderCommand) { f(cmd) }
