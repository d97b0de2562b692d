package feed

import (
	"context"
	"net"
	"strings"
	"time"

	"es-maker-bot/internal/metrics"

	"go.uber.org/zap"
)

const readTimeout = time.Second

// UDPListener consumes datagrams from the market-data bridge, splits them
// into frames and pushes decoded frames onto the queue. Malformed frames are
// counted and dropped; the loop itself never fails on bad input.
type UDPListener struct {
	addr      string
	queue     *Queue
	log       *zap.Logger
	malformed metrics.Counter
}

func NewUDPListener(addr string, queue *Queue, malformed metrics.Counter, log *zap.Logger) *UDPListener {
	return &UDPListener{addr: addr, queue: queue, log: log, malformed: malformed}
}

// Run reads datagrams until the context is cancelled.
func (l *UDPListener) Run(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", l.addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	l.log.Info("udp listener started", zap.String("addr", l.addr))

	buf := make([]byte, 65535)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return err
		}
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		l.ingest(string(buf[:n]))
	}
}

func (l *UDPListener) ingest(payload string) {
	for _, line := range strings.Split(payload, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		frame, err := Parse(line)
		if err != nil {
			l.malformed.Inc()
			continue
		}
		l.queue.Push(frame)
	}
}
