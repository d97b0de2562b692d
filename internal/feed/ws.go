package feed

import (
	"context"
	"strings"
	"time"

	"es-maker-bot/internal/metrics"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// WSListener is an alternative frame source for deployments where the bridge
// is reached over a websocket relay instead of local UDP. Each text message
// carries one or more newline-separated ASCII frames in the same grammar.
type WSListener struct {
	url            string
	reconnectDelay time.Duration
	queue          *Queue
	log            *zap.Logger
	malformed      metrics.Counter
}

func NewWSListener(url string, reconnectDelay time.Duration, queue *Queue, malformed metrics.Counter, log *zap.Logger) *WSListener {
	if reconnectDelay <= 0 {
		reconnectDelay = 3 * time.Second
	}
	return &WSListener{url: url, reconnectDelay: reconnectDelay, queue: queue, log: log, malformed: malformed}
}

// Run keeps a connection open until the context is cancelled, reconnecting
// after read failures.
func (l *WSListener) Run(ctx context.Context) error {
	for {
		if err := l.readOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.log.Warn("ws feed read loop ended", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.reconnectDelay):
		}
	}
}

func (l *WSListener) readOnce(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, l.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "reset")
	l.log.Info("ws feed connected", zap.String("url", l.url))
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		l.ingest(string(data))
	}
}

func (l *WSListener) ingest(payload string) {
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
