package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

// Channels emitted by the database.
const (
	ChannelJobEvents = "job_events"
	ChannelJobQueue  = "job_queue"
)

const pingInterval = 90 * time.Second

// Listener holds a dedicated LISTEN connection and routes notifications to
// the handler registered for their channel.
type Listener struct {
	dsn      string
	logger   zerolog.Logger
	handlers map[string]func(payload string)
}

func NewListener(dsn string, logger zerolog.Logger) *Listener {
	return &Listener{dsn: dsn, logger: logger, handlers: make(map[string]func(string))}
}

// Handle registers fn for channel. It must be called before Run.
func (l *Listener) Handle(channel string, fn func(payload string)) {
	l.handlers[channel] = fn
}

// Run listens until ctx is cancelled. The connection reconnects on its own;
// notifications sent while disconnected are lost, which the worker claim loop
// and the client polling both tolerate.
func (l *Listener) Run(ctx context.Context) error {
	pl := pq.NewListener(l.dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			l.logger.Info().Msg("listener connected")
		case pq.ListenerEventReconnected:
			l.logger.Info().Msg("listener reconnected")
		case pq.ListenerEventDisconnected:
			l.logger.Warn().Err(err).Msg("listener disconnected")
		case pq.ListenerEventConnectionAttemptFailed:
			l.logger.Warn().Err(err).Msg("listener connection attempt failed")
		}
	})
	defer pl.Close()

	for channel := range l.handlers {
		if err := pl.Listen(channel); err != nil {
			return fmt.Errorf("listen %s: %w", channel, err)
		}
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n := <-pl.Notify:
			l.dispatch(n)
		case <-ping.C:
			if err := pl.Ping(); err != nil {
				l.logger.Warn().Err(err).Msg("listener ping failed")
			}
		}
	}
}

func (l *Listener) dispatch(n *pq.Notification) {
	// nil after a reconnect
	if n == nil {
		return
	}
	fn, ok := l.handlers[n.Channel]
	if !ok {
		l.logger.Debug().Str("channel", n.Channel).Msg("notification without handler")
		return
	}
	fn(n.Extra)
}

// Signal returns a handler that performs a non-blocking send on wake.
func Signal(wake chan<- struct{}) func(string) {
	return func(string) {
		select {
		case wake <- struct{}{}:
		default:
		}
	}
}
