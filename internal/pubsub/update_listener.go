package pubsub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/mohamedkhairy/signal-screener/internal/storage"
	"github.com/mohamedkhairy/signal-screener/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var updateNoticesReceived = promauto.NewCounter(prometheus.CounterOpts{
	Name: "signal_update_notices_received_total",
	Help: "Total number of signal update notices received from the indicator pipeline",
})

// UpdateNotice is published after the indicator pipeline writes a batch
type UpdateNotice struct {
	Source    string    `json:"source"`
	Timeframe string    `json:"timeframe,omitempty"`
	Rows      int       `json:"rows,omitempty"`
	At        time.Time `json:"at"`
}

// UpdateListener invokes a callback for every notice on the update channel
type UpdateListener struct {
	redis    storage.RedisClient
	channel  string
	onUpdate func(ctx context.Context, notice UpdateNotice)

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewUpdateListener creates a listener on channel
func NewUpdateListener(redis storage.RedisClient, channel string, onUpdate func(ctx context.Context, notice UpdateNotice)) *UpdateListener {
	return &UpdateListener{
		redis:    redis,
		channel:  channel,
		onUpdate: onUpdate,
	}
}

// Start subscribes and processes notices until Stop or ctx cancellation
func (l *UpdateListener) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	msgs, err := l.redis.Subscribe(ctx, l.channel)
	if err != nil {
		cancel()
		return err
	}
	l.cancel = cancel

	logger.Info("Listening for signal updates", logger.String("channel", l.channel))

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for msg := range msgs {
			notice := parseNotice(msg.Message)
			updateNoticesReceived.Inc()
			logger.Debug("Received signal update notice",
				logger.String("source", notice.Source),
				logger.String("timeframe", notice.Timeframe),
			)
			l.onUpdate(ctx, notice)
		}
	}()
	return nil
}

// Stop cancels the subscription and waits for the loop to exit
func (l *UpdateListener) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
}

// parseNotice accepts JSON notices; any other payload is still an update
func parseNotice(payload string) UpdateNotice {
	var notice UpdateNotice
	if err := json.Unmarshal([]byte(payload), &notice); err != nil {
		return UpdateNotice{Source: payload}
	}
	return notice
}
