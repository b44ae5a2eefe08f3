package live

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the pub/sub channel shared by every API instance.
const DefaultChannel = "tasks:changed"

type changeEvent struct {
	Origin string    `json:"origin"`
	At     time.Time `json:"at"`
}

// Publisher announces committed writes on a Redis channel so that every
// instance, this one included, wakes its local subscribers through a Relay.
// When the publish fails the local fallback is notified instead, so watchers
// on this instance still see the write.
type Publisher struct {
	client   *redis.Client
	channel  string
	origin   string
	fallback Notifier
	logger   *zap.Logger
}

func NewPublisher(client *redis.Client, channel, origin string, fallback Notifier, logger *zap.Logger) *Publisher {
	return &Publisher{client: client, channel: channel, origin: origin, fallback: fallback, logger: logger}
}

func (p *Publisher) Notify(ctx context.Context) {
	payload, err := json.Marshal(changeEvent{Origin: p.origin, At: time.Now().UTC()})
	if err == nil {
		err = p.client.Publish(ctx, p.channel, payload).Err()
	}
	if err != nil {
		p.logger.Error("publish change event", zap.String("channel", p.channel), zap.Error(err))
		if p.fallback != nil {
			p.fallback.Notify(ctx)
		}
	}
}

// Relay forwards Redis change events into a local Broker.
type Relay struct {
	client  *redis.Client
	channel string
	target  Notifier
	logger  *zap.Logger
	backoff time.Duration

	wg     sync.WaitGroup
	stop   chan struct{}
	ready  chan struct{}
	readyO sync.Once
}

func NewRelay(client *redis.Client, channel string, target Notifier, logger *zap.Logger) *Relay {
	return &Relay{
		client:  client,
		channel: channel,
		target:  target,
		logger:  logger,
		backoff: time.Second,
		stop:    make(chan struct{}),
		ready:   make(chan struct{}),
	}
}

func (r *Relay) Start(ctx context.Context) {
	r.logger.Info("Starting change relay", zap.String("channel", r.channel))
	r.wg.Add(1)
	go r.run(ctx)
}

func (r *Relay) Stop() {
	r.logger.Info("Stopping change relay...")
	close(r.stop)
	r.wg.Wait()
	r.logger.Info("Change relay stopped")
}

// Ready is closed once the first subscription is confirmed by Redis.
func (r *Relay) Ready() <-chan struct{} {
	return r.ready
}

func (r *Relay) run(ctx context.Context) {
	defer r.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-r.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		r.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		r.logger.Error("pubsub channel closed, reconnecting", zap.String("channel", r.channel))
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.backoff):
		}
	}
}

func (r *Relay) consume(ctx context.Context) {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() == nil {
			r.logger.Error("subscribe failed", zap.String("channel", r.channel), zap.Error(err))
		}
		return
	}
	r.readyO.Do(func() { close(r.ready) })
	// Подписка могла пропустить события во время переподключения
	r.target.Notify(ctx)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev changeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.logger.Warn("unable to parse change event", zap.String("payload", msg.Payload), zap.Error(err))
				continue
			}
			r.logger.Debug("change event", zap.String("origin", ev.Origin))
			r.target.Notify(ctx)
		}
	}
}
