package live

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	m, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)

	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	return rc
}

func waitSignal(t *testing.T, ch <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal(msg)
	}
}

func TestRelay_ForwardsPublishedChanges(t *testing.T) {
	rc := setupRedis(t)
	logger := zap.NewNop()

	broker := NewBroker()
	ch, cancel := broker.Subscribe()
	defer cancel()

	relay := NewRelay(rc, "chan", broker, logger)
	relay.Start(context.Background())
	defer relay.Stop()

	select {
	case <-relay.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not subscribe")
	}
	// Начальная синхронизация после подписки
	waitSignal(t, ch, "expected catch-up signal after subscribe")

	NewPublisher(rc, "chan", "instance-a", nil, logger).Notify(context.Background())
	waitSignal(t, ch, "expected signal after publish")
}

func TestRelay_IgnoresMalformedPayload(t *testing.T) {
	rc := setupRedis(t)
	logger := zap.NewNop()

	broker := NewBroker()
	ch, cancel := broker.Subscribe()
	defer cancel()

	relay := NewRelay(rc, "chan", broker, logger)
	relay.Start(context.Background())
	defer relay.Stop()

	<-relay.Ready()
	waitSignal(t, ch, "expected catch-up signal after subscribe")

	require.NoError(t, rc.Publish(context.Background(), "chan", "not-json").Err())
	select {
	case <-ch:
		t.Fatal("malformed payload should not notify")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestRelay_StopReturns(t *testing.T) {
	rc := setupRedis(t)

	relay := NewRelay(rc, "chan", NewBroker(), zap.NewNop())
	relay.Start(context.Background())
	<-relay.Ready()

	done := make(chan struct{})
	go func() {
		relay.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestPublisher_FallsBackWhenPublishFails(t *testing.T) {
	m := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: m.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rc.Close() })

	broker := NewBroker()
	ch, cancel := broker.Subscribe()
	defer cancel()

	publisher := NewPublisher(rc, "chan", "instance-a", broker, zap.NewNop())

	// Redis недоступен: запись все равно должна разбудить локальных подписчиков
	m.Close()
	publisher.Notify(context.Background())
	waitSignal(t, ch, "expected local signal when publish fails")
}

func TestPublisher_NoFallbackOnSuccess(t *testing.T) {
	rc := setupRedis(t)

	broker := NewBroker()
	ch, cancel := broker.Subscribe()
	defer cancel()

	NewPublisher(rc, "chan", "instance-a", broker, zap.NewNop()).Notify(context.Background())

	select {
	case <-ch:
		t.Fatal("successful publish should leave delivery to the relay")
	case <-time.After(150 * time.Millisecond):
	}
}
