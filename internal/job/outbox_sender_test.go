package job

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/wholesale-market/walletd/internal/model"
	"github.com/wholesale-market/walletd/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu   sync.Mutex
	fail bool
	sent []string
}

func (p *fakePublisher) Publish(topic, key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.sent = append(p.sent, topic+"/"+key)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func addMessages(t *testing.T, store *memory.Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, store.Outbox().Create(context.Background(), &model.OutboxMessage{
			MessageKey: "TXN1", EventType: model.EventWalletCredited, Topic: "wallet-events", Payload: "{}",
		}))
	}
}

func TestProcessPendingMarksSent(t *testing.T) {
	store := memory.New()
	addMessages(t, store, 3)
	pub := &fakePublisher{}
	sender := NewOutboxSender(store.Outbox(), pub, 3, discard())

	assert.Equal(t, 3, sender.ProcessPending(context.Background()))
	assert.Equal(t, []string{"wallet-events/TXN1", "wallet-events/TXN1", "wallet-events/TXN1"}, pub.sent)

	pending, err := store.Outbox().GetPendingMessages(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestProcessPendingGivesUpAfterMaxRetries(t *testing.T) {
	store := memory.New()
	addMessages(t, store, 1)
	pub := &fakePublisher{fail: true}
	sender := NewOutboxSender(store.Outbox(), pub, 2, discard())
	ctx := context.Background()

	assert.Equal(t, 0, sender.ProcessPending(ctx))
	pending, err := store.Outbox().GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].RetryCount)

	assert.Equal(t, 0, sender.ProcessPending(ctx))
	pending, err = store.Outbox().GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "message is marked failed")
}

func TestStartStops(t *testing.T) {
	store := memory.New()
	addMessages(t, store, 2)
	pub := &fakePublisher{}
	sender := NewOutboxSender(store.Outbox(), pub, 3, discard())
	sender.interval = 5 * time.Millisecond

	done := make(chan struct{})
	go func() {
		sender.Start(context.Background())
		close(done)
	}()

	assert.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, 5*time.Millisecond)
	sender.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sender did not stop")
	}
}
