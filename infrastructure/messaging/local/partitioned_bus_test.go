package local

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"postservice/application/ports"
	"postservice/domain/events"
)

type recordingHandler struct {
	mu        sync.Mutex
	seen      map[string][]string
	failFirst map[string]int
}

func (h *recordingHandler) Handle(_ context.Context, e events.PostEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failFirst[e.GetEventID()] > 0 {
		h.failFirst[e.GetEventID()]--
		return ports.ErrLockNotAcquired
	}
	h.seen[e.PartitionKey()] = append(h.seen[e.PartitionKey()], e.GetEventID())
	return nil
}

func TestPartitionedBus_KeepsPerPostOrder(t *testing.T) {
	handler := &recordingHandler{seen: map[string][]string{}, failFirst: map[string]int{}}
	bus := NewPartitionedBus(handler, Config{Workers: 3, RetryBackoff: time.Millisecond}, zap.NewNop())

	want := map[string][]string{}
	for i := 0; i < 50; i++ {
		for _, post := range []string{"p1", "p2", "p3", "p4"} {
			e := events.NewPostViewed(post, "u", time.Unix(int64(i), 0))
			if i == 10 {
				handler.mu.Lock()
				handler.failFirst[e.GetEventID()] = 2
				handler.mu.Unlock()
			}
			want[post] = append(want[post], e.GetEventID())
			require.NoError(t, bus.Publish(context.Background(), e))
		}
	}
	bus.Close()

	assert.Equal(t, want, handler.seen)
}

func TestPartitionedBus_RejectsAfterClose(t *testing.T) {
	bus := NewPartitionedBus(&recordingHandler{seen: map[string][]string{}}, DefaultConfig(), zap.NewNop())
	bus.Close()
	bus.Close()

	err := bus.Publish(context.Background(), events.NewPostViewed("p1", "u", time.Now()))
	assert.ErrorIs(t, err, ErrBusClosed)
}
