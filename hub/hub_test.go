package hub

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sealink/telemetry"
)

func sample(seq uint64) telemetry.Sample {
	return telemetry.Sample{Seq: seq, Time: time.Now(), Kind: telemetry.KindGeneric}
}

func TestBlockingDeliversAllInOrder(t *testing.T) {
	h := New(16, slog.Default())
	defer h.Close()

	sub, err := h.Subscribe("recorder", Blocking)
	require.NoError(t, err)

	for seq := uint64(1); seq <= 10; seq++ {
		h.Publish(sample(seq))
	}

	ctx := context.Background()
	for seq := uint64(1); seq <= 10; seq++ {
		got, err := sub.Next(ctx)
		require.NoError(t, err)
		require.Equal(t, seq, got.Seq)
	}
}

func TestLatestWinsSeesThirdSample(t *testing.T) {
	h := New(16, slog.Default())
	defer h.Close()

	sub, err := h.Subscribe("display", LatestWins)
	require.NoError(t, err)

	// Three samples arrive while the consumer is busy elsewhere.
	h.Publish(sample(1))
	h.Publish(sample(2))
	h.Publish(sample(3))

	got, err := sub.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(3), got.Seq)

	stats := h.Stats()
	require.Len(t, stats, 1)
	require.Equal(t, int64(2), stats[0].Dropped)
	require.Equal(t, int64(1), stats[0].Delivered)
}

func TestLatestWinsNeverBlocksPublisher(t *testing.T) {
	h := New(1, slog.Default())
	defer h.Close()

	_, err := h.Subscribe("display", LatestWins)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for seq := uint64(1); seq <= 1000; seq++ {
			h.Publish(sample(seq))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publisher blocked on an idle latest-wins consumer")
	}
}

func TestBlockingQueueFullStallsPublisher(t *testing.T) {
	h := New(1, slog.Default())
	defer h.Close()

	sub, err := h.Subscribe("recorder", Blocking)
	require.NoError(t, err)

	h.Publish(sample(1))

	released := make(chan struct{})
	go func() {
		h.Publish(sample(2))
		close(released)
	}()

	select {
	case <-released:
		t.Fatal("publish should wait while the queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	got, err := sub.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(1), got.Seq)

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("publish did not resume after the queue drained")
	}
}

func TestLatestWinsDeliveredBeforeBlockingStalls(t *testing.T) {
	h := New(1, slog.Default())
	defer h.Close()

	rec, err := h.Subscribe("recorder", Blocking)
	require.NoError(t, err)
	disp, err := h.Subscribe("display", LatestWins)
	require.NoError(t, err)

	h.Publish(sample(1))

	released := make(chan struct{})
	go func() {
		h.Publish(sample(2))
		close(released)
	}()

	// The display sees sample 2 even though the recorder queue is full
	// and the publisher is stalled.
	deadline := time.Now().Add(2 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		got, err := disp.Next(ctx)
		cancel()
		if err == nil && got.Seq == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("display never observed sample 2")
		}
	}

	select {
	case <-released:
		t.Fatal("publisher should still be stalled on the full recorder queue")
	default:
	}

	got, err := rec.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(1), got.Seq)

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("publisher never resumed")
	}
}

func TestBlockingDrainsAfterClose(t *testing.T) {
	h := New(16, slog.Default())

	sub, err := h.Subscribe("recorder", Blocking)
	require.NoError(t, err)

	h.Publish(sample(1))
	h.Publish(sample(2))
	h.Close()

	ctx := context.Background()
	got, err := sub.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), got.Seq)

	got, err = sub.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), got.Seq)

	_, err = sub.Next(ctx)
	require.ErrorIs(t, err, ErrClosed)
}

func TestNextHonorsContext(t *testing.T) {
	h := New(16, slog.Default())
	defer h.Close()

	sub, err := h.Subscribe("display", LatestWins)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = sub.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSubscribeRejectsDuplicates(t *testing.T) {
	h := New(16, slog.Default())
	defer h.Close()

	_, err := h.Subscribe("display", LatestWins)
	require.NoError(t, err)

	_, err = h.Subscribe("display", Blocking)
	require.Error(t, err)

	_, err = h.Subscribe("other", Policy("sometimes"))
	require.Error(t, err)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := New(16, slog.Default())
	defer h.Close()

	sub, err := h.Subscribe("display", LatestWins)
	require.NoError(t, err)
	sub.Close()

	h.Publish(sample(1))

	_, err = sub.Next(context.Background())
	require.ErrorIs(t, err, ErrClosed)

	require.Empty(t, h.Stats())
}
