package history

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sealink/hub"
	"sealink/telemetry"
)

func TestEvictionKeepsMostRecent(t *testing.T) {
	s := NewStore(3)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 7; i++ {
		s.Append("temperature", base.Add(time.Duration(i)*time.Second), float64(i))
	}

	points := s.Snapshot("temperature")
	require.Len(t, points, 3)
	require.Equal(t, 4.0, points[0].Value)
	require.Equal(t, 5.0, points[1].Value)
	require.Equal(t, 6.0, points[2].Value)
	require.True(t, points[0].Time.Before(points[1].Time))
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewStore(4)
	s.Append("yaw", time.Now(), 1)

	snap := s.Snapshot("yaw")
	snap[0].Value = 999

	require.Equal(t, 1.0, s.Snapshot("yaw")[0].Value)
}

func TestSnapshotUnknownChannel(t *testing.T) {
	s := NewStore(4)
	require.Nil(t, s.Snapshot("nope"))
}

func TestChannelsAndClear(t *testing.T) {
	s := NewStore(4)
	s.Append("yaw", time.Now(), 1)
	s.Append("temperature", time.Now(), 2)
	s.Append("humidity", time.Now(), 3)

	require.Equal(t, []string{"humidity", "temperature", "yaw"}, s.Channels())

	s.Clear("yaw")
	require.Equal(t, []string{"humidity", "temperature"}, s.Channels())

	s.ClearAll()
	require.Empty(t, s.Channels())
}

func TestRecordFansOutChannels(t *testing.T) {
	s := NewStore(8)
	frame := telemetry.RawFrame{Seq: 1, Time: time.Now()}
	s.Record(telemetry.NewIMU(frame, telemetry.PortDescriptor{}, 10, -5, 0))

	require.Equal(t, []string{"pitch", "roll", "yaw"}, s.Channels())
	require.Equal(t, 10.0, s.Snapshot("yaw")[0].Value)
	require.Equal(t, -5.0, s.Snapshot("pitch")[0].Value)
}

func TestSummarize(t *testing.T) {
	s := NewStore(16)
	now := time.Now()
	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		s.Append("load", now, v)
	}

	sum, ok := s.Summarize("load")
	require.True(t, ok)
	require.Equal(t, 8, sum.Count)
	require.Equal(t, 2.0, sum.Min)
	require.Equal(t, 9.0, sum.Max)
	require.InDelta(t, 5.0, sum.Mean, 1e-9)
	require.InDelta(t, 4.5, sum.Median, 1e-9)
	require.InDelta(t, 2.138, sum.StdDev, 1e-3)

	_, ok = s.Summarize("absent")
	require.False(t, ok)
}

func TestSummarizeSinglePoint(t *testing.T) {
	s := NewStore(4)
	s.Append("x", time.Now(), 42)

	sum, ok := s.Summarize("x")
	require.True(t, ok)
	require.Equal(t, 1, sum.Count)
	require.Equal(t, 42.0, sum.Median)
	require.Equal(t, 0.0, sum.StdDev)
	require.Equal(t, 42.0, sum.P95)
}

func TestConsumeDrainsSubscription(t *testing.T) {
	h := hub.New(16, slog.Default())
	defer h.Close()

	sub, err := h.Subscribe("history", hub.LatestWins)
	require.NoError(t, err)

	s := NewStore(8)
	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		Consume(ctx, sub, s)
		close(done)
	}()

	frame := telemetry.RawFrame{Seq: 1, Time: time.Now()}
	h.Publish(telemetry.NewDHT(frame, telemetry.PortDescriptor{}, 21.5, 40))

	require.Eventually(t, func() bool {
		return len(s.Snapshot("temperature")) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop on context cancel")
	}
}
