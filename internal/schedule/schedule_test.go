package schedule_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dileep-u-k/compliance-gateway/internal/schedule"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const weeklyBiasWatch = "CRON_TZ=Europe/Amsterdam 0 7 * * MON"

func TestNextWeeklyBiasWatch(t *testing.T) {
	amsterdam, err := time.LoadLocation("Europe/Amsterdam")
	require.NoError(t, err)

	// Sunday 22 Feb 2026, 12:00 UTC.
	next, err := schedule.Next(weeklyBiasWatch, time.Date(2026, time.February, 22, 12, 0, 0, 0, time.UTC), nil)
	require.NoError(t, err)
	assert.True(t, next.Equal(time.Date(2026, time.February, 23, 7, 0, 0, 0, amsterdam)), "got %s", next)

	// Exactly at the firing time the next one is a week later.
	next, err = schedule.Next(weeklyBiasWatch, time.Date(2026, time.February, 23, 7, 0, 0, 0, amsterdam), nil)
	require.NoError(t, err)
	assert.True(t, next.Equal(time.Date(2026, time.March, 2, 7, 0, 0, 0, amsterdam)), "got %s", next)
}

func TestNextUsesLocationWithoutTZPrefix(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	next, err := schedule.Next("0 9 * * *", time.Date(2026, time.February, 28, 23, 0, 0, 0, time.UTC), tokyo)
	require.NoError(t, err)
	assert.True(t, next.Equal(time.Date(2026, time.March, 1, 9, 0, 0, 0, tokyo)), "got %s", next)
}

func TestNextRejectsBadSpec(t *testing.T) {
	_, err := schedule.Next("every monday", time.Now(), nil)
	assert.Error(t, err)
}

func TestAddAndTrigger(t *testing.T) {
	s := schedule.New(context.Background())
	defer func() { require.NoError(t, s.Stop(context.Background())) }()

	var runs atomic.Int32
	boom := errors.New("boom")
	require.NoError(t, s.Add("weekly-bias-watch", weeklyBiasWatch, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))
	require.NoError(t, s.Add("failing", "@daily", func(ctx context.Context) error { return boom }))

	assert.Error(t, s.Add("weekly-bias-watch", "@hourly", func(ctx context.Context) error { return nil }), "duplicate name")
	assert.Error(t, s.Add("bad", "every monday", func(ctx context.Context) error { return nil }))
	assert.Error(t, s.Add("nil", "@daily", nil))

	require.NoError(t, s.Trigger(context.Background(), "weekly-bias-watch"))
	assert.Equal(t, int32(1), runs.Load())
	assert.ErrorIs(t, s.Trigger(context.Background(), "failing"), boom)
	assert.ErrorIs(t, s.Trigger(context.Background(), "missing"), schedule.ErrUnknownEntry)

	entries := s.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "failing", entries[0].Name)
	assert.Equal(t, weeklyBiasWatch, entries[1].Spec)
}

func TestStartedSchedulerFiresAndRecovers(t *testing.T) {
	s := schedule.New(context.Background(), schedule.WithLocation(time.UTC))

	fired := make(chan struct{}, 4)
	require.NoError(t, s.Add("panicking", "@every 1s", func(ctx context.Context) error {
		panic("handler bug")
	}))
	require.NoError(t, s.Add("ticking", "@every 1s", func(ctx context.Context) error {
		select {
		case fired <- struct{}{}:
		default:
		}
		return nil
	}))
	s.Start()

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled job never fired")
	}
	for _, e := range s.Entries() {
		assert.False(t, e.Next.IsZero(), e.Name)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestStopCancelsRunningJobs(t *testing.T) {
	s := schedule.New(context.Background())
	started := make(chan struct{})
	require.NoError(t, s.Add("long", "@every 1s", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	s.Start()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}
