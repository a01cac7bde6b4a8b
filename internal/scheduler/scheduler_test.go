package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/positions-dashboard/internal/models"
	"github.com/trogers1052/positions-dashboard/internal/utils"
)

type stubKeySource struct {
	since time.Time
	keys  []models.PositionKey
	err   error
}

func (s *stubKeySource) GetPositionKeysSince(_ context.Context, since time.Time) ([]models.PositionKey, error) {
	s.since = since
	return s.keys, s.err
}

type stubPrefetcher struct {
	mu    sync.Mutex
	calls [][]models.PositionKey
	done  chan struct{}
}

func (p *stubPrefetcher) PrefetchTradeOpenDates(_ context.Context, keys []models.PositionKey) error {
	p.mu.Lock()
	p.calls = append(p.calls, keys)
	p.mu.Unlock()
	if p.done != nil {
		select {
		case p.done <- struct{}{}:
		default:
		}
	}
	return nil
}

func TestPrefetchTradeOpenDates_UsesLookback(t *testing.T) {
	now := time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC)
	keys := []models.PositionKey{{Conid: "123", InternalAccountID: "acct-1"}}
	source := &stubKeySource{keys: keys}
	prefetcher := &stubPrefetcher{}

	task := PrefetchTradeOpenDates(source, prefetcher, 24*time.Hour, func() time.Time { return now })
	require.NoError(t, task(context.Background()))

	assert.Equal(t, now.Add(-24*time.Hour), source.since)
	require.Len(t, prefetcher.calls, 1)
	assert.Equal(t, keys, prefetcher.calls[0])
}

func TestPrefetchTradeOpenDates_SkipsWhenNothingObserved(t *testing.T) {
	prefetcher := &stubPrefetcher{}
	task := PrefetchTradeOpenDates(&stubKeySource{}, prefetcher, time.Hour, time.Now)

	require.NoError(t, task(context.Background()))
	assert.Empty(t, prefetcher.calls)
}

func TestPrefetchTradeOpenDates_WrapsSourceError(t *testing.T) {
	task := PrefetchTradeOpenDates(&stubKeySource{err: errors.New("db down")}, &stubPrefetcher{}, time.Hour, time.Now)

	err := task(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list recent positions")
}

func TestTaskWithRecover_RecoversPanic(t *testing.T) {
	var rqID string
	run := taskWithRecover(func(ctx context.Context) error {
		rqID = utils.GetRequestIDFromCtx(ctx)
		panic("boom")
	}, "panicking")

	assert.NotPanics(t, func() { run(context.Background()) })
	assert.NotEmpty(t, rqID)
}

func TestScheduler_RunsIntervalJobImmediately(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	prefetcher := &stubPrefetcher{done: make(chan struct{}, 1)}
	source := &stubKeySource{keys: []models.PositionKey{{Conid: "123", InternalAccountID: "acct-1"}}}
	require.NoError(t, s.NewIntervalJob(PrefetchJobName,
		PrefetchTradeOpenDates(source, prefetcher, time.Hour, time.Now), time.Hour, true))

	s.Start()
	defer func() { require.NoError(t, s.Stop()) }()

	select {
	case <-prefetcher.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for job to run")
	}
}

func TestScheduler_RejectsZeroInterval(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Stop()

	err = s.NewIntervalJob("bad", func(context.Context) error { return nil }, 0, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create job bad")
}
