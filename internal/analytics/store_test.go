package analytics

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu           sync.Mutex
	intensityErr error
	frequencyErr error
	summaryErr   error
	gate         chan struct{}
	windows      []TimeRange
	calls        atomic.Int32
	waiting      atomic.Int32
}

func (f *fakeFetcher) wait() {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		f.waiting.Add(1)
		<-gate
	}
}

func (f *fakeFetcher) GetSymptomIntensity(ctx context.Context, days int) (*Intensity, error) {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.intensityErr != nil {
		return nil, f.intensityErr
	}
	return &Intensity{
		Dates: []string{"2026-03-01"},
		Symptoms: map[string]Series{
			"headache": {Name: "headache", Points: []IntensityPoint{{Date: "2026-03-01", Intensity: float64(days % 10), Occurrences: 1}}},
		},
	}, nil
}

func (f *fakeFetcher) GetSymptomFrequency(ctx context.Context, months int) ([]FrequencyItem, error) {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frequencyErr != nil {
		return nil, f.frequencyErr
	}
	return []FrequencyItem{{Symptom: "cough", Count: 1}, {Symptom: "headache", Count: months}}, nil
}

func (f *fakeFetcher) GetSymptomSummary(ctx context.Context) (*Summary, error) {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls.Add(1)
	if f.summaryErr != nil {
		return nil, f.summaryErr
	}
	return &Summary{TotalRecorded: 7, MostFrequentSymptom: "headache", MostFrequentCount: 6}, nil
}

// recordingFetcher remembers the window of every refresh
type recordingFetcher struct {
	fakeFetcher
}

func (f *recordingFetcher) GetSymptomIntensity(ctx context.Context, days int) (*Intensity, error) {
	f.mu.Lock()
	f.windows = append(f.windows, TimeRange{IntensityDays: days})
	f.mu.Unlock()
	return f.fakeFetcher.GetSymptomIntensity(ctx, days)
}

func (f *recordingFetcher) recorded() []TimeRange {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]TimeRange(nil), f.windows...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T, f Fetcher) (*Store, *fakeClock) {
	t.Helper()
	opts := DefaultOptions()
	opts.Debounce = 20 * time.Millisecond
	s := NewStore(f, opts, nil)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	s.SetClock(clock.Now)
	t.Cleanup(s.Close)
	return s, clock
}

func TestStore_RefreshAllSuccess(t *testing.T) {
	s, clock := newTestStore(t, &fakeFetcher{})

	state := s.RefreshAll(context.Background(), TimeRange{IntensityDays: 7, FrequencyMonths: 3})
	assert.False(t, state.IsLoading)
	assert.Empty(t, state.Error)
	assert.Equal(t, clock.Now(), state.LastUpdated)

	require.NotNil(t, state.Intensity)
	assert.Equal(t, "#3B82F6", state.Intensity.Symptoms["headache"].Color)
	require.Len(t, state.Frequency, 2)
	assert.Equal(t, "headache", state.Frequency[0].Symptom)
	assert.InDelta(t, 75.0, state.Frequency[0].Percentage, 0.001)
	require.NotNil(t, state.Summary)
	assert.Equal(t, 7, state.Summary.TotalRecorded)

	// the window argument does not change the selected range
	assert.Equal(t, TimeRange{IntensityDays: 30, FrequencyMonths: 6}, state.Window)
}

func TestStore_PartialFailureKeepsOtherFacets(t *testing.T) {
	f := &fakeFetcher{}
	s, clock := newTestStore(t, f)
	ctx := context.Background()

	first := s.RefreshAll(ctx, TimeRange{})
	require.NotNil(t, first.Summary)

	f.mu.Lock()
	f.summaryErr = errors.New("summary down")
	f.mu.Unlock()
	clock.Advance(time.Minute)

	state := s.RefreshAll(ctx, TimeRange{})
	assert.Equal(t, clock.Now(), state.LastUpdated)
	assert.Same(t, first.Summary, state.Summary)
	assert.NotSame(t, first.Intensity, state.Intensity)
	assert.Contains(t, state.Error, "summary")
	assert.Contains(t, state.Error, "summary down")
	assert.NotContains(t, state.Error, "intensity")
}

func TestStore_TotalFailureKeepsLastUpdated(t *testing.T) {
	boom := errors.New("offline")
	f := &fakeFetcher{intensityErr: boom, frequencyErr: boom, summaryErr: boom}
	s, _ := newTestStore(t, f)

	state := s.RefreshAll(context.Background(), TimeRange{})
	assert.True(t, state.LastUpdated.IsZero())
	assert.Nil(t, state.Intensity)
	assert.Nil(t, state.Summary)
	assert.Contains(t, state.Error, "intensity, frequency, summary")
	assert.False(t, state.IsLoading)

	s.ClearError()
	assert.Empty(t, s.State().Error)
}

func TestStore_DiscardsSupersededRefresh(t *testing.T) {
	f := &fakeFetcher{gate: make(chan struct{})}
	s, _ := newTestStore(t, f)
	ctx := context.Background()

	done := make(chan State)
	go func() { done <- s.RefreshAll(ctx, TimeRange{IntensityDays: 3}) }()
	require.Eventually(t, func() bool { return f.waiting.Load() == 3 }, time.Second, time.Millisecond)
	assert.True(t, s.State().IsLoading)

	f.mu.Lock()
	gate := f.gate
	f.gate = nil
	f.mu.Unlock()

	latest := s.RefreshAll(ctx, TimeRange{IntensityDays: 5})
	assert.Equal(t, 5.0, latest.Intensity.Symptoms["headache"].Points[0].Intensity)

	close(gate)
	<-done
	state := s.State()
	assert.Equal(t, 5.0, state.Intensity.Symptoms["headache"].Points[0].Intensity)
	assert.False(t, state.IsLoading)
}

func TestStore_SetTimeRangeDebounces(t *testing.T) {
	f := &recordingFetcher{}
	s, _ := newTestStore(t, f)

	s.SetTimeRange(7, 3)
	s.SetTimeRange(90, 12)

	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), f.calls.Load())
	assert.Equal(t, []TimeRange{{IntensityDays: 90}}, f.recorded())
	assert.Equal(t, TimeRange{IntensityDays: 90, FrequencyMonths: 12}, s.TimeRange())

	require.Eventually(t, func() bool { return len(s.State().Frequency) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 12, s.State().Frequency[0].Count)
}

func TestStore_CheckForUpdates(t *testing.T) {
	f := &fakeFetcher{}
	s, clock := newTestStore(t, f)
	ctx := context.Background()

	assert.True(t, s.CheckForUpdates(ctx), "never loaded")
	assert.Equal(t, int32(1), f.calls.Load())

	clock.Advance(10 * time.Second)
	assert.False(t, s.CheckForUpdates(ctx), "still fresh")

	clock.Advance(25 * time.Second)
	assert.True(t, s.CheckForUpdates(ctx), "stale")
	assert.Equal(t, int32(2), f.calls.Load())

	s.SetAutoRefresh(false)
	clock.Advance(time.Hour)
	assert.False(t, s.CheckForUpdates(ctx), "auto refresh off")
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestStore_SignalRefreshesInBackground(t *testing.T) {
	f := &fakeFetcher{}
	s, _ := newTestStore(t, f)

	s.Signal()
	require.Eventually(t, func() bool {
		return !s.State().LastUpdated.IsZero()
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStore_CloseStopsBackgroundRefreshes(t *testing.T) {
	f := &fakeFetcher{}
	s, _ := newTestStore(t, f)
	s.Close()

	s.Signal()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), f.calls.Load())
}
