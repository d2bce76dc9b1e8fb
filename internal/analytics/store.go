// Package analytics aggregates the patient's symptom analytics: intensity
// over time, frequency and a summary, refreshed together and colored for
// display.
package analytics

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gmsas95/carecache/internal/cache"
	apperrors "github.com/gmsas95/carecache/internal/errors"
	"github.com/gmsas95/carecache/internal/metrics"
)

const metricsStore = "analytics"

// Fetcher loads the three analytics facets from the backend
type Fetcher interface {
	GetSymptomIntensity(ctx context.Context, days int) (*Intensity, error)
	GetSymptomFrequency(ctx context.Context, months int) ([]FrequencyItem, error)
	GetSymptomSummary(ctx context.Context) (*Summary, error)
}

// Options configures a Store
type Options struct {
	Window      TimeRange
	AutoRefresh bool
	// StaleAfter is how old the data must be before CheckForUpdates refreshes
	StaleAfter time.Duration
	// Debounce delays the refresh triggered by SetTimeRange
	Debounce time.Duration
}

// DefaultOptions mirrors the configuration defaults
func DefaultOptions() Options {
	return Options{
		Window:      TimeRange{IntensityDays: 30, FrequencyMonths: 6},
		AutoRefresh: true,
		StaleAfter:  30 * time.Second,
		Debounce:    100 * time.Millisecond,
	}
}

// State is a consistent snapshot of the store
type State struct {
	Snapshot
	Window      TimeRange
	IsLoading   bool
	Error       string
	AutoRefresh bool
}

// Store holds the latest analytics snapshot. Refreshes may overlap; only the
// most recently started one applies its results.
type Store struct {
	mu          sync.RWMutex
	snap        Snapshot
	window      TimeRange
	loading     bool
	err         string
	autoRefresh bool
	staleAfter  time.Duration
	closed      bool
	seq         cache.Sequencer

	debounced func(f func())
	bg        context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	fetcher Fetcher
	clock   cache.Clock
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewStore(fetcher Fetcher, opts Options, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultOptions()
	if opts.Window.IntensityDays <= 0 {
		opts.Window.IntensityDays = defaults.Window.IntensityDays
	}
	if opts.Window.FrequencyMonths <= 0 {
		opts.Window.FrequencyMonths = defaults.Window.FrequencyMonths
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaults.Debounce
	}

	bg, cancel := context.WithCancel(context.Background())
	return &Store{
		window:      opts.Window,
		autoRefresh: opts.AutoRefresh,
		staleAfter:  opts.StaleAfter,
		debounced:   debounce.New(opts.Debounce),
		bg:          bg,
		cancel:      cancel,
		fetcher:     fetcher,
		clock:       time.Now,
		metrics:     metrics.Default(),
		logger:      logger,
	}
}

func (s *Store) SetClock(clock cache.Clock) {
	s.clock = clock
}

func (s *Store) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

type facetResult struct {
	intensity    *Intensity
	frequency    []FrequencyItem
	summary      *Summary
	intensityErr error
	frequencyErr error
	summaryErr   error
}

// RefreshAll fetches all three facets concurrently for the given window.
// Each facet that succeeds replaces its value; failed facets keep theirs.
// The error is cleared only when every facet succeeds. Zero window fields
// fall back to the current time range.
func (s *Store) RefreshAll(ctx context.Context, window TimeRange) State {
	s.mu.Lock()
	if window.IntensityDays <= 0 {
		window.IntensityDays = s.window.IntensityDays
	}
	if window.FrequencyMonths <= 0 {
		window.FrequencyMonths = s.window.FrequencyMonths
	}
	seq := s.seq.Next()
	s.loading = true
	s.mu.Unlock()

	res := s.fetchAll(ctx, window)

	s.mu.Lock()
	if !s.seq.IsLatest(seq) {
		s.mu.Unlock()
		s.logger.Debug("Discarding superseded analytics refresh", zap.Uint64("seq", seq))
		return s.State()
	}
	s.loading = false

	var failed []string
	var firstErr error
	note := func(facet string, err error) {
		failed = append(failed, facet)
		if firstErr == nil {
			firstErr = err
		}
	}
	if res.intensityErr == nil {
		colored := ColorIntensity(*res.intensity)
		s.snap.Intensity = &colored
	} else {
		note("intensity", res.intensityErr)
	}
	if res.frequencyErr == nil {
		s.snap.Frequency = Frequencies(res.frequency)
	} else {
		note("frequency", res.frequencyErr)
	}
	if res.summaryErr == nil {
		summary := *res.summary
		s.snap.Summary = &summary
	} else {
		note("summary", res.summaryErr)
	}

	if len(failed) < 3 {
		s.snap.LastUpdated = s.clock()
	}
	if len(failed) == 0 {
		s.err = ""
	} else {
		s.err = fmt.Sprintf("Failed to fetch analytics data (%s): %s",
			strings.Join(failed, ", "), apperrors.Message(firstErr))
	}
	s.mu.Unlock()

	if firstErr != nil {
		s.logger.Warn("Analytics refresh incomplete",
			zap.Strings("failed", failed),
			zap.Error(firstErr),
		)
	}
	return s.State()
}

func (s *Store) fetchAll(ctx context.Context, window TimeRange) facetResult {
	var res facetResult
	var g errgroup.Group

	g.Go(func() error {
		res.intensityErr = s.fetchFacet("intensity", func() (err error) {
			res.intensity, err = s.fetcher.GetSymptomIntensity(ctx, window.IntensityDays)
			if err == nil && res.intensity == nil {
				err = apperrors.New(apperrors.ErrServer.Code, "Failed to fetch symptom intensity")
			}
			return err
		})
		return nil
	})
	g.Go(func() error {
		res.frequencyErr = s.fetchFacet("frequency", func() (err error) {
			res.frequency, err = s.fetcher.GetSymptomFrequency(ctx, window.FrequencyMonths)
			return err
		})
		return nil
	})
	g.Go(func() error {
		res.summaryErr = s.fetchFacet("summary", func() (err error) {
			res.summary, err = s.fetcher.GetSymptomSummary(ctx)
			if err == nil && res.summary == nil {
				err = apperrors.New(apperrors.ErrServer.Code, "Failed to fetch symptom summary")
			}
			return err
		})
		return nil
	})
	_ = g.Wait()
	return res
}

func (s *Store) fetchFacet(facet string, fetch func() error) (err error) {
	done := s.metrics.StartFetch(metricsStore, facet)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s fetch panicked: %v", facet, r)
		}
		if err != nil {
			done(metrics.OutcomeFailure)
			return
		}
		done(metrics.OutcomeSuccess)
	}()
	return fetch()
}

// SetTimeRange records a new window and schedules a refresh. Calls closer
// together than the debounce delay collapse into one refresh using the
// last window.
func (s *Store) SetTimeRange(days, months int) {
	s.mu.Lock()
	if days > 0 {
		s.window.IntensityDays = days
	}
	if months > 0 {
		s.window.FrequencyMonths = months
	}
	s.mu.Unlock()

	s.debounced(func() { s.refreshInBackground("time range changed") })
}

// CheckForUpdates refreshes when auto refresh is on and the data is missing
// or older than the stale threshold. It reports whether it refreshed.
func (s *Store) CheckForUpdates(ctx context.Context) bool {
	s.mu.RLock()
	auto := s.autoRefresh
	loading := s.loading
	last := s.snap.LastUpdated
	window := s.window
	s.mu.RUnlock()

	if !auto || loading {
		return false
	}
	if !last.IsZero() && s.clock().Sub(last) <= s.staleAfter {
		return false
	}
	s.RefreshAll(ctx, window)
	return true
}

// Signal asks for a background refresh with the current window. It returns
// immediately.
func (s *Store) Signal() {
	s.refreshInBackground("signal")
}

func (s *Store) refreshInBackground(reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	window := s.window
	s.mu.Unlock()

	s.logger.Debug("Background analytics refresh", zap.String("reason", reason))
	go func() {
		defer s.wg.Done()
		s.RefreshAll(s.bg, window)
	}()
}

func (s *Store) ClearError() {
	s.mu.Lock()
	s.err = ""
	s.mu.Unlock()
}

func (s *Store) SetAutoRefresh(enabled bool) {
	s.mu.Lock()
	s.autoRefresh = enabled
	s.mu.Unlock()
}

func (s *Store) TimeRange() TimeRange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.window
}

// State returns a snapshot. Facet values are shared and must be treated as
// read-only.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		Snapshot:    s.snap,
		Window:      s.window,
		IsLoading:   s.loading,
		Error:       s.err,
		AutoRefresh: s.autoRefresh,
	}
}

// Close stops accepting background refreshes, cancels those in flight and
// waits for them to finish.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}
