// Package service ties the analysis pipeline to sample sources and the
// record store.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"conconi/internal/analysis"
	"conconi/internal/store"
)

// ErrNoUser is returned when a record is saved without a user
var ErrNoUser = errors.New("user is required")

// SampleSource yields the paired heart rate and speed series of one test
type SampleSource interface {
	// Describe names the source for logs and the stored record
	Describe() string
	// Load returns the samples and the recording start, zero if unknown
	Load(ctx context.Context) (analysis.Samples, time.Time, error)
}

// RecordStore persists threshold tests
type RecordStore interface {
	AppendTest(ctx context.Context, t *store.TestRecord) error
	ListTests(ctx context.Context, user string) ([]store.TestRecord, error)
	GetTest(ctx context.Context, user, date string) (*store.TestRecord, error)
	DeleteTest(ctx context.Context, user, date string) error
	UpdateTestDate(ctx context.Context, user, oldDate, newDate string) error
}

// Outcome is an analysed recording ready to be saved
type Outcome struct {
	Estimate *analysis.Estimate
	Trimmed  analysis.Samples // raw series after head/tail trimming
	Start    time.Time
	Source   string
}

// Detail is a stored test with its breakpoint located in the stored series
type Detail struct {
	Record          *store.TestRecord
	BreakpointIndex int
}

// ThresholdService runs analyses and manages the test history
type ThresholdService struct {
	analyzer *analysis.Analyzer
	store    RecordStore
	log      zerolog.Logger
	now      func() time.Time
}

// NewThresholdService creates a service
func NewThresholdService(analyzer *analysis.Analyzer, records RecordStore, log zerolog.Logger) *ThresholdService {
	return &ThresholdService{
		analyzer: analyzer,
		store:    records,
		log:      log,
		now:      time.Now,
	}
}

// AnalyzeSource loads a recording and estimates its threshold
func (s *ThresholdService) AnalyzeSource(ctx context.Context, src SampleSource) (*Outcome, error) {
	log := s.log.With().Str("source", src.Describe()).Logger()

	samples, start, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", src.Describe(), err)
	}
	log.Debug().Int("samples", samples.Len()).Time("start", start).Msg("recording loaded")

	started := time.Now()
	est, err := s.analyzer.Analyze(ctx, samples)
	if err != nil {
		log.Warn().Err(err).Msg("analysis failed")
		return nil, err
	}
	log.Info().
		Float64("threshold_hr", est.ThresholdHR).
		Float64("threshold_speed", est.ThresholdSpeed).
		Str("pace", est.Pace).
		Bool("ci", est.HasCI()).
		Int("resamples", est.Resamples).
		Dur("duration", time.Since(started)).
		Msg("threshold estimated")
	if est.Warning != "" {
		log.Warn().Msg(est.Warning)
	}

	opts := s.analyzer.Options()
	return &Outcome{
		Estimate: est,
		Trimmed:  analysis.Trim(samples, opts.TrimHead, opts.TrimTail),
		Start:    start,
		Source:   src.Describe(),
	}, nil
}

// TestDate picks the date a test is filed under: the explicit date if
// given, else the recording start, else today.
func (s *ThresholdService) TestDate(explicit string, out *Outcome) string {
	switch {
	case explicit != "":
		return explicit
	case out != nil && !out.Start.IsZero():
		return out.Start.Local().Format(time.DateOnly)
	default:
		return s.now().Format(time.DateOnly)
	}
}

// Save stores an outcome for user on date
func (s *ThresholdService) Save(ctx context.Context, user, date string, out *Outcome) (*store.TestRecord, error) {
	if user == "" {
		return nil, ErrNoUser
	}
	date = s.TestDate(date, out)
	if err := store.ValidateDate(date); err != nil {
		return nil, err
	}

	est := out.Estimate
	rec := &store.TestRecord{
		User:           user,
		Date:           date,
		ThresholdHR:    est.ThresholdHR,
		ThresholdSpeed: est.ThresholdSpeed,
		Pace:           est.Pace,
		HeartRate:      out.Trimmed.HeartRate,
		Speed:          out.Trimmed.Speed,
		CILow:          est.CILow,
		CIHigh:         est.CIHigh,
		Warning:        est.Warning,
		Source:         out.Source,
	}
	if err := s.store.AppendTest(ctx, rec); err != nil {
		return nil, err
	}
	s.log.Info().Str("user", user).Str("date", date).Str("id", rec.ID).Msg("test saved")
	return rec, nil
}

// History lists the user's tests, oldest first
func (s *ThresholdService) History(ctx context.Context, user string) ([]store.TestRecord, error) {
	return s.store.ListTests(ctx, user)
}

// Detail loads one test and locates the breakpoint in its stored speed series
func (s *ThresholdService) Detail(ctx context.Context, user, date string) (*Detail, error) {
	rec, err := s.store.GetTest(ctx, user, date)
	if err != nil {
		return nil, err
	}
	return &Detail{
		Record:          rec,
		BreakpointIndex: analysis.NearestIndex(rec.Speed, rec.ThresholdSpeed),
	}, nil
}

// Delete removes one test
func (s *ThresholdService) Delete(ctx context.Context, user, date string) error {
	if err := s.store.DeleteTest(ctx, user, date); err != nil {
		return err
	}
	s.log.Info().Str("user", user).Str("date", date).Msg("test deleted")
	return nil
}

// Redate moves a test to another date
func (s *ThresholdService) Redate(ctx context.Context, user, oldDate, newDate string) error {
	if err := store.ValidateDate(newDate); err != nil {
		return err
	}
	if err := s.store.UpdateTestDate(ctx, user, oldDate, newDate); err != nil {
		return err
	}
	s.log.Info().Str("user", user).Str("from", oldDate).Str("to", newDate).Msg("test redated")
	return nil
}
