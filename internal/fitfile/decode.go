// Package fitfile reads ramp test recordings from FIT activity files.
package fitfile

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/tormoder/fit"

	"conconi/internal/analysis"
)

// Recording is the decoded content of an activity file
type Recording struct {
	Samples analysis.Samples
	Start   time.Time // first valid record timestamp, zero if none
	Dropped int       // records without a usable heart rate or speed
}

// Decode reads an activity file and keeps the records that carry both a
// heart rate and a speed, in file order.
func Decode(r io.Reader) (*Recording, error) {
	decoded, err := fit.Decode(bufio.NewReader(r))
	if err != nil {
		return nil, fmt.Errorf("decode FIT file: %w", err)
	}

	activity, err := decoded.Activity()
	if err != nil {
		return nil, fmt.Errorf("activity FIT expected: %w", err)
	}

	rec := &Recording{
		Samples: analysis.Samples{
			HeartRate: make([]float64, 0, len(activity.Records)),
			Speed:     make([]float64, 0, len(activity.Records)),
		},
	}
	for _, msg := range activity.Records {
		if msg == nil {
			continue
		}
		hr, okHR := extractHeartRate(msg)
		speed, okSpeed := extractSpeed(msg)
		if !okHR || !okSpeed {
			rec.Dropped++
			continue
		}
		if rec.Start.IsZero() && !msg.Timestamp.IsZero() && !fit.IsBaseTime(msg.Timestamp) {
			rec.Start = msg.Timestamp
		}
		rec.Samples.HeartRate = append(rec.Samples.HeartRate, hr)
		rec.Samples.Speed = append(rec.Samples.Speed, speed)
	}

	return rec, nil
}

// DecodeFile decodes the activity file at path
func DecodeFile(path string) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open FIT file: %w", err)
	}
	defer f.Close()

	return Decode(f)
}

// Source loads samples from a FIT file on disk
type Source struct {
	Path string
	Log  zerolog.Logger
}

// Describe names the source for logs and stored records
func (s Source) Describe() string {
	return filepath.Base(s.Path)
}

// Load decodes the file
func (s Source) Load(ctx context.Context) (analysis.Samples, time.Time, error) {
	if err := ctx.Err(); err != nil {
		return analysis.Samples{}, time.Time{}, err
	}
	rec, err := DecodeFile(s.Path)
	if err != nil {
		return analysis.Samples{}, time.Time{}, err
	}
	s.Log.Debug().
		Str("file", s.Describe()).
		Int("kept", rec.Samples.Len()).
		Int("dropped", rec.Dropped).
		Msg("FIT records decoded")
	return rec.Samples, rec.Start, nil
}

func extractHeartRate(msg *fit.RecordMsg) (float64, bool) {
	if msg.HeartRate == math.MaxUint8 {
		return 0, false
	}
	return float64(msg.HeartRate), true
}

func extractSpeed(msg *fit.RecordMsg) (float64, bool) {
	speed := msg.GetEnhancedSpeedScaled()
	if isFinite(speed) && speed >= 0 {
		return speed, true
	}
	speed = msg.GetSpeedScaled()
	if isFinite(speed) && speed >= 0 {
		return speed, true
	}
	return 0, false
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
