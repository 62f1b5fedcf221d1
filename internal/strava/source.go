package strava

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"conconi/internal/analysis"
)

// ErrNoStreams is returned when an activity lacks heart rate or speed data
var ErrNoStreams = errors.New("activity has no heart rate or speed stream")

// StreamSource loads the heart rate and speed streams of one activity
type StreamSource struct {
	Client     *Client
	ActivityID int64
}

// Describe names the source for logs and stored records
func (s StreamSource) Describe() string {
	return fmt.Sprintf("strava:%d", s.ActivityID)
}

// Load fetches the activity start time and its streams
func (s StreamSource) Load(ctx context.Context) (analysis.Samples, time.Time, error) {
	activity, err := s.Client.GetActivity(ctx, s.ActivityID)
	if err != nil {
		return analysis.Samples{}, time.Time{}, err
	}

	streams, err := s.Client.GetActivityStreams(ctx, s.ActivityID)
	if err != nil {
		return analysis.Samples{}, time.Time{}, err
	}
	if !streams.HasHeartrate() || !streams.HasVelocity() {
		return analysis.Samples{}, time.Time{}, fmt.Errorf("activity %d: %w", s.ActivityID, ErrNoStreams)
	}

	return PairStreams(streams), activity.StartDate, nil
}

// PairStreams aligns heart rate and speed by index. Positions where
// either sensor dropped out are skipped.
func PairStreams(streams *Streams) analysis.Samples {
	hr := streams.Heartrate.Data
	speed := streams.VelocitySmooth.Data
	n := min(len(hr), len(speed))

	out := analysis.Samples{
		HeartRate: make([]float64, 0, n),
		Speed:     make([]float64, 0, n),
	}
	for i := range n {
		if hr[i] == nil || speed[i] == nil {
			continue
		}
		h, v := *hr[i], *speed[i]
		if math.IsNaN(h) || math.IsNaN(v) {
			continue
		}
		out.HeartRate = append(out.HeartRate, h)
		out.Speed = append(out.Speed, v)
	}
	return out
}
