package strava

import "time"

// Activity is the subset of a Strava activity the importer needs
type Activity struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Type           string    `json:"type"`
	SportType      string    `json:"sport_type"`
	StartDate      time.Time `json:"start_date"`
	StartDateLocal time.Time `json:"start_date_local"`
	ElapsedTime    int       `json:"elapsed_time"` // seconds
	HasHeartrate   bool      `json:"has_heartrate"`
}

// Streams represents activity stream data from the API
// Strava returns streams keyed by type when key_by_type=true.
// Sensor dropouts arrive as null entries.
type Streams struct {
	Time           *StreamData[int]      `json:"time"`
	VelocitySmooth *StreamData[*float64] `json:"velocity_smooth"`
	Heartrate      *StreamData[*float64] `json:"heartrate"`
}

// StreamData represents a single stream type
type StreamData[T any] struct {
	Data         []T    `json:"data"`
	SeriesType   string `json:"series_type"`
	OriginalSize int    `json:"original_size"`
	Resolution   string `json:"resolution"`
}

// HasHeartrate returns true if heartrate data exists
func (s *Streams) HasHeartrate() bool {
	return s != nil && s.Heartrate != nil && len(s.Heartrate.Data) > 0
}

// HasVelocity returns true if speed data exists
func (s *Streams) HasVelocity() bool {
	return s != nil && s.VelocitySmooth != nil && len(s.VelocitySmooth.Data) > 0
}
