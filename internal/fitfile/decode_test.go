package fitfile

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tormoder/fit"
)

type testRecord struct {
	hr            uint8
	speed         float64 // m/s, negative leaves the field unset
	enhancedSpeed float64 // m/s, negative leaves the field unset
}

var testStart = time.Date(2024, 3, 10, 8, 30, 0, 0, time.UTC)

// buildTestFIT encodes an activity file with one record per second
func buildTestFIT(t *testing.T, records []testRecord) []byte {
	t.Helper()

	header := fit.NewHeader(fit.V20, true)
	file, err := fit.NewFile(fit.FileTypeActivity, header)
	if err != nil {
		t.Fatalf("new fit file: %v", err)
	}

	activity, err := file.Activity()
	if err != nil {
		t.Fatalf("activity accessor: %v", err)
	}

	event := fit.NewEventMsg()
	event.Timestamp = testStart
	event.Event = fit.EventTimer
	event.EventType = fit.EventTypeStart
	activity.Events = append(activity.Events, event)

	for i, r := range records {
		msg := fit.NewRecordMsg()
		msg.Timestamp = testStart.Add(time.Duration(i) * time.Second)
		msg.HeartRate = r.hr
		if r.speed >= 0 {
			msg.Speed = uint16(r.speed*1000 + 0.5)
		}
		if r.enhancedSpeed >= 0 {
			msg.EnhancedSpeed = uint32(r.enhancedSpeed*1000 + 0.5)
		}
		activity.Records = append(activity.Records, msg)
	}

	var buf bytes.Buffer
	if err := fit.Encode(&buf, file, binary.LittleEndian); err != nil {
		t.Fatalf("encode fit: %v", err)
	}
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	data := buildTestFIT(t, []testRecord{
		{hr: 120, speed: 2.5, enhancedSpeed: -1},
		{hr: 0xFF, speed: 2.6, enhancedSpeed: -1}, // no heart rate
		{hr: 124, speed: -1, enhancedSpeed: -1},   // no speed
		{hr: 126, speed: 2.8, enhancedSpeed: -1},
		{hr: 131, speed: -1, enhancedSpeed: 3.125},
	})

	rec, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, []float64{120, 126, 131}, rec.Samples.HeartRate)
	require.Len(t, rec.Samples.Speed, 3)
	assert.InDelta(t, 2.5, rec.Samples.Speed[0], 1e-9)
	assert.InDelta(t, 2.8, rec.Samples.Speed[1], 1e-9)
	assert.InDelta(t, 3.125, rec.Samples.Speed[2], 1e-9)
	assert.Equal(t, 2, rec.Dropped)
	assert.True(t, testStart.Equal(rec.Start), "start = %v", rec.Start)
}

func TestDecodeEmptyActivity(t *testing.T) {
	rec, err := Decode(bytes.NewReader(buildTestFIT(t, nil)))
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Samples.Len())
	assert.True(t, rec.Start.IsZero())
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("definitely not a FIT file")))
	assert.ErrorContains(t, err, "decode FIT file")
}

func TestSource(t *testing.T) {
	records := make([]testRecord, 40)
	for i := range records {
		records[i] = testRecord{hr: uint8(120 + i), speed: 2.5 + 0.05*float64(i), enhancedSpeed: -1}
	}
	path := filepath.Join(t.TempDir(), "ramp.fit")
	require.NoError(t, os.WriteFile(path, buildTestFIT(t, records), 0600))

	src := Source{Path: path, Log: zerolog.Nop()}
	assert.Equal(t, "ramp.fit", src.Describe())

	samples, start, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 40, samples.Len())
	assert.NoError(t, samples.Validate())
	assert.True(t, testStart.Equal(start))

	_, _, err = Source{Path: filepath.Join(t.TempDir(), "missing.fit"), Log: zerolog.Nop()}.Load(context.Background())
	assert.ErrorContains(t, err, "open FIT file")
}

func TestSourceLogsDroppedRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gaps.fit")
	require.NoError(t, os.WriteFile(path, buildTestFIT(t, []testRecord{
		{hr: 120, speed: 2.5, enhancedSpeed: -1},
		{hr: 0xFF, speed: 2.6, enhancedSpeed: -1},
		{hr: 124, speed: -1, enhancedSpeed: -1},
		{hr: 126, speed: 2.8, enhancedSpeed: -1},
	}), 0600))

	var buf bytes.Buffer
	src := Source{Path: path, Log: zerolog.New(&buf).Level(zerolog.DebugLevel)}
	samples, _, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, samples.Len())

	assert.Contains(t, buf.String(), `"dropped":2`)
	assert.Contains(t, buf.String(), `"kept":2`)
	assert.Contains(t, buf.String(), `"file":"gaps.fit"`)
}
