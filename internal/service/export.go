package service

import (
	"context"
	"fmt"
	"io"

	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// sampleRow is one stored sample with the test's threshold repeated on
// every row, so the file is self-contained for dataframe tools.
type sampleRow struct {
	Index          int64    `parquet:"name=sample_index, type=INT64"`
	HeartRate      float64  `parquet:"name=hr_bpm, type=DOUBLE"`
	Speed          float64  `parquet:"name=speed_mps, type=DOUBLE"`
	User           string   `parquet:"name=username, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Date           string   `parquet:"name=test_date, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	ThresholdHR    float64  `parquet:"name=threshold_hr, type=DOUBLE"`
	ThresholdSpeed float64  `parquet:"name=threshold_speed, type=DOUBLE"`
	CILow          *float64 `parquet:"name=ci_low, type=DOUBLE, repetitiontype=OPTIONAL"`
	CIHigh         *float64 `parquet:"name=ci_high, type=DOUBLE, repetitiontype=OPTIONAL"`
	AtBreakpoint   bool     `parquet:"name=at_breakpoint, type=BOOLEAN"`
}

// ExportParquet writes a stored test as a SNAPPY-compressed Parquet file
func (s *ThresholdService) ExportParquet(ctx context.Context, user, date string, w io.Writer) error {
	detail, err := s.Detail(ctx, user, date)
	if err != nil {
		return err
	}
	rec := detail.Record

	fw := parquetbuffer.NewBufferFile()
	pw, err := writer.NewParquetWriter(fw, new(sampleRow), 4)
	if err != nil {
		return fmt.Errorf("creating parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	n := min(len(rec.HeartRate), len(rec.Speed))
	for i := range n {
		row := sampleRow{
			Index:          int64(i),
			HeartRate:      rec.HeartRate[i],
			Speed:          rec.Speed[i],
			User:           rec.User,
			Date:           rec.Date,
			ThresholdHR:    rec.ThresholdHR,
			ThresholdSpeed: rec.ThresholdSpeed,
			CILow:          rec.CILow,
			CIHigh:         rec.CIHigh,
			AtBreakpoint:   i == detail.BreakpointIndex,
		}
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finishing parquet file: %w", err)
	}
	if err := fw.Close(); err != nil {
		return err
	}

	if _, err := w.Write(fw.Bytes()); err != nil {
		return fmt.Errorf("writing export: %w", err)
	}
	s.log.Info().Str("user", user).Str("date", date).Int("rows", n).Msg("test exported")
	return nil
}
