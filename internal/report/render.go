package report

import (
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"conconi/internal/analysis"
	"conconi/internal/service"
	"conconi/internal/store"
)

const noValue = "-"

// Estimate renders a fresh analysis
func Estimate(source string, est *analysis.Estimate) string {
	title := cardTitleStyle.Render("Threshold · " + source)

	lines := []string{
		metric("Threshold HR", fmt.Sprintf("%.0f bpm", est.ThresholdHR), ""),
		metric("Threshold speed", fmt.Sprintf("%.2f m/s", est.ThresholdSpeed), ""),
		metric("Pace", est.Pace+" /km", ""),
		metric("95% interval", interval(est.CILow, est.CIHigh), ""),
		metric("Correlation", fmt.Sprintf("%.3f", est.Correlation), ""),
		metric("Slopes", fmt.Sprintf("%.1f → %.1f bpm per m/s", est.LowerSlope, est.UpperSlope), ""),
		metric("Samples", humanize.Comma(int64(est.Samples)), ""),
		metric("Bootstrap refits", humanize.Comma(int64(est.Resamples)), ""),
	}
	if est.Warning != "" {
		lines = append(lines, "", warningStyle.Render("⚠ "+est.Warning))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, lines...)
	return cardStyle.Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
}

// History renders a user's tests oldest first, with the change in
// threshold heart rate against the previous test.
func History(user string, records []store.TestRecord, now time.Time) string {
	title := cardTitleStyle.Render("Tests · " + user)
	if len(records) == 0 {
		return cardStyle.Render(lipgloss.JoinVertical(lipgloss.Left, title, mutedStyle.Render("No tests recorded")))
	}

	header := tableHeaderStyle.Render(fmt.Sprintf("%-10s  %-14s  %6s  %6s  %6s  %-13s  %s",
		"Date", "When", "HR", "Δ HR", "Pace", "Interval", "Source"))
	rows := []string{header}

	for i, rec := range records {
		delta := noValue
		if i > 0 {
			delta = signed(rec.ThresholdHR - records[i-1].ThresholdHR)
		}
		row := fmt.Sprintf("%-10s  %-14s  %6.0f  %6s  %6s  %-13s  %s",
			rec.Date,
			when(rec.Date, now),
			rec.ThresholdHR,
			delta,
			rec.Pace,
			interval(rec.CILow, rec.CIHigh),
			rec.Source,
		)
		if rec.Warning != "" {
			row += " " + warningStyle.Render("⚠")
		}
		rows = append(rows, tableRowStyle.Render(row))
	}

	table := lipgloss.JoinVertical(lipgloss.Left, rows...)
	return cardStyle.Render(lipgloss.JoinVertical(lipgloss.Left, title, table))
}

// Record renders one stored test
func Record(d *service.Detail) string {
	rec := d.Record
	title := cardTitleStyle.Render(fmt.Sprintf("Test · %s · %s", rec.User, rec.Date))

	breakpoint := noValue
	if d.BreakpointIndex >= 0 && d.BreakpointIndex < len(rec.HeartRate) {
		breakpoint = fmt.Sprintf("#%d (%.0f bpm at %.2f m/s)",
			d.BreakpointIndex, rec.HeartRate[d.BreakpointIndex], rec.Speed[d.BreakpointIndex])
	}

	lines := []string{
		metric("Threshold HR", fmt.Sprintf("%.0f bpm", rec.ThresholdHR), ""),
		metric("Threshold speed", fmt.Sprintf("%.2f m/s", rec.ThresholdSpeed), ""),
		metric("Pace", rec.Pace+" /km", ""),
		metric("95% interval", interval(rec.CILow, rec.CIHigh), ""),
		metric("Nearest sample", breakpoint, ""),
		metric("Samples", humanize.Comma(int64(len(rec.HeartRate))), ""),
		metric("Source", rec.Source, ""),
		metric("Saved", humanize.Time(rec.CreatedAt), ""),
	}
	if rec.Warning != "" {
		lines = append(lines, "", warningStyle.Render("⚠ "+rec.Warning))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, lines...)
	return cardStyle.Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
}

// interval formats CI bounds in m/s, "-" when unavailable
func interval(low, high *float64) string {
	if low == nil || high == nil {
		return noValue
	}
	return fmt.Sprintf("%.2f–%.2f", *low, *high)
}

func signed(v float64) string {
	r := math.Round(v)
	switch {
	case r > 0:
		return fmt.Sprintf("+%.0f", r)
	case r < 0:
		return fmt.Sprintf("%.0f", r)
	}
	return "0"
}

// when describes a test date relative to now, e.g. "3 weeks ago"
func when(date string, now time.Time) string {
	t, err := time.ParseInLocation(time.DateOnly, date, now.Location())
	if err != nil {
		return noValue
	}
	if now.Format(time.DateOnly) == date {
		return "today"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}
