package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/warp/attainment-dashboard/metrics"
	"github.com/warp/attainment-dashboard/sheet"
)

// Input is everything one report shows.
type Input struct {
	Source      string
	Layout      sheet.Layout
	Summary     metrics.Summary
	Projections metrics.ProjectionSet
	Totals      metrics.Totals
	TotalsErr   error
}

// Render writes the full report: overview, projections, history.
func Render(w io.Writer, in Input) error {
	var b strings.Builder

	b.WriteString(RenderTitle("Goal Attainment"))
	b.WriteString("\n")
	if in.Source != "" {
		b.WriteString(mutedStyle.Render("  source: " + in.Source))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(renderOverview(in))
	b.WriteString("\n")
	b.WriteString(RenderTable(ProjectionTable(in.Projections, in.Layout)))
	b.WriteString(renderDiagnostics(in.Projections.Diagnostics))
	b.WriteString("\n")

	if in.TotalsErr != nil {
		b.WriteString(warnStyle.Render("  ! totals unavailable: " + in.TotalsErr.Error()))
		b.WriteString("\n")
	} else {
		b.WriteString(RenderTable(HistoryTable(in.Totals, in.Layout)))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func renderOverview(in Input) string {
	s := in.Summary
	if !s.Available {
		return warnStyle.Render("  Overview unavailable") + "\n"
	}
	loc := in.Layout.Locale
	var b strings.Builder
	fmt.Fprintf(&b, "  %s %s\n", headerStyle.Render("Target        "), valueStyle.Render(FormatAmount(s.TargetTotal, loc)))
	fmt.Fprintf(&b, "  %s %s\n", headerStyle.Render("Actual        "), valueStyle.Render(FormatAmount(s.ActualTotal, loc)))
	fmt.Fprintf(&b, "  %s %s\n", headerStyle.Render("Attained      "), RenderProgressBar(s.AttainedPercent.InexactFloat64(), 30))
	fmt.Fprintf(&b, "  %s %d\n", headerStyle.Render("Days remaining"), s.DaysRemaining)
	return b.String()
}

// ProjectionTable lays out one row per projected bucket in layout order.
func ProjectionTable(set metrics.ProjectionSet, layout sheet.Layout) Table {
	loc := layout.Locale
	t := Table{
		Title:   fmt.Sprintf("Projections (%d days remaining)", set.DaysRemaining),
		Headers: []string{"Bucket", "Target", "Actual", "Attained", "Avg/day", "Projected", "Proj %", "Needed/day", "Status"},
	}
	for _, p := range set.Ordered(layout.Buckets) {
		status := badStyle.Render("behind")
		if p.OnTrack() {
			status = goodStyle.Render("on track")
		}
		t.Rows = append(t.Rows, []string{
			string(p.Bucket),
			FormatAmount(p.TargetTotal, loc),
			FormatAmount(p.ActualToDate, loc),
			FormatPercent(p.AttainedPercent()),
			FormatAmount(p.RecentDailyAverage, loc),
			FormatAmount(p.ProjectedEndOfPeriod, loc),
			FormatPercent(p.ProjectedPercentOfTarget),
			FormatAmount(p.RequiredDailyGap, loc),
			status,
		})
	}
	return t
}

// HistoryTable lays out each bucket's trimmed history sum and a sparkline.
func HistoryTable(totals metrics.Totals, layout sheet.Layout) Table {
	t := Table{
		Title:   "History",
		Headers: []string{"Bucket", "Total", "Days", "Trend"},
	}
	for _, b := range layout.Buckets {
		h, ok := totals.Buckets[b]
		if !ok || !h.Present {
			t.Rows = append(t.Rows, []string{string(b), "-", "-", ""})
			continue
		}
		values := make([]float64, 0, len(h.Series))
		for _, p := range h.Series {
			if p.Value.Valid {
				values = append(values, p.Value.Decimal.InexactFloat64())
			}
		}
		t.Rows = append(t.Rows, []string{
			string(b),
			FormatAmount(h.Sum, layout.Locale),
			fmt.Sprintf("%d", len(h.Series)),
			RenderSparkline(values),
		})
	}
	return t
}

func renderDiagnostics(diags []metrics.Diagnostic) string {
	var b strings.Builder
	for _, d := range diags {
		b.WriteString(warnStyle.Render("  ! " + d.Err.Error()))
		b.WriteString("\n")
	}
	return b.String()
}
