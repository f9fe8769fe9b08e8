package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"MarketBackfill/internal/collector"
	"MarketBackfill/internal/model"
)

// FormatRefreshReport formats a backfill run into a Telegram message.
func FormatRefreshReport(r *collector.Report) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("📥 <b>Backfill</b> | %s\n", r.Started.UTC().Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("run %s, %d series, %d fetched, %d failed, took %s\n\n",
		shortID(r.RunID), len(r.Outcomes), r.Fetched(), r.Failed(),
		r.Finished.Sub(r.Started).Round(time.Second)))

	for _, o := range r.Outcomes {
		req := o.Request
		if o.Err != nil {
			b.WriteString(fmt.Sprintf("❌ %s %s: %s\n", html.EscapeString(req.Symbol), req.Timeframe, html.EscapeString(o.Err.Error())))
			continue
		}
		mark := "✅"
		if !o.Result.Fetched {
			mark = "💾"
		}
		b.WriteString(fmt.Sprintf("%s %s %s: %s %s..%s (%d rows)\n",
			mark, html.EscapeString(req.Symbol), req.Timeframe, o.Result.Source,
			orDash(o.Result.Start), orDash(o.Result.End), o.Result.Rows))
	}
	return b.String()
}

// FormatCoverage formats one coverage record for display.
func FormatCoverage(rec model.CoverageRecord) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📦 <b>%s %s</b>\n\n", html.EscapeString(rec.Symbol), rec.Timeframe))
	b.WriteString(fmt.Sprintf("Source: %s\n", rec.Source))
	b.WriteString(fmt.Sprintf("Window: %s\n", rec.Window()))
	b.WriteString(fmt.Sprintf("Rows: %d\n", rec.Rows))
	b.WriteString(fmt.Sprintf("Adjusted: %v\n", rec.Adjusted))
	if !rec.UpdatedAt.IsZero() {
		b.WriteString(fmt.Sprintf("Updated: %s\n", rec.UpdatedAt.UTC().Format("2006-01-02 15:04")))
	}
	return b.String()
}

// FormatResult formats a single resolve for a command reply.
func FormatResult(req model.DataRequest, res collector.Result) string {
	verb := "already on disk"
	if res.Fetched {
		verb = "fetched"
	}
	return fmt.Sprintf("%s %s %s from %s: %s..%s, %d rows",
		html.EscapeString(req.Symbol), req.Timeframe, verb, res.Source,
		orDash(res.Start), orDash(res.End), res.Rows)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
