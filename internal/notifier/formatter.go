package notifier

import (
	"fmt"
	"html"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"BandSentinel/internal/eligibility"
	"BandSentinel/internal/model"
)

// FormatRunReport formats a finished calculation run for the operator chat.
func FormatRunReport(r *model.RunReport) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("📊 <b>BandSentinel run</b> | %s\n", r.CalculationDate.Format("2006-01-02")))
	b.WriteString(fmt.Sprintf("<code>%s</code> in %s\n\n", shortID(r.RunID), r.Duration.Round(10*time.Millisecond)))

	b.WriteString(fmt.Sprintf("Computed: %d\n", r.Computed))
	b.WriteString(fmt.Sprintf("  🟢 healthy: %d | 🔴 weak: %d\n", r.Healthy, r.Weak))
	b.WriteString(fmt.Sprintf("Insufficient history: %d\n", r.Insufficient))
	b.WriteString(fmt.Sprintf("Invalid price data: %d\n", r.Invalid))
	if r.Failed > 0 {
		b.WriteString(fmt.Sprintf("⚠️ Failed: %d\n", r.Failed))
	}
	b.WriteString(fmt.Sprintf("\nExcluded from display: %d\n", r.Excluded))
	if r.Review > 0 {
		b.WriteString(fmt.Sprintf("⚠️ Manual review: %d\n", r.Review))
	}
	return b.String()
}

// FormatBand formats one asset's band result.
func FormatBand(a model.Asset, r *model.BMSBResult) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("<b>%s</b> %s | %s\n\n",
		html.EscapeString(a.Symbol), html.EscapeString(a.Name), r.CalculationDate.Format("2006-01-02")))
	b.WriteString(fmt.Sprintf("Price: %s (%s)\n", FormatPrice(r.CurrentPrice), positionLabel(r.PricePosition)))
	b.WriteString(fmt.Sprintf("Band: %s - %s\n", FormatPrice(r.SupportLower), FormatPrice(r.SupportUpper)))
	b.WriteString(fmt.Sprintf("SMA20w: %s %s | EMA21w: %s %s\n",
		FormatPrice(r.SMA20), trendArrow(r.SMATrend), FormatPrice(r.EMA21), trendArrow(r.EMATrend)))
	b.WriteString(fmt.Sprintf("Health: %s\n", healthLabel(r.BandHealth)))
	b.WriteString(fmt.Sprintf("Weeks used: %d\n", r.WeeksUsed))
	return b.String()
}

// FormatExclusions lists rejected assets grouped by reason.
func FormatExclusions(rejected []eligibility.Rejected) string {
	if len(rejected) == 0 {
		return "No assets excluded."
	}
	byReason := make(map[string][]string)
	var order []string
	for _, r := range rejected {
		if _, ok := byReason[r.Reason]; !ok {
			order = append(order, r.Reason)
		}
		byReason[r.Reason] = append(byReason[r.Reason], html.EscapeString(r.Asset.Symbol))
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("🚫 <b>Excluded assets</b> (%d)\n", len(rejected)))
	for _, reason := range order {
		b.WriteString(fmt.Sprintf("\n<i>%s</i>: %s\n", reason, strings.Join(byReason[reason], ", ")))
	}
	return b.String()
}

// FormatPrice rounds a price for display: two decimals from 1 upward,
// four significant digits below.
func FormatPrice(v float64) string {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return "0"
	}
	d := decimal.NewFromFloat(v)
	if math.Abs(v) >= 1 {
		return d.StringFixed(2)
	}
	places := int32(3 - int(math.Floor(math.Log10(math.Abs(v)))))
	return d.Round(places).String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func positionLabel(p model.PricePosition) string {
	switch p {
	case model.AboveBand:
		return "above band"
	case model.InBand:
		return "in band"
	default:
		return "below band"
	}
}

func trendArrow(t model.Trend) string {
	if t == model.Increasing {
		return "↑"
	}
	return "↓"
}

func healthLabel(h model.BandHealth) string {
	switch h {
	case model.Healthy:
		return "🟢 healthy"
	case model.Weak:
		return "🔴 weak"
	default:
		return "⚪ stablecoin (n/a)"
	}
}
