package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/joelkehle/bizfinder/internal/business"
)

const topRatedLimit = 10

type ReportInput struct {
	Industry    string
	Location    string
	Records     []business.Record
	Filter      business.Filter
	GeneratedAt time.Time
}

// BuildReportMarkdown summarizes a result set as a market report. Records are
// filtered by in.Filter and listed best rated first.
func BuildReportMarkdown(in ReportInput) string {
	var b strings.Builder
	stats := business.Analyze(in.Records, in.Filter)
	records := business.Sorted(in.Filter.Apply(in.Records), business.SortRatingDesc)

	buildHeader(&b, in)
	buildSummary(&b, stats)
	if len(records) == 0 {
		fmt.Fprintf(&b, "No businesses match the current filters.\n")
		return b.String()
	}
	buildDistribution(&b, stats)
	buildTopRated(&b, records)
	buildFullTable(&b, records)
	return b.String()
}

func buildHeader(b *strings.Builder, in ReportInput) {
	generated := in.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}
	fmt.Fprintf(b, "# Business Discovery Report\n\n")
	fmt.Fprintf(b, "- Industry: %s\n", safe(in.Industry))
	fmt.Fprintf(b, "- Location: %s\n", safe(in.Location))
	fmt.Fprintf(b, "- Date: %s\n", generated.Format(time.RFC3339))
	if f := describeFilter(in.Filter); f != "" {
		fmt.Fprintf(b, "- Filters: %s\n", f)
	}
	b.WriteString("\n")
}

func buildSummary(b *strings.Builder, s business.Stats) {
	fmt.Fprintf(b, "## Summary\n\n")
	fmt.Fprintf(b, "- Businesses found: %d\n", s.Total)
	fmt.Fprintf(b, "- With phone: %d (%s)\n", s.WithPhone, percent(s.WithPhone, s.Total))
	fmt.Fprintf(b, "- With website: %d (%s)\n", s.WithWebsite, percent(s.WithWebsite, s.Total))
	fmt.Fprintf(b, "- Matching filters: %d\n", s.Filtered)
	fmt.Fprintf(b, "- Average rating: %.1f\n\n", s.AverageRating)
}

func buildDistribution(b *strings.Builder, s business.Stats) {
	fmt.Fprintf(b, "## Rating Distribution\n\n")
	fmt.Fprintf(b, "| Stars | Businesses |\n|---|---|\n")
	for star := 5; star >= 1; star-- {
		fmt.Fprintf(b, "| %d | %d |\n", star, s.RatingDistribution[star-1])
	}
	b.WriteString("\n")
}

func buildTopRated(b *strings.Builder, records []business.Record) {
	fmt.Fprintf(b, "## Top Rated\n\n")
	n := 0
	for _, r := range records {
		if r.Rating <= 0 {
			continue
		}
		fmt.Fprintf(b, "%d. [%s](%s): %.1f (%d reviews)\n", n+1, cell(r.Name), r.MapsURI, r.Rating, r.ReviewCount)
		if d := strings.TrimSpace(r.Description); d != "" {
			fmt.Fprintf(b, "   - %s\n", safe(d))
		}
		n++
		if n == topRatedLimit {
			break
		}
	}
	if n == 0 {
		fmt.Fprintf(b, "No rated businesses.\n")
	}
	b.WriteString("\n")
}

func buildFullTable(b *strings.Builder, records []business.Record) {
	fmt.Fprintf(b, "## All Businesses\n\n")
	fmt.Fprintf(b, "| Name | Address | Rating | Reviews | Phone | Website | Type |\n|---|---|---|---|---|---|---|\n")
	for _, r := range records {
		website := ""
		if r.Website != "" {
			website = fmt.Sprintf("[link](%s)", r.Website)
		}
		fmt.Fprintf(b, "| [%s](%s) | %s | %.1f | %d | %s | %s | %s |\n",
			cell(r.Name), r.MapsURI, cell(r.Address), r.Rating, r.ReviewCount, cell(r.Phone), website, cell(r.BusinessType))
	}
	b.WriteString("\n")
}

func describeFilter(f business.Filter) string {
	var parts []string
	if f.RequirePhone {
		parts = append(parts, "has phone")
	}
	if f.RequireWebsite {
		parts = append(parts, "has website")
	}
	if f.MinRating > 0 {
		parts = append(parts, fmt.Sprintf("rating >= %.1f", f.MinRating))
	}
	return strings.Join(parts, ", ")
}

func percent(n, total int) string {
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.0f%%", float64(n)*100/float64(total))
}

func safe(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(none)"
	}
	return strings.ReplaceAll(s, "\n", " ")
}

// cell keeps a value from breaking a markdown table row.
func cell(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}
