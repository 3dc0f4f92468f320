// Package cli renders search results and proposals for the command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/sattyani/ai-procurement-agent/internal/models"
	"github.com/sattyani/ai-procurement-agent/pkg/utils"
)

// SearchOutputFormat is the format for search result output.
type SearchOutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText SearchOutputFormat = "text"
	// OutputCompact prints one line per result.
	OutputCompact SearchOutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON SearchOutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (SearchOutputFormat, error) {
	switch f := SearchOutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", OutputText:
		return OutputText, nil
	case OutputCompact, OutputJSON:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q: want text, compact or json", s)
}

// WriteSearchResults writes search results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format SearchOutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	case OutputCompact:
		for _, result := range response.Results {
			p := result.Proposal
			fmt.Fprintf(w, "%2d. %-8s %-24s %-28s %12s  %.4f\n",
				result.Rank, p.ID, utils.Truncate(p.VendorName, 24), utils.Truncate(p.ProjectName, 28),
				FormatPrice(p.Price), result.Score)
		}
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nShowing %d of %d proposals (%dms)\n\n", len(response.Results), response.Total, response.QueryTime)
	for _, result := range response.Results {
		writeOneResult(w, result)
	}
}

func writeOneResult(w io.Writer, result *models.SearchResult) {
	p := result.Proposal
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Rank: %d | Score: %.4f (%s)\n", result.Rank, result.Score, formatSpaceScores(result.SpaceScores))
	fmt.Fprintf(w, "ID: %s\n", p.ID)
	fmt.Fprintf(w, "Vendor: %s\n", p.VendorName)
	fmt.Fprintf(w, "Project: %s\n", p.ProjectName)
	fmt.Fprintf(w, "Price: %s\n", FormatPrice(p.Price))
	if p.DeliveryTimeline != "" {
		fmt.Fprintf(w, "Timeline: %s\n", p.DeliveryTimeline)
	}
	fmt.Fprintf(w, "\nScope: %s\n", utils.Truncate(p.ScopeSummary, 200))
	fmt.Fprintf(w, "Risks: %s\n", utils.Truncate(p.Risks, 200))
	fmt.Fprintln(w)
}

// formatSpaceScores lists per-space scores sorted by space name.
func formatSpaceScores(scores map[string]float64) string {
	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s: %.4f", name, scores[name])
	}
	return strings.Join(parts, ", ")
}

// PrintSearchResults prints search results to stdout in text format.
func PrintSearchResults(response *models.SearchResponse) {
	_ = WriteSearchResults(os.Stdout, response, OutputText)
}

// WriteProposals writes one line per proposal, or JSON when format is OutputJSON.
func WriteProposals(w io.Writer, records []*models.ProposalRecord, format SearchOutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	for _, p := range records {
		fmt.Fprintf(w, "%-8s %-24s %-28s %12s  %s\n",
			p.ID, utils.Truncate(p.VendorName, 24), utils.Truncate(p.ProjectName, 28),
			FormatPrice(p.Price), TruncateWords(p.ScopeSummary, 8))
	}
	fmt.Fprintf(w, "\n%d proposal(s)\n", len(records))
	return nil
}

// FormatPrice renders a price with thousands separators, e.g. $1,250,000.
func FormatPrice(price float64) string {
	s := fmt.Sprintf("%.0f", price)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-$" + b.String()
	}
	return "$" + b.String()
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
