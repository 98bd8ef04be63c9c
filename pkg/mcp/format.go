package mcp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mtgmarket/cardgate/pkg/models"
)

func formatJSON(v any) (string, error) {
	if raw, ok := v.(json.RawMessage); ok {
		var pretty any
		if err := json.Unmarshal(raw, &pretty); err == nil {
			v = pretty
		}
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// formatCacheStats formats cache stats as text.
func formatCacheStats(stats models.CacheStats) string {
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	return fmt.Sprintf("Cache Statistics\n"+
		"  Entries:   %d / %d\n"+
		"  Hits:      %d\n"+
		"  Misses:    %d\n"+
		"  Shared:    %d\n"+
		"  Evictions: %d\n"+
		"  Hit Rate:  %.1f%%\n",
		stats.Entries, stats.Capacity, stats.Hits, stats.Misses, stats.Shared, stats.Evictions, hitRate)
}

// formatEndpointSummary formats upstream call summaries as a text table.
func formatEndpointSummary(rows []models.EndpointSummary) string {
	if len(rows) == 0 {
		return "No upstream calls recorded."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-10s %8s %8s %12s\n", "Endpoint", "Calls", "Errors", "Avg Latency")
	b.WriteString(strings.Repeat("-", 41) + "\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-10s %8d %8d %10.1fms\n", r.Endpoint, r.Calls, r.Errors, r.AvgLatencyMs)
	}
	return b.String()
}
