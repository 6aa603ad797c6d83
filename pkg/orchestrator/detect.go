package orchestrator

import (
	"strconv"
	"strings"

	"github.com/orelake/orelake/pkg/analysis"
)

// explicitPatterns trigger an analysis regardless of session state.
var explicitPatterns = []struct {
	pattern string
	key     string
}{
	{"cluster analysis", "clustering"},
	{"clustering analysis", "clustering"},
	{"do cluster", "clustering"},
	{"run cluster", "clustering"},
	{"cluster the", "clustering"},
	{"regional analysis", "regional"},
	{"regional distribution", "regional"},
	{"commodity analysis", "commodity"},
	{"commodity breakdown", "commodity"},
	{"geology correlation", "geology_correlation"},
	{"geology analysis", "geology_correlation"},
	{"distance to faults", "distance_to_faults"},
}

// pendingKeywords resolve short follow-ups while a suggestion list is open.
var pendingKeywords = []struct {
	keyword string
	key     string
}{
	{"clustering", "clustering"},
	{"cluster", "clustering"},
	{"regional", "regional"},
	{"commodity", "commodity"},
	{"geology correlation", "geology_correlation"},
}

// detectAnalysisRequest decides whether user input selects an analysis.
// Explicit phrases always match. When a suggestion list is pending, a bare
// number picks from it, and short inputs are scanned for analysis keywords.
// Longer free text is a new question, never an analysis.
func detectAnalysisRequest(input string, pending []analysis.Descriptor) (string, bool) {
	input = strings.ToLower(strings.TrimSpace(input))

	for _, p := range explicitPatterns {
		if strings.Contains(input, p.pattern) {
			return p.key, true
		}
	}

	if len(pending) == 0 {
		return "", false
	}

	if n, err := strconv.Atoi(input); err == nil {
		if n >= 1 && n <= len(pending) {
			return pending[n-1].Key, true
		}
		return "", false
	}

	if len(input) > 30 {
		return "", false
	}
	isCommand := strings.Contains(input, "analysis") ||
		strings.Contains(input, "analyze") ||
		strings.Contains(input, "run ") ||
		len(input) < 15
	if !isCommand {
		return "", false
	}

	for _, k := range pendingKeywords {
		if strings.Contains(input, k.keyword) {
			return k.key, true
		}
	}
	return "", false
}
