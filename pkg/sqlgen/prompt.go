package sqlgen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/orelake/orelake/pkg/sqlgen/prompts"
)

// sampleValuesPerColumn caps how many distinct values are shown per column in
// the dynamic schema block.
const sampleValuesPerColumn = 6

// importantColumns lists the columns whose live values are injected into the
// system prompt to ground the model in actual vocabulary.
var importantColumns = map[string][]string{
	TableDeposits: {"major_comm", "region", "occ_imp"},
	TableGeology:  {"litho_fmly", "main_litho", "terrane"},
	TableFaults:   {"newtype"},
}

// loadGeneratePrompt reads the embedded system-prompt template.
func loadGeneratePrompt() (string, error) {
	data, err := prompts.PromptsFS.ReadFile("GENERATE.md")
	if err != nil {
		return "", fmt.Errorf("failed to read GENERATE.md: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// buildSystemPrompt injects the dynamic sample-value block into the template.
// Everything else in the template is fixed for the session, which keeps retry
// prompts comparable across attempts.
func buildSystemPrompt(template string, values ValueProvider) string {
	return strings.Replace(template, "{{SAMPLE_VALUES}}", buildSampleValues(values), 1)
}

// buildSampleValues renders the per-column sample values sampled from the
// live database.
func buildSampleValues(values ValueProvider) string {
	var sb strings.Builder
	sb.WriteString("SAMPLE VALUES FROM DATABASE:\n\n")

	tables := make([]string, 0, len(importantColumns))
	for t := range importantColumns {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	for _, table := range tables {
		sb.WriteString(table + ":\n")
		for _, col := range importantColumns[table] {
			vals := values.Values(table, col)
			if len(vals) > sampleValuesPerColumn {
				vals = vals[:sampleValuesPerColumn]
			}
			if len(vals) > 0 {
				sb.WriteString("  " + col + ": " + strings.Join(vals, ", ") + "\n")
			}
		}
		sb.WriteString("\n")
	}

	return strings.TrimRight(sb.String(), "\n")
}

// preprocessQuery annotates the user query with inline hints before prompt
// composition: city-to-region normalization, and the no-commodity-filter hint
// when generic occurrence words appear without a named commodity.
func preprocessQuery(query string) string {
	queryLower := strings.ToLower(query)
	var hints []string

	if !strings.Contains(queryLower, "region") {
		cities := make([]string, 0, len(saudiRegions))
		for city := range saudiRegions {
			cities = append(cities, city)
		}
		sort.Strings(cities)
		for _, city := range cities {
			if strings.Contains(queryLower, city) {
				hints = append(hints, fmt.Sprintf("REGION: %s -> %s", city, saudiRegions[city]))
			}
		}
	}

	hasCommodity := false
	for _, c := range commodityWords {
		if strings.Contains(queryLower, c) {
			hasCommodity = true
			break
		}
	}
	hasOccurrenceWord := false
	for _, w := range occurrenceWords {
		if strings.Contains(queryLower, w) {
			hasOccurrenceWord = true
			break
		}
	}
	if hasOccurrenceWord && !hasCommodity {
		hints = append(hints, "SEMANTIC: 'mines/deposits' without commodity -> NO commodity filter")
	}

	if len(hints) > 0 {
		return query + " [" + strings.Join(hints, " | ") + "]"
	}
	return query
}
