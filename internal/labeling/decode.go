package labeling

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/txn-categorizer/internal/domain"
	"github.com/dvloznov/txn-categorizer/internal/taxonomy"
	"github.com/rs/zerolog"
)

// DecodeLabels parses a raw model response into validated category labels.
// Records missing a required field, carrying a non-string value, or naming a
// category pair outside the taxonomy are dropped and logged; the returned
// count says how many were dropped. An unparsable payload yields a
// *domain.ValidationError carrying the raw response, and nothing else.
func DecodeLabels(log zerolog.Logger, raw string) ([]domain.CategoryLabel, int, error) {
	clean := cleanResponseText(raw)

	var parsed interface{}
	if err := json.Unmarshal([]byte(clean), &parsed); err != nil {
		return nil, 0, &domain.ValidationError{
			RawResponse: raw,
			Err:         fmt.Errorf("unmarshal JSON: %w", err),
		}
	}

	items, ok := parsed.([]interface{})
	if !ok {
		// A single bare object still counts as a usable response.
		log.Warn().Msg("labeling response was not a JSON array; wrapping single value")
		items = []interface{}{parsed}
	}

	var labels []domain.CategoryLabel
	skipped := 0
	for _, item := range items {
		label, ok := validateRecord(item)
		if !ok {
			skipped++
			log.Warn().Interface("record", item).Msg("skipping invalid record from labeling response")
			continue
		}
		labels = append(labels, label)
	}

	return labels, skipped, nil
}

func validateRecord(item interface{}) (domain.CategoryLabel, bool) {
	record, ok := item.(map[string]interface{})
	if !ok {
		return domain.CategoryLabel{}, false
	}

	transactionID, ok := record["transaction_id"].(string)
	if !ok || transactionID == "" {
		return domain.CategoryLabel{}, false
	}
	primary, ok := record["primary_category"].(string)
	if !ok {
		return domain.CategoryLabel{}, false
	}
	secondary, ok := record["secondary_category"].(string)
	if !ok {
		return domain.CategoryLabel{}, false
	}

	if !taxonomy.IsValid(primary, secondary) {
		return domain.CategoryLabel{}, false
	}

	return domain.CategoryLabel{
		TransactionID:     transactionID,
		PrimaryCategory:   primary,
		SecondaryCategory: secondary,
	}, true
}

// cleanResponseText strips Markdown fences and surrounding junk when the
// model ignores the raw-JSON instruction.
func cleanResponseText(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		// Drop the first line (``` or ```json).
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	// If there is still junk around the JSON array, keep only the span from
	// the first '[' to the last ']'. A payload that is itself a bare object
	// stays intact: any '[' inside it belongs to some field's value.
	if !strings.HasPrefix(s, "{") {
		if start := strings.Index(s, "["); start != -1 {
			if end := strings.LastIndex(s, "]"); end != -1 && end > start {
				s = strings.TrimSpace(s[start : end+1])
			}
		}
	}

	return s
}
