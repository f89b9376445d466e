package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/txn-categorizer/internal/domain"
	"google.golang.org/api/iterator"
)

// FindRuleByKeyWithClient returns the rule holding the given match key, or
// nil when no rule (active or inactive) carries it.
func FindRuleByKeyWithClient(ctx context.Context, client *bigquery.Client, key domain.MatchKey) (*domain.Rule, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			rule_id, identifier, identifier_type, transaction_type,
			primary_category, secondary_category,
			persona_type, confidence_score, status, created_ts
		FROM %s
		WHERE identifier = @identifier
		  AND identifier_type = @identifier_type
		  AND transaction_type = @transaction_type
		LIMIT 1
	`, tableFQN(rulesTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "identifier", Value: key.Identifier},
		{Name: "identifier_type", Value: string(key.IdentifierType)},
		{Name: "transaction_type", Value: string(key.TransactionType)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, &domain.WarehouseError{Op: "FindRuleByKey", Err: fmt.Errorf("query read: %w", err)}
	}

	var r RuleRow
	err = it.Next(&r)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.WarehouseError{Op: "FindRuleByKey", Err: fmt.Errorf("iter next: %w", err)}
	}

	rule := ruleFromRow(r)
	return &rule, nil
}

// InsertRuleWithClient inserts a new rule row. Uniqueness of the match key
// is the caller's responsibility (see rules.Store.Create).
func InsertRuleWithClient(ctx context.Context, client *bigquery.Client, rule domain.Rule) error {
	q := client.Query(fmt.Sprintf(`
		INSERT INTO %s
			(rule_id, identifier, identifier_type, transaction_type,
			 primary_category, secondary_category,
			 persona_type, confidence_score, status, created_ts)
		VALUES
			(@rule_id, @identifier, @identifier_type, @transaction_type,
			 @primary_category, @secondary_category,
			 @persona_type, @confidence_score, @status, @created_ts)
	`, tableFQN(rulesTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "rule_id", Value: rule.RuleID},
		{Name: "identifier", Value: rule.Identifier},
		{Name: "identifier_type", Value: string(rule.IdentifierType)},
		{Name: "transaction_type", Value: string(rule.TransactionType)},
		{Name: "primary_category", Value: rule.PrimaryCategory},
		{Name: "secondary_category", Value: rule.SecondaryCategory},
		{Name: "persona_type", Value: rule.PersonaType},
		{Name: "confidence_score", Value: rule.ConfidenceScore},
		{Name: "status", Value: string(rule.Status)},
		{Name: "created_ts", Value: rule.CreatedAt},
	}

	_, err := runDML(ctx, q, "InsertRule")
	return err
}

// UpdateRuleStatusWithClient flips a rule between active and inactive.
// Returns false when no rule with the given id exists.
func UpdateRuleStatusWithClient(ctx context.Context, client *bigquery.Client, ruleID string, status domain.RuleStatus) (bool, error) {
	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status
		WHERE rule_id = @rule_id
	`, tableFQN(rulesTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: string(status)},
		{Name: "rule_id", Value: ruleID},
	}

	affected, err := runDML(ctx, q, "UpdateRuleStatus")
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListRuleKeysWithClient returns every rule's match key regardless of
// status, for the miner's duplicate exclusion.
func ListRuleKeysWithClient(ctx context.Context, client *bigquery.Client) ([]domain.MatchKey, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT identifier, identifier_type, transaction_type
		FROM %s
	`, tableFQN(rulesTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, &domain.WarehouseError{Op: "ListRuleKeys", Err: fmt.Errorf("query read: %w", err)}
	}

	var keys []domain.MatchKey
	for {
		var r struct {
			Identifier      string `bigquery:"identifier"`
			IdentifierType  string `bigquery:"identifier_type"`
			TransactionType string `bigquery:"transaction_type"`
		}
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, &domain.WarehouseError{Op: "ListRuleKeys", Err: fmt.Errorf("iter next: %w", err)}
		}
		keys = append(keys, domain.MatchKey{
			Identifier:      r.Identifier,
			IdentifierType:  domain.IdentifierType(r.IdentifierType),
			TransactionType: domain.TransactionType(r.TransactionType),
		})
	}

	return keys, nil
}

func ruleFromRow(r RuleRow) domain.Rule {
	return domain.Rule{
		RuleID:            r.RuleID,
		Identifier:        r.Identifier,
		IdentifierType:    domain.IdentifierType(r.IdentifierType),
		TransactionType:   domain.TransactionType(r.TransactionType),
		PrimaryCategory:   r.PrimaryCategory,
		SecondaryCategory: r.SecondaryCategory,
		PersonaType:       r.PersonaType,
		ConfidenceScore:   r.ConfidenceScore,
		Status:            domain.RuleStatus(r.Status),
		CreatedAt:         r.CreatedTS,
	}
}
