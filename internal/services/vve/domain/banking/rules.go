package banking

import (
	"context"
	"strings"

	apperrors "github.com/louisbranch/vvebeheer/internal/platform/errors"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/association"
)

// ListRules returns the association's own rules. Requires board.
func (r *Reconciler) ListRules(ctx context.Context, associationID string) ([]Rule, error) {
	if _, err := r.require(ctx, associationID, association.RoleBoard); err != nil {
		return nil, err
	}
	return r.store.ListRules(ctx, strings.TrimSpace(associationID))
}

// SaveRule creates or replaces a rule. Requires board.
func (r *Reconciler) SaveRule(ctx context.Context, associationID string, rule Rule) (Rule, error) {
	if _, err := r.require(ctx, associationID, association.RoleBoard); err != nil {
		return Rule{}, err
	}
	rule.AssociationID = strings.TrimSpace(associationID)
	rule.Name = strings.TrimSpace(rule.Name)
	rule.AccountCode = strings.TrimSpace(rule.AccountCode)
	rule.CounterpartyIBAN = NormalizeIBAN(rule.CounterpartyIBAN)
	if rule.Direction == "" {
		rule.Direction = DirectionAny
	}
	if rule.Priority == 0 {
		rule.Priority = DefaultRulePriority
	}
	keywords := rule.Keywords[:0]
	for _, keyword := range rule.Keywords {
		if keyword = strings.TrimSpace(keyword); keyword != "" {
			keywords = append(keywords, keyword)
		}
	}
	rule.Keywords = keywords
	if err := rule.Validate(); err != nil {
		return Rule{}, err
	}
	accounts, err := r.ledger.Accounts(ctx, rule.AssociationID)
	if err != nil {
		return Rule{}, err
	}
	if !categoryAllowed(accounts, rule.AccountCode) {
		return Rule{}, apperrors.Newf(apperrors.CodeCategorizationInvalid, "account %q cannot be used for categorization", rule.AccountCode)
	}
	if rule.ID == "" {
		ruleID, err := r.newID()
		if err != nil {
			return Rule{}, err
		}
		rule.ID = ruleID
	}
	if err := r.store.PutRule(ctx, rule); err != nil {
		return Rule{}, err
	}
	return rule, nil
}

// DeleteRule removes a rule. Requires board.
func (r *Reconciler) DeleteRule(ctx context.Context, associationID, ruleID string) error {
	if _, err := r.require(ctx, associationID, association.RoleBoard); err != nil {
		return err
	}
	return r.store.DeleteRule(ctx, strings.TrimSpace(associationID), strings.TrimSpace(ruleID))
}

// Script returns the association's categorization script. Requires board.
func (r *Reconciler) Script(ctx context.Context, associationID string) (string, error) {
	if _, err := r.require(ctx, associationID, association.RoleBoard); err != nil {
		return "", err
	}
	return r.store.GetScript(ctx, strings.TrimSpace(associationID))
}

// SetScript stores a categorization script after checking that it
// compiles. An empty script removes it. Requires admin.
func (r *Reconciler) SetScript(ctx context.Context, associationID, script string) error {
	if _, err := r.require(ctx, associationID, association.RoleAdmin); err != nil {
		return err
	}
	if strings.TrimSpace(script) != "" {
		if r.compile == nil {
			return apperrors.New(apperrors.CodeCategorizationInvalid, "scripts are not enabled")
		}
		if _, err := r.compile(script); err != nil {
			return apperrors.Wrap(apperrors.CodeCategorizationInvalid, "script does not compile", err)
		}
	}
	return r.store.PutScript(ctx, strings.TrimSpace(associationID), script)
}
