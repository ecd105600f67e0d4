package banking

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"

	apperrors "github.com/louisbranch/vvebeheer/internal/platform/errors"
)

// Direction limits a rule to incoming or outgoing money.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
	DirectionAny Direction = "any"
)

// DefaultRulePriority is used for association rules saved without one.
// Lower priorities are evaluated first.
const DefaultRulePriority = 100

// Rule maps matching transactions to a ledger account.
type Rule struct {
	ID               string    `yaml:"id"`
	AssociationID    string    `yaml:"-"`
	Name             string    `yaml:"name"`
	Priority         int       `yaml:"priority"`
	Keywords         []string  `yaml:"keywords"`
	Direction        Direction `yaml:"direction"`
	CounterpartyIBAN string    `yaml:"counterparty_iban"`
	AccountCode      string    `yaml:"account"`
}

// Validate checks that the rule can ever match.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.AccountCode) == "" {
		return apperrors.New(apperrors.CodeCategorizationInvalid, "rule account is required")
	}
	switch r.Direction {
	case DirectionIn, DirectionOut, DirectionAny, "":
	default:
		return apperrors.Newf(apperrors.CodeCategorizationInvalid, "unknown direction %q", r.Direction)
	}
	hasKeyword := false
	for _, keyword := range r.Keywords {
		if strings.TrimSpace(keyword) != "" {
			hasKeyword = true
		}
	}
	if !hasKeyword && strings.TrimSpace(r.CounterpartyIBAN) == "" {
		return apperrors.New(apperrors.CodeCategorizationInvalid, "rule needs keywords or a counterparty iban")
	}
	return nil
}

// Matches reports whether tx satisfies every condition of the rule. Any
// one keyword is enough.
func (r Rule) Matches(tx Transaction) bool {
	switch r.Direction {
	case DirectionIn:
		if !tx.Incoming() {
			return false
		}
	case DirectionOut:
		if tx.Incoming() {
			return false
		}
	}
	if iban := NormalizeIBAN(r.CounterpartyIBAN); iban != "" && iban != NormalizeIBAN(tx.CounterpartyIBAN) {
		return false
	}
	if len(r.Keywords) == 0 {
		return r.CounterpartyIBAN != ""
	}
	haystack := " " + strings.Join(strings.Fields(NormalizeText(tx.Description+" "+tx.CounterpartyName)), " ") + " "
	for _, keyword := range r.Keywords {
		needle := strings.Join(strings.Fields(NormalizeText(keyword)), " ")
		if needle != "" && strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}

// Categorizer picks a ledger account for a non-member transaction.
type Categorizer interface {
	Categorize(ctx context.Context, tx Transaction) (accountCode string, ok bool, err error)
}

// RuleSet is a Categorizer over ordered rules.
type RuleSet struct {
	rules []Rule
}

// NewRuleSet orders rules by priority, keeping input order for ties.
func NewRuleSet(rules ...[]Rule) RuleSet {
	var all []Rule
	for _, set := range rules {
		all = append(all, set...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Priority < all[j].Priority })
	return RuleSet{rules: all}
}

// Categorize returns the account of the first matching rule.
func (s RuleSet) Categorize(_ context.Context, tx Transaction) (string, bool, error) {
	for _, rule := range s.rules {
		if rule.Matches(tx) {
			return rule.AccountCode, true, nil
		}
	}
	return "", false, nil
}

// Chain tries categorizers in order.
type Chain []Categorizer

// Categorize returns the first categorizer's answer.
func (c Chain) Categorize(ctx context.Context, tx Transaction) (string, bool, error) {
	for _, categorizer := range c {
		if categorizer == nil {
			continue
		}
		code, ok, err := categorizer.Categorize(ctx, tx)
		if err != nil {
			return "", false, err
		}
		if ok {
			return code, true, nil
		}
	}
	return "", false, nil
}

//go:embed rules.yaml
var defaultRulesYAML []byte

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// DefaultRules returns the built-in rules.
func DefaultRules() ([]Rule, error) {
	return ParseRules(defaultRulesYAML)
}

// ParseRules reads a YAML rules document.
func ParseRules(raw []byte) ([]Rule, error) {
	var file rulesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	for i, rule := range file.Rules {
		if rule.Direction == "" {
			file.Rules[i].Direction = DirectionAny
		}
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i+1, rule.Name, err)
		}
	}
	return file.Rules, nil
}
