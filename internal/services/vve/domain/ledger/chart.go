package ledger

import (
	_ "embed"
	"fmt"

	"github.com/goccy/go-yaml"
)

// System account codes referenced by automatic postings.
const (
	AccountBank          = "1100"
	AccountReceivable    = "1300"
	AccountPrepaid       = "1600"
	AccountContributions = "8000"
)

//go:embed chart.yaml
var defaultChartYAML []byte

type chartFile struct {
	Accounts []struct {
		Code   string      `yaml:"code"`
		Name   string      `yaml:"name"`
		Type   AccountType `yaml:"type"`
		System bool        `yaml:"system"`
	} `yaml:"accounts"`
}

// DefaultChart returns the accounts seeded for associationID.
func DefaultChart(associationID string) ([]Account, error) {
	return parseChart(defaultChartYAML, associationID)
}

func parseChart(raw []byte, associationID string) ([]Account, error) {
	var file chartFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse chart of accounts: %w", err)
	}
	accounts := make([]Account, 0, len(file.Accounts))
	seen := make(map[string]struct{}, len(file.Accounts))
	for _, entry := range file.Accounts {
		if !entry.Type.Valid() {
			return nil, fmt.Errorf("chart account %s: unknown type %q", entry.Code, entry.Type)
		}
		if _, ok := seen[entry.Code]; ok {
			return nil, fmt.Errorf("chart account %s: duplicate code", entry.Code)
		}
		seen[entry.Code] = struct{}{}
		accounts = append(accounts, Account{
			AssociationID: associationID,
			Code:          entry.Code,
			Name:          entry.Name,
			Type:          entry.Type,
			System:        entry.System,
		})
	}
	return accounts, nil
}
