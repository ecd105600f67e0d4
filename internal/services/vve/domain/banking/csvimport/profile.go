// Package csvimport parses bank CSV exports into statement rows.
package csvimport

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-yaml"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// DecimalStyle tells how amounts are written.
type DecimalStyle string

const (
	// DecimalAuto accepts both "1.234,56" and "1234.56".
	DecimalAuto DecimalStyle = "auto"
	// DecimalComma is Dutch notation, "1.234,56".
	DecimalComma DecimalStyle = "comma"
	// DecimalDot is "1,234.56".
	DecimalDot DecimalStyle = "dot"
)

// Columns maps statement fields to CSV columns.
type Columns struct {
	ExternalID       string   `yaml:"external_id"`
	Date             string   `yaml:"date"`
	Amount           string   `yaml:"amount"`
	Currency         string   `yaml:"currency"`
	Description      []string `yaml:"description"`
	CounterpartyName string   `yaml:"counterparty_name"`
	CounterpartyIBAN string   `yaml:"counterparty_iban"`
	AccountIBAN      string   `yaml:"account_iban"`
}

// Indicator is a debit/credit column for exports with unsigned amounts.
type Indicator struct {
	Column string   `yaml:"column"`
	Debit  []string `yaml:"debit"`
}

// Profile describes one bank's export format.
type Profile struct {
	Name        string       `yaml:"name"`
	Delimiter   string       `yaml:"delimiter"`
	Header      bool         `yaml:"header"`
	Encoding    string       `yaml:"encoding"`
	DateLayouts []string     `yaml:"date_layouts"`
	Decimal     DecimalStyle `yaml:"decimal"`
	Indicator   *Indicator   `yaml:"indicator"`
	// SEPATags reads /IBAN/, /NAME/ and /REMI/ fields out of the
	// description.
	SEPATags bool    `yaml:"sepa_tags"`
	Columns  Columns `yaml:"columns"`
}

type profilesFile struct {
	Profiles []Profile `yaml:"profiles"`
}

//go:embed profiles.yaml
var builtinYAML []byte

// Builtin returns the bundled profiles.
func Builtin() ([]Profile, error) {
	return ParseProfiles(builtinYAML)
}

// LoadProfiles reads extra profiles from a YAML file.
func LoadProfiles(path string) ([]Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	return ParseProfiles(raw)
}

// ParseProfiles reads a YAML profiles document.
func ParseProfiles(raw []byte) ([]Profile, error) {
	var file profilesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	for i := range file.Profiles {
		if err := file.Profiles[i].normalize(); err != nil {
			return nil, fmt.Errorf("profile %d: %w", i+1, err)
		}
	}
	return file.Profiles, nil
}

func (p *Profile) normalize() error {
	p.Name = strings.ToLower(strings.TrimSpace(p.Name))
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if p.Delimiter == "" {
		p.Delimiter = ","
	}
	if utf8.RuneCountInString(p.Delimiter) != 1 {
		return fmt.Errorf("%s: delimiter must be one character", p.Name)
	}
	if p.Decimal == "" {
		p.Decimal = DecimalAuto
	}
	switch p.Decimal {
	case DecimalAuto, DecimalComma, DecimalDot:
	default:
		return fmt.Errorf("%s: unknown decimal style %q", p.Name, p.Decimal)
	}
	if len(p.DateLayouts) == 0 {
		p.DateLayouts = []string{"2006-01-02"}
	}
	if p.Columns.Date == "" || p.Columns.Amount == "" {
		return fmt.Errorf("%s: date and amount columns are required", p.Name)
	}
	if p.Indicator != nil && (p.Indicator.Column == "" || len(p.Indicator.Debit) == 0) {
		return fmt.Errorf("%s: indicator needs a column and debit values", p.Name)
	}
	if _, err := p.decoder(); err != nil {
		return err
	}
	if !p.Header {
		for _, ref := range p.references() {
			if _, ok := columnIndex(ref); !ok {
				return fmt.Errorf("%s: column %q must be #N without a header", p.Name, ref)
			}
		}
	}
	return nil
}

func (p Profile) references() []string {
	refs := []string{p.Columns.ExternalID, p.Columns.Date, p.Columns.Amount, p.Columns.Currency,
		p.Columns.CounterpartyName, p.Columns.CounterpartyIBAN, p.Columns.AccountIBAN}
	refs = append(refs, p.Columns.Description...)
	if p.Indicator != nil {
		refs = append(refs, p.Indicator.Column)
	}
	out := refs[:0]
	for _, ref := range refs {
		if ref != "" {
			out = append(out, ref)
		}
	}
	return out
}

// required lists the columns a file must have; the others may be absent.
func (p Profile) required() []string {
	refs := []string{p.Columns.Date, p.Columns.Amount}
	if p.Indicator != nil {
		refs = append(refs, p.Indicator.Column)
	}
	return refs
}

func (p Profile) decoder() (*encoding.Decoder, error) {
	switch strings.ToLower(strings.TrimSpace(p.Encoding)) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder(), nil
	case "iso-8859-1", "latin1":
		return charmap.ISO8859_1.NewDecoder(), nil
	case "iso-8859-15", "latin9":
		return charmap.ISO8859_15.NewDecoder(), nil
	}
	return nil, fmt.Errorf("%s: unsupported encoding %q", p.Name, p.Encoding)
}

// columnIndex reads a "#N" reference as a zero-based index.
func columnIndex(ref string) (int, bool) {
	if !strings.HasPrefix(ref, "#") {
		return 0, false
	}
	n, err := strconv.Atoi(ref[1:])
	if err != nil || n < 1 {
		return 0, false
	}
	return n - 1, true
}
