package csvimport

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/transform"

	"github.com/louisbranch/vvebeheer/internal/platform/money"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/banking"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Parse reads a statement. Row problems are reported per line; only an
// unreadable file or a missing column fails the whole parse.
func (p Profile) Parse(r io.Reader) ([]banking.StatementRow, []banking.RowError, error) {
	if r == nil {
		return nil, nil, errors.New("statement is empty")
	}
	input := bufio.NewReader(r)
	if head, err := input.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = input.Discard(len(utf8BOM))
	}
	var source io.Reader = input
	decoder, err := p.decoder()
	if err != nil {
		return nil, nil, err
	}
	if decoder != nil {
		source = transform.NewReader(input, decoder)
	}

	reader := csv.NewReader(source)
	reader.Comma = []rune(p.Delimiter)[0]
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	layout := columnLayout{}
	if p.Header {
		header, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil, nil, errors.New("statement is empty")
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read header: %w", err)
		}
		layout.byName = make(map[string]int, len(header))
		for i, name := range header {
			layout.byName[headerKey(name)] = i
		}
		for _, ref := range p.required() {
			if _, ok := layout.index(ref); !ok {
				return nil, nil, fmt.Errorf("column %q not found", ref)
			}
		}
	}

	var (
		rows   []banking.StatementRow
		failed []banking.RowError
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				failed = append(failed, banking.RowError{Line: parseErr.Line, Message: parseErr.Err.Error()})
				continue
			}
			return rows, failed, fmt.Errorf("read statement: %w", err)
		}
		line, _ := reader.FieldPos(0)
		if blank(record) {
			continue
		}
		row, err := p.row(layout, record)
		if err != nil {
			failed = append(failed, banking.RowError{Line: line, Message: err.Error()})
			continue
		}
		row.Line = line
		rows = append(rows, row)
	}
	return rows, failed, nil
}

func (p Profile) row(layout columnLayout, record []string) (banking.StatementRow, error) {
	get := func(ref string) string { return layout.value(record, ref) }

	rawDate := get(p.Columns.Date)
	date, err := p.parseDate(rawDate)
	if err != nil {
		return banking.StatementRow{}, err
	}
	amount, err := p.parseAmount(get(p.Columns.Amount))
	if err != nil {
		return banking.StatementRow{}, err
	}
	if p.Indicator != nil {
		amount = amount.Abs()
		indicator := strings.TrimSpace(get(p.Indicator.Column))
		for _, debit := range p.Indicator.Debit {
			if strings.EqualFold(indicator, debit) {
				amount = amount.Neg()
				break
			}
		}
	}

	var parts []string
	for _, ref := range p.Columns.Description {
		if value := get(ref); value != "" {
			parts = append(parts, value)
		}
	}
	row := banking.StatementRow{
		ExternalID:       get(p.Columns.ExternalID),
		BookingDate:      date,
		Amount:           amount,
		Currency:         strings.ToUpper(get(p.Columns.Currency)),
		Description:      strings.Join(strings.Fields(strings.Join(parts, " ")), " "),
		CounterpartyName: get(p.Columns.CounterpartyName),
		CounterpartyIBAN: get(p.Columns.CounterpartyIBAN),
		AccountIBAN:      get(p.Columns.AccountIBAN),
	}
	if p.SEPATags {
		applySEPATags(&row)
	}
	return row, nil
}

func (p Profile) parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("date is empty")
	}
	for _, layout := range p.DateLayouts {
		if date, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return date, nil
		}
	}
	return time.Time{}, fmt.Errorf("date %q does not match %s", raw, strings.Join(p.DateLayouts, ", "))
}

func (p Profile) parseAmount(raw string) (decimal.Decimal, error) {
	value := strings.TrimSpace(raw)
	switch p.Decimal {
	case DecimalComma:
		value = strings.ReplaceAll(value, ".", "")
	case DecimalDot:
		value = strings.ReplaceAll(value, ",", "")
	}
	amount, err := money.Parse(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q: %w", raw, err)
	}
	return amount, nil
}

var sepaTag = regexp.MustCompile(`/(TRTP|IBAN|BIC|NAME|REMI|EREF|MARF|CSID)/`)

// applySEPATags splits "/TRTP/SEPA OVERBOEKING/IBAN/NL.../NAME/X/REMI/Y"
// descriptions into counterparty fields and the remittance text.
func applySEPATags(row *banking.StatementRow) {
	matches := sepaTag.FindAllStringSubmatchIndex(row.Description, -1)
	if len(matches) == 0 {
		return
	}
	fields := make(map[string]string, len(matches))
	for i, match := range matches {
		end := len(row.Description)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		fields[row.Description[match[2]:match[3]]] = strings.TrimSpace(row.Description[match[1]:end])
	}
	if row.CounterpartyIBAN == "" {
		row.CounterpartyIBAN = fields["IBAN"]
	}
	if row.CounterpartyName == "" {
		row.CounterpartyName = fields["NAME"]
	}
	if remi, ok := fields["REMI"]; ok {
		row.Description = remi
	}
	if row.ExternalID == "" && fields["EREF"] != "" && !strings.EqualFold(fields["EREF"], "NOTPROVIDED") {
		row.ExternalID = fields["EREF"]
	}
}

type columnLayout struct {
	byName map[string]int
}

func (l columnLayout) index(ref string) (int, bool) {
	if i, ok := columnIndex(ref); ok {
		return i, true
	}
	i, ok := l.byName[headerKey(ref)]
	return i, ok
}

func (l columnLayout) value(record []string, ref string) string {
	if ref == "" {
		return ""
	}
	i, ok := l.index(ref)
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func headerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(strings.Trim(name, "\"")))
}

func blank(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
