package vvectl

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
)

// Output formats.
const (
	FormatAuto  = "auto"
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// Table is tabular command output.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Field is one named value of a Record.
type Field struct {
	Name  string
	Value string
}

// Record is single-object command output with ordered fields.
type Record []Field

type printer struct {
	out    io.Writer
	format string
}

func newPrinter(out io.Writer, format string) (printer, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case "", FormatAuto:
		format = detectFormat(out)
	case FormatTable, FormatJSON, FormatYAML:
	default:
		return printer{}, fmt.Errorf("invalid output %q: must be one of auto, table, json, yaml", format)
	}
	return printer{out: out, format: format}, nil
}

// detectFormat prints tables to terminals and JSON to pipes.
func detectFormat(out io.Writer) string {
	file, ok := out.(*os.File)
	if !ok {
		return FormatTable
	}
	if isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd()) {
		return FormatTable
	}
	return FormatJSON
}

func (p printer) table(t Table) error {
	switch p.format {
	case FormatJSON, FormatYAML:
		items := make([]map[string]string, 0, len(t.Rows))
		for _, row := range t.Rows {
			item := make(map[string]string, len(t.Headers))
			for i, header := range t.Headers {
				if i < len(row) {
					item[fieldKey(header)] = row[i]
				}
			}
			items = append(items, item)
		}
		return p.encode(items)
	}
	table := tablewriter.NewTable(p.out)
	headers := make([]any, len(t.Headers))
	for i, header := range t.Headers {
		headers[i] = header
	}
	table.Header(headers...)
	for _, row := range t.Rows {
		cells := make([]any, len(row))
		for i, cell := range row {
			cells[i] = cell
		}
		if err := table.Append(cells...); err != nil {
			return err
		}
	}
	return table.Render()
}

func (p printer) record(r Record) error {
	switch p.format {
	case FormatJSON, FormatYAML:
		item := make(map[string]string, len(r))
		for _, field := range r {
			item[fieldKey(field.Name)] = field.Value
		}
		return p.encode(item)
	}
	rows := make([][]string, 0, len(r))
	for _, field := range r {
		rows = append(rows, []string{field.Name, field.Value})
	}
	return p.table(Table{Headers: []string{"Field", "Value"}, Rows: rows})
}

func (p printer) encode(data any) error {
	if p.format == FormatYAML {
		raw, err := yaml.MarshalWithOptions(data, yaml.Indent(2), yaml.IndentSequence(false))
		if err != nil {
			return err
		}
		_, err = p.out.Write(raw)
		return err
	}
	encoder := json.NewEncoder(p.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// fieldKey turns a display header into a snake_case key.
func fieldKey(header string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(header)), " ", "_")
}
