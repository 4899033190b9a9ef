// Package importer turns uploaded tabular data into ledger import rows.
// Parsing problems are reported per row; they never abort the whole upload.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/goccy/go-json"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"raffle/internal/models"
)

// MaxEntries caps the entries a single row or request may credit.
const MaxEntries = math.MaxInt32

// RowError describes a row that could not be turned into an ImportRow.
type RowError struct {
	Line int    `json:"line"`
	Err  string `json:"error"`
}

const rowSchemaJSON = `{
	"type": "object",
	"required": ["name"],
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"activity": {"type": "string"},
		"entries": {"type": "integer", "minimum": 0, "maximum": 2147483647}
	},
	"additionalProperties": false
}`

var rowSchema = jsonschema.MustCompileString("import_row.schema.json", rowSchemaJSON)

// ParseJSON decodes {"rows": [...]} and validates each row on its own.
// A row with an activity but no entries field gets one entry.
func ParseJSON(body []byte) ([]models.ImportRow, []RowError, error) {
	var doc struct {
		Rows []json.RawMessage `json:"rows"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, nil, fmt.Errorf("decode import body: %w", err)
	}

	rows := make([]models.ImportRow, 0, len(doc.Rows))
	var rowErrs []RowError
	for i, raw := range doc.Rows {
		line := i + 1

		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Err: err.Error()})
			continue
		}
		if err := rowSchema.Validate(generic); err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Err: schemaMessage(err)})
			continue
		}

		var r struct {
			Name     string `json:"name"`
			Activity string `json:"activity"`
			Entries  *int   `json:"entries"`
		}
		if err := json.Unmarshal(raw, &r); err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Err: err.Error()})
			continue
		}
		rows = append(rows, newRow(line, r.Name, r.Activity, r.Entries))
	}
	return rows, rowErrs, nil
}

// ParseCSV reads name,activity,entries records. The header row is optional
// and the last two columns may be omitted.
func ParseCSV(r io.Reader) ([]models.ImportRow, []RowError, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var (
		rows    []models.ImportRow
		rowErrs []RowError
		first   = true
	)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				rowErrs = append(rowErrs, RowError{Line: perr.StartLine, Err: perr.Error()})
				first = false
				continue
			}
			return rows, rowErrs, fmt.Errorf("read csv: %w", err)
		}
		// csv.Reader skips empty lines, so take the line from the reader.
		line, _ := reader.FieldPos(0)
		if first {
			first = false
			if isHeader(record) {
				continue
			}
		}
		if isBlank(record) {
			continue
		}
		if len(record) > 3 {
			rowErrs = append(rowErrs, RowError{Line: line, Err: fmt.Sprintf("expected at most 3 columns, got %d", len(record))})
			continue
		}

		name := strings.TrimSpace(record[0])
		activity := ""
		if len(record) > 1 {
			activity = strings.TrimSpace(record[1])
		}
		var entries *int
		if len(record) > 2 && strings.TrimSpace(record[2]) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(record[2]))
			if err != nil || n > MaxEntries {
				rowErrs = append(rowErrs, RowError{Line: line, Err: fmt.Sprintf("invalid entries %q", record[2])})
				continue
			}
			entries = &n
		}
		rows = append(rows, newRow(line, name, activity, entries))
	}
	return rows, rowErrs, nil
}

func newRow(line int, name, activity string, entries *int) models.ImportRow {
	row := models.ImportRow{Line: line, Name: name, Activity: activity}
	switch {
	case entries != nil:
		row.Entries = *entries
	case strings.TrimSpace(activity) != "":
		row.Entries = 1
	}
	return row
}

// isHeader reports whether the first cell names the participant column, as in
// "Name", "Employee Name" or "caregiver_name". Words are matched whole so a
// participant such as "Staffan" is not taken for a header.
func isHeader(record []string) bool {
	first := strings.ToLower(strings.TrimPrefix(record[0], "\xef\xbb\xbf"))
	words := strings.FieldsFunc(first, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		if headerWords[w] {
			return true
		}
	}
	return false
}

var headerWords = map[string]bool{
	"name": true, "employee": true, "caregiver": true,
	"staff": true, "participant": true,
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func schemaMessage(err error) string {
	var verr *jsonschema.ValidationError
	if errors.As(err, &verr) {
		leaf := verr
		for len(leaf.Causes) > 0 {
			leaf = leaf.Causes[0]
		}
		if leaf.InstanceLocation != "" {
			return leaf.InstanceLocation + ": " + leaf.Message
		}
		return leaf.Message
	}
	return err.Error()
}
