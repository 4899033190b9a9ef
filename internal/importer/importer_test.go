package importer

import (
	"strings"
	"testing"
)

func TestParseCSV(t *testing.T) {
	input := "\xef\xbb\xbfName,Activity,Entries\n" +
		"Alice,demo,3\n" +
		"Bob,survey\n" +
		"Carol\n" +
		"\n" +
		"Dave,demo,two\n" +
		"Erin,demo,1,extra\n" +
		"Frank,demo,0\n"

	rows, rowErrs, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}

	if len(rows) != 4 {
		t.Fatalf("Expected 4 rows, but got %d: %+v", len(rows), rows)
	}
	if rows[0].Name != "Alice" || rows[0].Activity != "demo" || rows[0].Entries != 3 {
		t.Errorf("Unexpected first row %+v", rows[0])
	}
	if rows[1].Entries != 1 {
		t.Errorf("Expected a missing entries column to default to 1, but got %d", rows[1].Entries)
	}
	if rows[2].Name != "Carol" || rows[2].Activity != "" || rows[2].Entries != 0 {
		t.Errorf("Expected a name-only row, but got %+v", rows[2])
	}
	if rows[3].Name != "Frank" || rows[3].Entries != 0 {
		t.Errorf("Expected explicit zero entries to be kept for the ledger to reject, but got %+v", rows[3])
	}

	if len(rowErrs) != 2 {
		t.Fatalf("Expected 2 row errors, but got %+v", rowErrs)
	}
	if rowErrs[0].Line != 6 || rowErrs[1].Line != 7 {
		t.Errorf("Expected errors on lines 6 and 7, but got %+v", rowErrs)
	}
}

func TestParseCSV_NoHeader(t *testing.T) {
	rows, rowErrs, err := ParseCSV(strings.NewReader("Staffan,demo,2\n"))
	if err != nil || len(rowErrs) != 0 {
		t.Fatalf("Expected a clean parse, but got %v %+v", err, rowErrs)
	}
	if len(rows) != 1 || rows[0].Name != "Staffan" || rows[0].Line != 1 {
		t.Errorf("Expected the first line to be data, but got %+v", rows)
	}
}

func TestParseCSV_HeaderVariants(t *testing.T) {
	for _, header := range []string{"Caregiver Name", "Staff Name", "employee_name", "\xef\xbb\xbfNAME"} {
		rows, rowErrs, err := ParseCSV(strings.NewReader(header + "\nAlice\n"))
		if err != nil || len(rowErrs) != 0 {
			t.Fatalf("%q: expected a clean parse, but got %v %+v", header, err, rowErrs)
		}
		if len(rows) != 1 || rows[0].Name != "Alice" {
			t.Errorf("%q: expected the header to be skipped, but got %+v", header, rows)
		}
	}
}

func TestParseCSV_EntriesCap(t *testing.T) {
	input := "Alice,demo,2147483647\nBob,demo,2147483648\nCarol,demo,9223372036854775807\n"
	rows, rowErrs, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	if len(rows) != 1 || rows[0].Entries != MaxEntries {
		t.Errorf("Expected only Alice at the cap, but got %+v", rows)
	}
	if len(rowErrs) != 2 || rowErrs[0].Line != 2 || rowErrs[1].Line != 3 {
		t.Errorf("Expected errors on lines 2 and 3, but got %+v", rowErrs)
	}
}

func TestParseJSON(t *testing.T) {
	body := `{"rows": [
		{"name": "Alice", "activity": "demo", "entries": 2},
		{"name": "Bob", "activity": "survey"},
		{"name": "Carol"},
		{"name": "", "activity": "demo"},
		{"name": "Dave", "activity": "demo", "entries": 1.5},
		{"name": "Erin", "activity": "demo", "entries": -1},
		{"name": "Frank", "bonus": true},
		"not an object"
	]}`

	rows, rowErrs, err := ParseJSON([]byte(body))
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}

	if len(rows) != 3 {
		t.Fatalf("Expected 3 valid rows, but got %d: %+v", len(rows), rows)
	}
	if rows[0].Entries != 2 || rows[1].Entries != 1 || rows[2].Entries != 0 {
		t.Errorf("Unexpected entries %+v", rows)
	}

	wantLines := []int{4, 5, 6, 7, 8}
	if len(rowErrs) != len(wantLines) {
		t.Fatalf("Expected %d row errors, but got %+v", len(wantLines), rowErrs)
	}
	for i, line := range wantLines {
		if rowErrs[i].Line != line || rowErrs[i].Err == "" {
			t.Errorf("row error %d: expected line %d with a message, but got %+v", i, line, rowErrs[i])
		}
	}
}

func TestParseJSON_BadBody(t *testing.T) {
	if _, _, err := ParseJSON([]byte(`{"rows": `)); err == nil {
		t.Fatalf("Expected an error for a truncated body")
	}
}

func TestParseJSON_EntriesCap(t *testing.T) {
	rows, rowErrs, err := ParseJSON([]byte(`{"rows": [{"name": "Alice", "activity": "a", "entries": 2147483647}, {"name": "Bob", "activity": "a", "entries": 2147483648}]}`))
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	if len(rows) != 1 || rows[0].Name != "Alice" {
		t.Errorf("Expected only Alice, but got %+v", rows)
	}
	if len(rowErrs) != 1 || rowErrs[0].Line != 2 {
		t.Errorf("Expected an error on row 2, but got %+v", rowErrs)
	}
}
