package flatten

import (
	"bufio"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/playbookd/sourcekit/internal/models"
)

// TableRows converts result records into table rows: one column per field,
// all values stringified, nested objects and lists JSON-encoded into a
// single cell. Column order is sorted field name unless columns is given.
func TableRows(records []map[string]any, columns []string) []models.TableRow {
	rows := make([]models.TableRow, 0, len(records))
	for _, rec := range records {
		cols := columns
		if len(cols) == 0 {
			cols = make([]string, 0, len(rec))
			for k := range rec {
				cols = append(cols, k)
			}
			sort.Strings(cols)
		}

		row := models.TableRow{Columns: make([]models.TableColumn, 0, len(cols))}
		for _, name := range cols {
			row.Columns = append(row.Columns, models.TableColumn{
				Name:  name,
				Value: Stringify(rec[name]),
			})
		}
		rows = append(rows, row)
	}
	return rows
}

// Stringify renders any cell value as a string; this lossy normalization is
// deliberate so table consumers never see mixed types.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// NDJSONRecords parses newline-delimited JSON into records. Blank and
// malformed lines are skipped; a result wrapper line ({"result":{...}}) is
// unwrapped, matching Coralogix DataPrime output.
func NDJSONRecords(body string) []map[string]any {
	var records []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if wrapped, ok := rec["result"].(map[string]any); ok {
			rec = wrapped
		}
		records = append(records, rec)
	}
	return records
}
