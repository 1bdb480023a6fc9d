package dataset

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/mensah/datashelf/internal/coerce"
	"github.com/mensah/datashelf/internal/fault"
	"github.com/mensah/datashelf/internal/schema"
	"github.com/mensah/datashelf/internal/storage"
)

// Import seeds a collection from an uploaded CSV or JSON file. The schema
// is inferred from the first record (column order preserved for CSV) and
// replaces any existing schema; the rows are appended as documents. The
// collection stays in its current publication state.
func (m *Manager) Import(ctx context.Context, callerID, collectionID, filename string, content []byte) (int, error) {
	col, err := m.requireOwner(collectionID, callerID)
	if err != nil {
		return 0, err
	}

	var (
		fields []schema.Field
		rows   []map[string]any
	)
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".csv":
		fields, rows, err = parseCSV(content)
	case ".json":
		fields, rows, err = parseJSON(content)
	default:
		return 0, fault.Validation("unsupported import format %q; expected .csv or .json", ext)
	}
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, fault.Validation("file %s contains no records", filename)
	}

	// An import replaces the schema outright. Writing it straight to the
	// store skips rename detection, which would otherwise pair imported
	// columns with old same-typed ones by position and rewrite keys on
	// pre-existing documents.
	if err := m.store.SetSchema(col.DatabaseID, col.ID, fields); err != nil {
		return 0, fmt.Errorf("replacing schema: %w", err)
	}
	for _, row := range rows {
		if err := m.store.InsertDocument(storage.Document{
			ID:           uuid.New().String(),
			DatabaseID:   col.DatabaseID,
			CollectionID: col.ID,
			OwnerID:      col.OwnerID,
			Payload:      row,
		}); err != nil {
			return 0, fmt.Errorf("importing document: %w", err)
		}
	}
	return len(rows), nil
}

// parseCSV reads a headered CSV, typing each cell dynamically: numbers
// parse to float64, the literals true/false to bool, everything else stays
// a string. Column types are inferred from the first data row.
func parseCSV(content []byte) ([]schema.Field, []map[string]any, error) {
	r := csv.NewReader(bytes.NewReader(content))
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fault.Validation("malformed CSV: %v", err)
	}
	if len(records) < 2 {
		return nil, nil, fault.Validation("CSV needs a header row and at least one data row")
	}

	header := records[0]
	rows := make([]map[string]any, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]any, len(header))
		for i, name := range header {
			if i >= len(rec) {
				break
			}
			row[name] = typeCell(rec[i])
		}
		rows = append(rows, row)
	}

	fields := make([]schema.Field, 0, len(header))
	for _, name := range header {
		fields = append(fields, schema.Field{Name: name, Type: coerce.Infer(rows[0][name])})
	}
	if err := schema.Validate(fields); err != nil {
		return nil, nil, err
	}
	return fields, rows, nil
}

// parseJSON reads an array of flat objects. Field order follows the first
// object's keys as they appear in the document.
func parseJSON(content []byte) ([]schema.Field, []map[string]any, error) {
	var rows []map[string]any
	if err := json.Unmarshal(content, &rows); err != nil {
		return nil, nil, fault.Validation("malformed JSON: %v", err)
	}
	if len(rows) == 0 {
		return nil, nil, fault.Validation("JSON array is empty")
	}

	names, err := jsonKeyOrder(content)
	if err != nil || len(names) == 0 {
		// Fall back to the unmarshalled map; order is then unspecified.
		names = names[:0]
		for name := range rows[0] {
			names = append(names, name)
		}
	}
	fields := make([]schema.Field, 0, len(names))
	for _, name := range names {
		fields = append(fields, schema.Field{Name: name, Type: coerce.Infer(rows[0][name])})
	}
	if err := schema.Validate(fields); err != nil {
		return nil, nil, err
	}
	return fields, rows, nil
}

// jsonKeyOrder extracts the key order of the first object in a JSON array,
// which maps do not preserve.
func jsonKeyOrder(content []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(content))
	if _, err := dec.Token(); err != nil { // [
		return nil, err
	}
	if _, err := dec.Token(); err != nil { // {
		return nil, err
	}
	var names []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v in object", tok)
		}
		names = append(names, name)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return names, nil
}

// typeCell applies CSV dynamic typing to a single cell.
func typeCell(raw string) any {
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	return raw
}
