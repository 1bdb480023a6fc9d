// Package schema defines the user-declared column schema for a collection:
// an ordered list of named, primitively-typed fields. The declared schema is
// independent of what the document store holds; documents may carry stray or
// missing keys and the read path must tolerate both.
package schema

import (
	"github.com/mensah/datashelf/internal/fault"
)

// FieldType is the declared primitive type of a column.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"

	// TypeArray only ever enters a schema through file-import inference.
	// Array cells round-trip as comma-joined strings, which is lossy for
	// values that themselves contain commas.
	TypeArray FieldType = "array"
)

// Field is one column declaration.
type Field struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
}

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeArray:
		return true
	}
	return false
}

// Validate checks a field list before it is accepted into the registry:
// every name nonempty and unique within the list, every type known.
func Validate(fields []Field) error {
	seen := make(map[string]bool, len(fields))
	for i, f := range fields {
		if f.Name == "" {
			return fault.Validation("field %d has an empty name", i)
		}
		if !f.Type.Valid() {
			return fault.Validation("field %q has unknown type %q", f.Name, f.Type)
		}
		if seen[f.Name] {
			return fault.Validation("duplicate field name %q", f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// Renames compares an old and a new field list positionally and returns the
// old→new name mapping for fields whose name changed while the type at
// that position stayed put. A name change with a type change is a field
// replacement, not a rename. A rename means the existing documents' keys
// must be migrated, never dropped and recreated.
func Renames(old, updated []Field) map[string]string {
	renames := make(map[string]string)
	n := len(old)
	if len(updated) < n {
		n = len(updated)
	}
	for i := 0; i < n; i++ {
		if old[i].Name != updated[i].Name && old[i].Type == updated[i].Type {
			renames[old[i].Name] = updated[i].Name
		}
	}
	return renames
}

// MigrateKeys applies field renames to a document payload in place,
// moving each old key's value to the new key. All moves happen
// simultaneously, so a swap rename ({a→b, b→a}) cannot clobber a value
// before it is read. Keys absent from the payload are skipped; nothing is
// duplicated.
func MigrateKeys(payload map[string]any, renames map[string]string) {
	moved := make(map[string]any, len(renames))
	for oldName, newName := range renames {
		if oldName == newName {
			continue
		}
		if v, ok := payload[oldName]; ok {
			moved[newName] = v
			delete(payload, oldName)
		}
	}
	for newName, v := range moved {
		payload[newName] = v
	}
}

// Summary renders the schema as "name (type), name (type), ..." for use in
// embedding text.
func Summary(fields []Field) string {
	out := ""
	for i, f := range fields {
		if i > 0 {
			out += ", "
		}
		out += f.Name + " (" + string(f.Type) + ")"
	}
	return out
}
