// Package diff computes the minimal write set between an original snapshot
// of a collection's records and the edited snapshot coming back from the
// editor.
//
// Deletes are never inferred from absence: a record missing from the edited
// set is left alone. Only an explicit row-removal action issues a delete,
// and that happens outside this package.
package diff

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// IDKey is the reserved payload key carrying the store-assigned identity.
// Records created client-side have no value under this key until first save.
const IDKey = "_id"

// Record is an editor-shaped row: a free-form key→value payload, possibly
// carrying the store id under IDKey.
type Record = map[string]any

// WriteSet is the minimal set of writes needed to reconcile edited against
// original.
type WriteSet struct {
	Inserts []Record
	Updates []Record
}

// Compute splits edited records into inserts and updates against the
// original snapshot. A record with no id is an insert (the id key is
// stripped from the emitted record). A record with an id is an update only
// if its serialized form differs from the original's; unmodified records
// are dropped. An edited id that is absent from original is still emitted
// as an update — the store's upsert semantics absorb stale client state.
//
// The comparison is schema-agnostic deep structural equality: stray keys
// not in the current schema still count, since the write must round-trip
// whatever the store already holds.
func Compute(original, edited []Record) WriteSet {
	byID := make(map[string]Record, len(original))
	for _, rec := range original {
		if id, ok := rec[IDKey].(string); ok && id != "" {
			byID[id] = rec
		}
	}

	var ws WriteSet
	for _, rec := range edited {
		id, _ := rec[IDKey].(string)
		if id == "" {
			insert := make(Record, len(rec))
			for k, v := range rec {
				if k == IDKey {
					continue
				}
				insert[k] = v
			}
			ws.Inserts = append(ws.Inserts, insert)
			continue
		}

		orig, exists := byID[id]
		if exists && serialize(orig) == serialize(rec) {
			continue
		}
		ws.Updates = append(ws.Updates, rec)
	}
	return ws
}

// serialize renders a value deterministically: map keys sorted, floats in
// canonical form. encoding/json is not used because payloads may legally
// hold NaN (a failed number coercion), which json.Marshal rejects.
func serialize(v any) string {
	var b strings.Builder
	writeValue(&b, v)
	return b.String()
}

func writeValue(b *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case string:
		b.WriteString(strconv.Quote(val))
	case bool:
		b.WriteString(strconv.FormatBool(val))
	case float64:
		if math.IsNaN(val) {
			b.WriteString("NaN")
			return
		}
		b.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
	case float32:
		writeValue(b, float64(val))
	case int:
		b.WriteString(strconv.Itoa(val))
	case int64:
		b.WriteString(strconv.FormatInt(val, 10))
	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeValue(b, item)
		}
		b.WriteByte(']')
	case []string:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(item))
		}
		b.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(k))
			b.WriteByte(':')
			writeValue(b, val[k])
		}
		b.WriteByte('}')
	default:
		// Unknown types compare by Go's default formatting.
		fmt.Fprintf(b, "%v", val)
	}
}
