package store

import (
	"encoding/json"
	"slices"

	"github.com/jward/fffauto/internal/fakes"
)

// marshalArgTypes converts []string to JSON text for storage.
func marshalArgTypes(args []string) string {
	if len(args) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(args)
	return string(b)
}

// unmarshalArgTypes converts JSON text back to []string. An empty list
// decodes to nil.
func unmarshalArgTypes(s string) ([]string, error) {
	var args []string
	if err := json.Unmarshal([]byte(s), &args); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, nil
	}
	return args, nil
}

// cloneRecords deep-copies records so stored snapshots do not alias the
// caller's argument slices.
func cloneRecords(records []fakes.Record) []fakes.Record {
	out := make([]fakes.Record, len(records))
	for i, r := range records {
		r.ArgTypes = slices.Clone(r.ArgTypes)
		out[i] = r
	}
	return out
}
