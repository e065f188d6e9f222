// Package fakes turns syntax nodes into FFF fake records and renders them
// as fake-function-framework macros.
package fakes

import "slices"

// Record is the resolved signature of one function to fake.
type Record struct {
	Name string
	// ReturnType is empty or "void" for functions returning nothing.
	ReturnType string
	// ArgTypes is nil for functions taking no arguments.
	ArgTypes []string
}

// IsVoid reports whether the record selects the VOID macro family.
func (r Record) IsVoid() bool {
	return r.ReturnType == "" || r.ReturnType == "void"
}

// Equal reports full-field equality: name, return type and the ordered
// argument types. A nil and an empty argument list are equal.
func (r Record) Equal(o Record) bool {
	return r.Name == o.Name &&
		r.ReturnType == o.ReturnType &&
		slices.Equal(r.ArgTypes, o.ArgTypes)
}

// Set is an ordered collection of records keyed by name. Records keep the
// position at which their name was first added. The zero value is an empty
// set ready to use; a nil *Set reads as empty.
type Set struct {
	order  []string
	byName map[string]Record
}

// NewSet returns a set holding records in order. Later records replace
// earlier ones with the same name.
func NewSet(records ...Record) *Set {
	s := &Set{}
	for _, r := range records {
		s.Put(r)
	}
	return s
}

// Put inserts r, or replaces the record with the same name in place.
func (s *Set) Put(r Record) {
	if s.byName == nil {
		s.byName = make(map[string]Record)
	}
	if _, ok := s.byName[r.Name]; !ok {
		s.order = append(s.order, r.Name)
	}
	s.byName[r.Name] = r
}

// Delete removes the record named name, if present.
func (s *Set) Delete(name string) {
	if s == nil {
		return
	}
	if _, ok := s.byName[name]; !ok {
		return
	}
	delete(s.byName, name)
	s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == name })
}

// Get returns the record named name.
func (s *Set) Get(name string) (Record, bool) {
	if s == nil {
		return Record{}, false
	}
	r, ok := s.byName[name]
	return r, ok
}

// Len returns the number of records.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Records returns the records in set order.
func (s *Set) Records() []Record {
	if s == nil {
		return nil
	}
	out := make([]Record, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.byName[name])
	}
	return out
}

// Names returns the record names in set order.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	return slices.Clone(s.order)
}

// Difference returns the records of s that have no equal record in prior,
// in the order of s. A record whose signature changed counts as new.
func (s *Set) Difference(prior *Set) *Set {
	diff := &Set{}
	for _, r := range s.Records() {
		if old, ok := prior.Get(r.Name); ok && old.Equal(r) {
			continue
		}
		diff.Put(r)
	}
	return diff
}
