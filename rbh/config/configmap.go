// Package config parses backend URIs and connection strings into typed
// option structs, grounded on the teacher's fs/config/configmap and
// fs/config/configstruct packages: a priority-ordered string-to-string map
// feeds a reflect-based Set, reused here for both rbh: source/target URIs
// and Mongo-style connection strings.
package config

import (
	"sort"
	"strings"
)

// Priority of a Getter registered on a Map: getters with a lower Priority
// value are consulted first, so PriorityNormal overrides PriorityConfig,
// which overrides PriorityDefault.
type Priority int8

const (
	PriorityNormal Priority = iota
	PriorityConfig
	PriorityDefault
	PriorityMax
)

// Getter provides name lookups, lowest-level building block of a Map.
type Getter interface {
	Get(key string) (value string, ok bool)
}

// Setter accepts name/value writes.
type Setter interface {
	Set(key, value string)
}

// Mapper is a combined Getter/Setter, the interface option structs are
// populated from.
type Mapper interface {
	Getter
	Setter
}

// Simple is a plain map-backed Mapper, grounded on configmap.Simple.
type Simple map[string]string

// Get implements Getter.
func (c Simple) Get(key string) (value string, ok bool) {
	value, ok = c[key]
	return value, ok
}

// Set implements Setter.
func (c Simple) Set(key, value string) {
	c[key] = value
}

// String renders c as a sorted, comma-separated key='value' list.
func (c Simple) String() string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteString("='")
		b.WriteString(c[k])
		b.WriteByte('\'')
	}
	return b.String()
}

type getprio struct {
	g Getter
	p Priority
}

// Map layers multiple Getters (lowest Priority value first) and Setters (in
// registration order) behind a single Mapper, the way a connection string
// overrides a backend's own defaults.
type Map struct {
	getters []getprio
	setters []Setter
}

// New returns an empty Map.
func New() *Map {
	return &Map{}
}

// AddGetter registers g at priority p, keeping getters sorted by ascending
// Priority value (stable within a priority tier).
func (m *Map) AddGetter(g Getter, p Priority) *Map {
	m.getters = append(m.getters, getprio{g, p})
	sort.SliceStable(m.getters, func(i, j int) bool {
		return m.getters[i].p < m.getters[j].p
	})
	return m
}

// AddSetter registers s; Set writes to every registered setter.
func (m *Map) AddSetter(s Setter) *Map {
	m.setters = append(m.setters, s)
	return m
}

// ClearGetters removes every getter registered at priority p.
func (m *Map) ClearGetters(p Priority) {
	kept := m.getters[:0]
	for _, gp := range m.getters {
		if gp.p != p {
			kept = append(kept, gp)
		}
	}
	if kept == nil {
		kept = []getprio{}
	}
	m.getters = kept
}

// ClearSetters removes every registered setter.
func (m *Map) ClearSetters() {
	m.setters = nil
}

// Get looks up key across every registered getter, highest priority first.
func (m *Map) Get(key string) (value string, ok bool) {
	return m.GetPriority(key, PriorityMax)
}

// GetPriority looks up key only among getters registered at priority <= max.
func (m *Map) GetPriority(key string, max Priority) (value string, ok bool) {
	for _, gp := range m.getters {
		if gp.p > max {
			continue
		}
		if value, ok = gp.g.Get(key); ok {
			return value, true
		}
	}
	return "", false
}

// Set writes key=value to every registered setter.
func (m *Map) Set(key, value string) {
	for _, s := range m.setters {
		s.Set(key, value)
	}
}
