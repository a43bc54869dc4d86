// Package fieldtype maps between canonical field types and each provider's
// native type vocabulary.
//
// Tables are static per provider. Lookups never fail: an unrecognized native
// type reads as text, and a canonical type without a native counterpart is
// written as the provider's text type.
package fieldtype

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/formsync/pkg/connector/core"
)

// Entry associates one native type with a canonical type. Preferred marks the
// native type written for that canonical type; exactly one entry per
// canonical type may be preferred.
type Entry struct {
	Native    string
	Canonical core.CanonicalType
	Preferred bool
}

// Mapper is a provider's bidirectional type table
type Mapper struct {
	provider    string
	toCanonical map[string]core.CanonicalType
	toNative    map[core.CanonicalType]string
}

var _ core.TypeMapper = (*Mapper)(nil)

// New builds a mapper. The table must carry a preferred entry for text, and
// every preferred native type must read back as its own canonical type so
// round trips settle after one step.
func New(provider string, entries []Entry) (*Mapper, error) {
	m := &Mapper{
		provider:    provider,
		toCanonical: make(map[string]core.CanonicalType, len(entries)),
		toNative:    make(map[core.CanonicalType]string),
	}

	for _, e := range entries {
		if !e.Canonical.Valid() {
			return nil, fmt.Errorf("%s: native type %q maps to unknown canonical type %q", provider, e.Native, e.Canonical)
		}
		key := normalizeNative(e.Native)
		if prev, ok := m.toCanonical[key]; ok && prev != e.Canonical {
			return nil, fmt.Errorf("%s: native type %q mapped twice", provider, e.Native)
		}
		m.toCanonical[key] = e.Canonical

		if e.Preferred {
			if prev, ok := m.toNative[e.Canonical]; ok {
				return nil, fmt.Errorf("%s: canonical type %q has two preferred native types (%q, %q)", provider, e.Canonical, prev, e.Native)
			}
			m.toNative[e.Canonical] = e.Native
		}
	}

	if _, ok := m.toNative[core.TypeText]; !ok {
		return nil, fmt.Errorf("%s: no preferred native type for text", provider)
	}
	return m, nil
}

// MustNew is New for static tables; it panics on a malformed table
func MustNew(provider string, entries []Entry) *Mapper {
	m, err := New(provider, entries)
	if err != nil {
		panic(err)
	}
	return m
}

// ToCanonical maps a native type, defaulting to text
func (m *Mapper) ToCanonical(native string) core.CanonicalType {
	if t, ok := m.toCanonical[normalizeNative(native)]; ok {
		return t
	}
	return core.TypeText
}

// ToProviderNative maps a canonical type, defaulting to the native text type
func (m *Mapper) ToProviderNative(t core.CanonicalType) string {
	if n, ok := m.toNative[t]; ok {
		return n
	}
	return m.toNative[core.TypeText]
}

// Provider returns the provider the table belongs to
func (m *Mapper) Provider() string {
	return m.provider
}

func normalizeNative(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
