package reconcile

import "strings"

// KeySet holds the identifiers seen upstream during one ingest pass.
// A folding set compares keys case-insensitively.
type KeySet struct {
	fold bool
	keys map[string]struct{}
}

func NewKeySet(keys ...string) *KeySet {
	s := &KeySet{keys: map[string]struct{}{}}
	s.Add(keys...)
	return s
}

func NewFoldedKeySet(keys ...string) *KeySet {
	s := &KeySet{fold: true, keys: map[string]struct{}{}}
	s.Add(keys...)
	return s
}

func (s *KeySet) norm(k string) string {
	if s.fold {
		return strings.ToLower(k)
	}
	return k
}

func (s *KeySet) Add(keys ...string) {
	for _, k := range keys {
		s.keys[s.norm(k)] = struct{}{}
	}
}

func (s *KeySet) Has(k string) bool {
	_, ok := s.keys[s.norm(k)]
	return ok
}

func (s *KeySet) Len() int { return len(s.keys) }

// Keys returns the normalized members in no particular order.
func (s *KeySet) Keys() []string {
	out := make([]string, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	return out
}

// Orphans returns the local records whose key was not seen upstream.
func Orphans[T any](local []T, key func(T) string, seen *KeySet) []T {
	var out []T
	for _, item := range local {
		if !seen.Has(key(item)) {
			out = append(out, item)
		}
	}
	return out
}

// Missing returns the wanted keys with no local record.
func Missing[T any](local []T, key func(T) string, wanted []string) []string {
	have := &KeySet{keys: map[string]struct{}{}}
	for _, item := range local {
		have.Add(key(item))
	}
	var out []string
	for _, k := range wanted {
		if !have.Has(k) {
			out = append(out, k)
		}
	}
	return out
}
