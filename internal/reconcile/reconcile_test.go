package reconcile

import (
	"reflect"
	"sort"
	"testing"
)

type record struct {
	key string
}

func keyOf(r record) string { return r.key }

func TestOrphans(t *testing.T) {
	local := []record{{"X"}, {"Y"}, {"Z"}}

	testCases := []struct {
		name     string
		seen     *KeySet
		expected []string
	}{
		{"exact match sweeps unseen", NewKeySet("X", "Y"), []string{"Z"}},
		{"exact set is case sensitive", NewKeySet("x", "Y"), []string{"X", "Z"}},
		{"folded set ignores case", NewFoldedKeySet("x", "y"), []string{"Z"}},
		{"nothing seen sweeps all", NewKeySet(), []string{"X", "Y", "Z"}},
		{"all seen sweeps none", NewKeySet("X", "Y", "Z"), nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var got []string
			for _, r := range Orphans(local, keyOf, tc.seen) {
				got = append(got, r.key)
			}
			if !reflect.DeepEqual(got, tc.expected) {
				t.Errorf("Expected orphans %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestMissing(t *testing.T) {
	local := []record{{"MITx"}, {"HarvardX"}}
	got := Missing(local, keyOf, []string{"MITx", "BerkeleyX", "HarvardX", "DelftX"})
	sort.Strings(got)
	expected := []string{"BerkeleyX", "DelftX"}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected missing %v, got %v", expected, got)
	}
}

func TestKeySet(t *testing.T) {
	s := NewFoldedKeySet("MITx")
	s.Add("mitx", "HarvardX")
	if s.Len() != 2 {
		t.Errorf("Expected 2 keys after folding duplicates, got %d", s.Len())
	}
	if !s.Has("MITX") {
		t.Error("Expected folded lookup to match")
	}
	keys := s.Keys()
	sort.Strings(keys)
	if !reflect.DeepEqual(keys, []string{"harvardx", "mitx"}) {
		t.Errorf("Unexpected keys %v", keys)
	}
}
