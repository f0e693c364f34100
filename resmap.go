package devarchive

import (
	"iter"
	"slices"

	"github.com/meigma/devarchive/internal/layout"
)

// ResourceMap maps resource names to archive regions, one map per named
// category. It is built once when an archive is opened and never changes
// afterwards.
type ResourceMap struct {
	byType [layout.ChunkCount]map[string]Region
}

func newResourceMap() *ResourceMap {
	return &ResourceMap{}
}

func (m *ResourceMap) insert(category ChunkType, name string, r Region) error {
	if !category.IsNamed() {
		return &ResourceError{Op: "index", Category: category, Name: name, Err: ErrUnknownCategory}
	}
	names := m.byType[category]
	if names == nil {
		names = make(map[string]Region)
		m.byType[category] = names
	}
	if _, dup := names[name]; dup {
		return &ResourceError{Op: "index", Category: category, Name: name, Err: ErrDuplicateResourceName}
	}
	names[name] = r
	return nil
}

// Lookup returns the region of the named resource.
func (m *ResourceMap) Lookup(category ChunkType, name string) (Region, bool) {
	if !category.Valid() {
		return Region{}, false
	}
	r, ok := m.byType[category][name]
	return r, ok
}

// Len returns the number of resources in category.
func (m *ResourceMap) Len(category ChunkType) int {
	if !category.Valid() {
		return 0
	}
	return len(m.byType[category])
}

// Names returns the resource names of category in sorted order.
func (m *ResourceMap) Names(category ChunkType) []string {
	if !category.Valid() {
		return nil
	}
	names := make([]string, 0, len(m.byType[category]))
	for name := range m.byType[category] {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// All returns an iterator over the resources of category in name order.
func (m *ResourceMap) All(category ChunkType) iter.Seq2[string, Region] {
	return func(yield func(string, Region) bool) {
		for _, name := range m.Names(category) {
			if !yield(name, m.byType[category][name]) {
				return
			}
		}
	}
}

// Categories returns the named categories holding at least one resource.
func (m *ResourceMap) Categories() []ChunkType {
	var out []ChunkType
	for _, c := range layout.NamedChunkTypes() {
		if len(m.byType[c]) > 0 {
			out = append(out, c)
		}
	}
	return out
}

// diff returns a name of category present in only one of the two maps.
func (m *ResourceMap) diff(other *ResourceMap, category ChunkType) (string, bool) {
	for name := range m.byType[category] {
		if _, ok := other.byType[category][name]; !ok {
			return name, true
		}
	}
	for name := range other.byType[category] {
		if _, ok := m.byType[category][name]; !ok {
			return name, true
		}
	}
	return "", false
}
