package index

import (
	"sort"
	"strings"
	"sync"

	"github.com/helix-research/litgraph/pkg/common"
)

// EntityIndex maps normalized entity names to the ids of the chunks tagged
// with them. Lookups are case-insensitive. The index is maintained
// incrementally as documents are put and removed.
//
// Graph neighborhood lookups are deliberately not part of this index: the
// merged graph snapshot is the single source of truth for entity adjacency.
//
// An EntityIndex should be created using NewEntityIndex. It is safe for
// concurrent use.
type EntityIndex struct {
	mu      sync.RWMutex
	chunks  map[string]map[string]bool
	surface map[string]string
	perDoc  map[string][]docEntry
}

type docEntry struct {
	entity  string
	chunkID string
}

// NewEntityIndex creates an empty EntityIndex.
func NewEntityIndex() *EntityIndex {
	return &EntityIndex{
		chunks:  make(map[string]map[string]bool),
		surface: make(map[string]string),
		perDoc:  make(map[string][]docEntry),
	}
}

// NormalizeEntity returns the canonical lookup form of an entity name.
func NormalizeEntity(entity string) string {
	return strings.ToLower(strings.Join(strings.Fields(entity), " "))
}

// Put indexes the entity tags of a document's chunks, replacing any previous
// entries for the same document.
func (idx *EntityIndex) Put(docID string, chunks []common.Chunk) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.removeLocked(docID)
	var entries []docEntry
	for _, ch := range chunks {
		for _, entity := range ch.Entities {
			normalized := NormalizeEntity(entity)
			if normalized == "" {
				continue
			}
			set, ok := idx.chunks[normalized]
			if !ok {
				set = make(map[string]bool)
				idx.chunks[normalized] = set
			}
			set[ch.ID] = true
			if _, ok := idx.surface[normalized]; !ok {
				idx.surface[normalized] = entity
			}
			entries = append(entries, docEntry{entity: normalized, chunkID: ch.ID})
		}
	}
	idx.perDoc[docID] = entries
}

// Remove drops a document's entries from the index.
func (idx *EntityIndex) Remove(docID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(docID)
}

func (idx *EntityIndex) removeLocked(docID string) {
	for _, entry := range idx.perDoc[docID] {
		set := idx.chunks[entry.entity]
		delete(set, entry.chunkID)
		if len(set) == 0 {
			delete(idx.chunks, entry.entity)
			delete(idx.surface, entry.entity)
		}
	}
	delete(idx.perDoc, docID)
}

// Lookup returns the sorted chunk ids tagged with the entity. The lookup is
// case-insensitive.
func (idx *EntityIndex) Lookup(entity string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	set := idx.chunks[NormalizeEntity(entity)]
	if len(set) == 0 {
		return nil
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Surface returns the original surface form recorded for an entity, falling
// back to the input when the entity is unknown.
func (idx *EntityIndex) Surface(entity string) string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if surface, ok := idx.surface[NormalizeEntity(entity)]; ok {
		return surface
	}
	return entity
}

// Entities returns all indexed entity surface forms sorted alphabetically.
func (idx *EntityIndex) Entities() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	entities := make([]string, 0, len(idx.surface))
	for _, surface := range idx.surface {
		entities = append(entities, surface)
	}
	sort.Strings(entities)
	return entities
}
