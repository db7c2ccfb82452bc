package index

import (
	"sort"
	"sync"

	"github.com/helix-research/litgraph/pkg/common"
)

// ChunkStore holds the chunk records of a project keyed by chunk id and by
// document. Put supersedes a document's previous chunks wholesale, so
// re-ingestion never leaves stale records behind.
//
// A ChunkStore should be created using NewChunkStore. It is safe for
// concurrent use.
type ChunkStore struct {
	mu    sync.RWMutex
	docs  map[string]common.Document
	byID  map[string]common.Chunk
	byDoc map[string][]string
}

// NewChunkStore creates an empty ChunkStore.
func NewChunkStore() *ChunkStore {
	return &ChunkStore{
		docs:  make(map[string]common.Document),
		byID:  make(map[string]common.Chunk),
		byDoc: make(map[string][]string),
	}
}

// Put stores the chunks of a document, replacing any previous chunks stored
// for the same document id.
func (s *ChunkStore) Put(doc common.Document, chunks []common.Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(doc.ID)
	s.docs[doc.ID] = doc
	ids := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		s.byID[ch.ID] = ch
		ids = append(ids, ch.ID)
	}
	s.byDoc[doc.ID] = ids
}

// Remove deletes a document and all of its chunks. Unknown ids are a no-op.
func (s *ChunkStore) Remove(docID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(docID)
}

func (s *ChunkStore) removeLocked(docID string) {
	for _, id := range s.byDoc[docID] {
		delete(s.byID, id)
	}
	delete(s.byDoc, docID)
	delete(s.docs, docID)
}

// Get returns the chunk with the given id.
func (s *ChunkStore) Get(chunkID string) (common.Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.byID[chunkID]
	return ch, ok
}

// ForDocument returns a document's chunks in sequence order.
func (s *ChunkStore) ForDocument(docID string) []common.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byDoc[docID]
	chunks := make([]common.Chunk, 0, len(ids))
	for _, id := range ids {
		chunks = append(chunks, s.byID[id])
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Sequence < chunks[j].Sequence })
	return chunks
}

// Document returns the stored document record.
func (s *ChunkStore) Document(docID string) (common.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[docID]
	return doc, ok
}

// Documents returns all stored documents sorted by id.
func (s *ChunkStore) Documents() []common.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]common.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}
