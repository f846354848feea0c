package index

import (
	"sort"
	"sync"
)

// MemoryIndex is the mutable in-memory segment. Documents accumulate here
// until the engine flushes them to disk.
type MemoryIndex struct {
	mu    sync.RWMutex
	index map[string]map[int64]*Posting
	docs  map[string]*StoredDoc
	size  int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		index: make(map[string]map[int64]*Posting),
		docs:  make(map[string]*StoredDoc),
	}
}

func (m *MemoryIndex) Add(a Analyzed) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, posting := range a.Postings {
		if _, exists := m.index[key]; !exists {
			m.index[key] = make(map[int64]*Posting)
		}
		m.index[key][posting.Handle] = posting
		m.size += int64(len(key) + len(posting.DocID) + len(posting.Positions)*8 + 64)
	}
	doc := a.Doc
	m.docs[doc.ID] = &doc
	for _, text := range doc.Fields {
		m.size += int64(len(text))
	}
}

// Search returns the postings of a field-qualified key ordered by handle.
func (m *MemoryIndex) Search(key string) PostingList {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs, exists := m.index[key]
	if !exists {
		return nil
	}
	result := make(PostingList, 0, len(docs))
	for _, posting := range docs {
		result = append(result, *posting)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Handle < result[j].Handle
	})
	return result
}

// Stats returns the document frequency and total frequency of key without
// copying postings.
func (m *MemoryIndex) Stats(key string) (docFreq, totalFreq int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.index[key] {
		docFreq++
		totalFreq += int64(p.Frequency)
	}
	return docFreq, totalFreq
}

func (m *MemoryIndex) Doc(id string) (StoredDoc, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return StoredDoc{}, false
	}
	return *doc, true
}

// Snapshot returns the term entries sorted by key and the stored documents
// sorted by id.
func (m *MemoryIndex) Snapshot() ([]TermEntry, []StoredDoc) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]TermEntry, 0, len(m.index))
	for key, docs := range m.index {
		postings := make(PostingList, 0, len(docs))
		for _, posting := range docs {
			postings = append(postings, *posting)
		}
		sort.Slice(postings, func(i, j int) bool {
			return postings[i].Handle < postings[j].Handle
		})
		entries = append(entries, TermEntry{
			Term:     key,
			Postings: postings,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})

	docs := make([]StoredDoc, 0, len(m.docs))
	for _, doc := range m.docs {
		docs = append(docs, *doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].ID < docs[j].ID
	})
	return entries, docs
}

func (m *MemoryIndex) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = make(map[string]map[int64]*Posting)
	m.docs = make(map[string]*StoredDoc)
	m.size = 0
}
