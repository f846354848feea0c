// Package indexer implements the index engine: an in-memory segment that
// accepts documents, immutable on-disk segments it is flushed into, and the
// term, document and collection statistics the feedback layer reads.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/errors"
)

// DocMeta is the per-document data kept in memory for scoring.
type DocMeta struct {
	Handle      int64
	SecondaryID int64
	Lengths     map[string]int
}

type fieldStats struct {
	docCount int64
	sumTTF   int64
}

// Stats summarises the engine for health checks.
type Stats struct {
	Docs     int64 `json:"docs"`
	MemDocs  int   `json:"mem_docs"`
	Segments int   `json:"segments"`
}

type Engine struct {
	memIndex *index.MemoryIndex
	writer   *segment.Writer
	cfg      config.IndexerConfig
	opts     index.Options
	logger   *slog.Logger

	// writeMu serialises document adds against flushes so a flush never
	// drops a document added between snapshot and reset.
	writeMu sync.Mutex

	readers  []*segment.Reader
	readerMu sync.RWMutex

	meta       map[string]DocMeta
	fields     map[string]*fieldStats
	nextHandle int64
	metaMu     sync.RWMutex
}

var _ feedback.Index = (*Engine)(nil)

func NewEngine(cfg config.IndexerConfig) (*Engine, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	e := &Engine{
		memIndex: index.NewMemoryIndex(),
		writer:   segment.NewWriter(cfg.DataDir),
		cfg:      cfg,
		opts: index.Options{
			TermVectorFields: cfg.TermVectorFields,
			SecondaryIDField: cfg.SecondaryIDField,
		},
		logger: slog.Default().With("component", "indexer"),
		meta:   make(map[string]DocMeta),
		fields: make(map[string]*fieldStats),
	}
	if err := e.loadExistingSegments(); err != nil {
		return nil, fmt.Errorf("loading existing segments: %w", err)
	}
	return e, nil
}

// IndexDocument analyzes doc and adds it to the memory index, flushing when
// the memory index outgrows SegmentMaxSize. Document ids are unique.
func (e *Engine) IndexDocument(doc index.Document) error {
	if strings.TrimSpace(doc.ID) == "" {
		return apperrors.Invalid("document id is required")
	}

	e.writeMu.Lock()
	e.metaMu.Lock()
	if _, exists := e.meta[doc.ID]; exists {
		e.metaMu.Unlock()
		e.writeMu.Unlock()
		return fmt.Errorf("indexing %s: %w", doc.ID, apperrors.ErrDocumentExists)
	}
	handle := e.nextHandle
	e.nextHandle++
	e.metaMu.Unlock()

	analyzed := index.Analyze(handle, doc, e.opts)
	e.memIndex.Add(analyzed)
	e.record(analyzed.Doc.ID, DocMeta{
		Handle:      handle,
		SecondaryID: analyzed.Doc.SecondaryID,
		Lengths:     analyzed.Doc.Lengths,
	})
	size := e.memIndex.Size()
	e.writeMu.Unlock()

	e.logger.Debug("document indexed in memory",
		"doc_id", doc.ID,
		"handle", handle,
		"mem_size", size,
	)
	if e.cfg.SegmentMaxSize > 0 && size >= e.cfg.SegmentMaxSize {
		e.logger.Info("memory index reached max size, flushing to disk",
			"size", size,
			"threshold", e.cfg.SegmentMaxSize,
		)
		if err := e.Flush(); err != nil {
			return fmt.Errorf("flushing memory index: %w", err)
		}
	}
	return nil
}

func (e *Engine) record(id string, m DocMeta) {
	e.metaMu.Lock()
	defer e.metaMu.Unlock()
	e.meta[id] = m
	if m.Handle >= e.nextHandle {
		e.nextHandle = m.Handle + 1
	}
	for field, n := range m.Lengths {
		fs, ok := e.fields[field]
		if !ok {
			fs = &fieldStats{}
			e.fields[field] = fs
		}
		fs.docCount++
		fs.sumTTF += int64(n)
	}
}

func (e *Engine) Flush() error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	entries, docs := e.memIndex.Snapshot()
	if len(docs) == 0 {
		return nil
	}
	segmentName, err := e.writer.Write(entries, docs)
	if err != nil {
		return fmt.Errorf("writing segment: %w", err)
	}
	reader, err := segment.OpenReader(filepath.Join(e.cfg.DataDir, segmentName))
	if err != nil {
		return fmt.Errorf("opening new segment for reading: %w", err)
	}

	e.readerMu.Lock()
	e.readers = append(e.readers, reader)
	active := len(e.readers)
	e.memIndex.Reset()
	e.readerMu.Unlock()

	e.logger.Info("segment flushed",
		"segment", segmentName,
		"terms", reader.Terms(),
		"docs", reader.DocCount(),
		"active_segments", active,
	)
	return nil
}

// Postings returns the postings of an analyzed term in field across the
// memory index and every segment, ordered by handle.
func (e *Engine) Postings(ctx context.Context, field, term string) (index.PostingList, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := index.Key(field, term)

	e.readerMu.RLock()
	defer e.readerMu.RUnlock()
	all := e.memIndex.Search(key)
	for _, reader := range e.readers {
		postings, err := reader.Search(key)
		if err != nil {
			return nil, fmt.Errorf("searching segment %s: %w", filepath.Base(reader.Path()), err)
		}
		all = append(all, postings...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Handle < all[j].Handle })
	return all, nil
}

func (e *Engine) storedDoc(id string) (index.StoredDoc, error) {
	e.readerMu.RLock()
	defer e.readerMu.RUnlock()
	if doc, ok := e.memIndex.Doc(id); ok {
		return doc, nil
	}
	for _, reader := range e.readers {
		doc, ok, err := reader.Doc(id)
		if err != nil {
			return index.StoredDoc{}, err
		}
		if ok {
			return doc, nil
		}
	}
	return index.StoredDoc{}, fmt.Errorf("document %s: %w", id, apperrors.ErrDocumentNotFound)
}

// Document returns the stored fields of a document.
func (e *Engine) Document(ctx context.Context, docID string) (index.StoredDoc, error) {
	if err := ctx.Err(); err != nil {
		return index.StoredDoc{}, err
	}
	return e.storedDoc(docID)
}

func (e *Engine) hasTermVectors(field string) bool {
	for _, f := range e.cfg.TermVectorFields {
		if f == field {
			return true
		}
	}
	return false
}

func (e *Engine) DocumentVector(ctx context.Context, docID, field string) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !e.hasTermVectors(field) {
		return nil, fmt.Errorf("field %s: %w", field, feedback.ErrNoTermVector)
	}
	doc, err := e.storedDoc(docID)
	if err != nil {
		return nil, err
	}
	vec := doc.Vectors[field]
	out := make(map[string]int64, len(vec))
	for term, tf := range vec {
		out[term] = tf
	}
	return out, nil
}

func (e *Engine) DocumentText(ctx context.Context, docID, field string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	doc, err := e.storedDoc(docID)
	if err != nil {
		return "", err
	}
	return doc.Fields[field], nil
}

func (e *Engine) DocumentFrequency(ctx context.Context, field, term string) (int64, error) {
	ts, err := e.TermStatistics(ctx, field, term)
	if err != nil {
		return 0, err
	}
	return ts.DocFreq, nil
}

func (e *Engine) TermStatistics(ctx context.Context, field, term string) (feedback.TermStats, error) {
	if err := ctx.Err(); err != nil {
		return feedback.TermStats{}, err
	}
	key := index.Key(field, term)

	e.readerMu.RLock()
	defer e.readerMu.RUnlock()
	df, ttf := e.memIndex.Stats(key)
	for _, reader := range e.readers {
		if entry, ok := reader.Lookup(key); ok {
			df += int64(entry.DocFreq)
			ttf += entry.TotalFreq
		}
	}
	return feedback.TermStats{DocFreq: df, TotalTermFreq: ttf}, nil
}

func (e *Engine) CollectionStatistics(ctx context.Context, field string) (feedback.CollectionStats, error) {
	if err := ctx.Err(); err != nil {
		return feedback.CollectionStats{}, err
	}
	e.metaMu.RLock()
	defer e.metaMu.RUnlock()
	fs, ok := e.fields[field]
	if !ok {
		return feedback.CollectionStats{}, nil
	}
	return feedback.CollectionStats{DocCount: fs.docCount, SumTotalTermFreq: fs.sumTTF}, nil
}

// DocMeta returns the in-memory scoring data for a document.
func (e *Engine) DocMeta(docID string) (DocMeta, bool) {
	e.metaMu.RLock()
	defer e.metaMu.RUnlock()
	m, ok := e.meta[docID]
	return m, ok
}

// AvgFieldLength is the mean analyzed length of field over documents that
// have it.
func (e *Engine) AvgFieldLength(field string) float64 {
	e.metaMu.RLock()
	defer e.metaMu.RUnlock()
	fs, ok := e.fields[field]
	if !ok || fs.docCount == 0 {
		return 0
	}
	return float64(fs.sumTTF) / float64(fs.docCount)
}

func (e *Engine) TotalDocs() int64 {
	e.metaMu.RLock()
	defer e.metaMu.RUnlock()
	return int64(len(e.meta))
}

func (e *Engine) Stats() Stats {
	e.readerMu.RLock()
	segments := len(e.readers)
	e.readerMu.RUnlock()
	return Stats{
		Docs:     e.TotalDocs(),
		MemDocs:  e.memIndex.DocCount(),
		Segments: segments,
	}
}

// StartFlushLoop flushes the memory index every FlushInterval until ctx is
// done, then flushes once more. onFlush, when non-nil, sees the result of
// every flush that had documents to write.
func (e *Engine) StartFlushLoop(ctx context.Context, onFlush func(err error)) {
	if e.cfg.FlushInterval <= 0 {
		return
	}
	if onFlush == nil {
		onFlush = func(error) {}
	}
	ticker := time.NewTicker(e.cfg.FlushInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("flush loop stopping, performing final flush")
				if err := e.Flush(); err != nil {
					e.logger.Error("final flush failed", "error", err)
				}
				return
			case <-ticker.C:
				if e.memIndex.DocCount() == 0 {
					continue
				}
				err := e.Flush()
				if err != nil {
					e.logger.Error("periodic flush failed", "error", err)
				}
				onFlush(err)
			}
		}
	}()
}

func (e *Engine) Close() error {
	if err := e.Flush(); err != nil {
		e.logger.Error("final flush on close failed", "error", err)
	}
	e.readerMu.Lock()
	defer e.readerMu.Unlock()
	for _, reader := range e.readers {
		if err := reader.Close(); err != nil {
			e.logger.Error("closing segment reader", "error", err)
		}
	}
	e.readers = nil
	return nil
}

func (e *Engine) loadExistingSegments() error {
	entries, err := os.ReadDir(e.cfg.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading data directory: %w", err)
	}
	segFiles := make([]string, 0)
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".spdx") {
			segFiles = append(segFiles, entry.Name())
		}
	}
	sort.Strings(segFiles)

	for _, name := range segFiles {
		path := filepath.Join(e.cfg.DataDir, name)
		reader, err := segment.OpenReader(path)
		if err != nil {
			e.logger.Error("failed to open segment, skipping",
				"segment", name,
				"error", err,
			)
			continue
		}
		e.readers = append(e.readers, reader)
		for _, d := range reader.DocEntries() {
			e.record(d.ID, DocMeta{Handle: d.Handle, SecondaryID: d.SecondaryID, Lengths: d.Lengths})
		}
		e.logger.Info("loaded existing segment",
			"segment", name,
			"terms", reader.Terms(),
			"docs", reader.DocCount(),
		)
	}
	e.logger.Info("segment recovery complete",
		"segments_loaded", len(e.readers),
		"docs", len(e.meta),
	)
	return nil
}
