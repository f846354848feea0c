package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/indexer/index"
)

// MagicBytes identifies a valid .spdx segment file.
//
// Layout: header | postings | term dictionary | stored docs | doc dictionary | footer.
const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 2
	HeaderSize    int    = 64
	FooterSize    int    = 32
)

// SegmentHeader is the 64-byte header written at the start of every segment.
type SegmentHeader struct {
	Magic      uint32
	Version    uint32
	TermCount  uint32
	DocCount   uint32
	DictOffset int64
	DictSize   int64
	PostOffset int64
	PostSize   int64
	DocsOffset int64
	DocsSize   int64
}

// DictEntry maps a field-qualified term to its postings and frequencies.
type DictEntry struct {
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
	TotalFreq  int64  `json:"f"`
}

// DocEntry locates a stored document and carries the fields needed for
// scoring without reading the document body.
type DocEntry struct {
	ID          string         `json:"id"`
	Handle      int64          `json:"h"`
	SecondaryID int64          `json:"s,omitempty"`
	Lengths     map[string]int `json:"n"`
	Offset      int64          `json:"o"`
	Len         int            `json:"l"`
}

// Writer serialises memory index snapshots into new .spdx segment files.
type Writer struct {
	dataDir string
	seq     atomic.Uint32
}

// NewWriter creates a Writer that writes segments into the given directory.
func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// Write atomically creates a new segment file containing the given term
// entries and stored documents. It writes to a .tmp file first and renames
// on success.
func (w *Writer) Write(entries []index.TermEntry, docs []index.StoredDoc) (string, error) {
	if len(entries) == 0 && len(docs) == 0 {
		return "", fmt.Errorf("cannot write empty segment")
	}
	segmentName := fmt.Sprintf("seg_%020d_%04d.spdx", time.Now().UnixNano(), w.seq.Add(1)%10000)
	finalPath := filepath.Join(w.dataDir, segmentName)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating segment directory: %w", err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp segment file: %w", err)
	}
	defer f.Close()
	defer os.Remove(tmpPath)

	headerBytes := make([]byte, HeaderSize)
	if _, err := f.Write(headerBytes); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}

	postingsStart := int64(HeaderSize)
	offset := postingsStart
	dict := make([]DictEntry, 0, len(entries))
	for _, entry := range entries {
		postingsData, err := json.Marshal(entry.Postings)
		if err != nil {
			return "", fmt.Errorf("marshaling postings for term %q: %w", entry.Term, err)
		}
		if _, err := f.Write(postingsData); err != nil {
			return "", fmt.Errorf("writing postings for term %q: %w", entry.Term, err)
		}
		dict = append(dict, DictEntry{
			Term:       entry.Term,
			PostOffset: offset - postingsStart,
			PostLen:    len(postingsData),
			DocFreq:    len(entry.Postings),
			TotalFreq:  entry.Postings.TotalFrequency(),
		})
		offset += int64(len(postingsData))
	}
	postingsSize := offset - postingsStart

	dictStart := offset
	dictData, err := json.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("marshaling dictionary: %w", err)
	}
	if _, err := f.Write(dictData); err != nil {
		return "", fmt.Errorf("writing dictionary: %w", err)
	}
	offset += int64(len(dictData))

	docsStart := offset
	docDict := make([]DocEntry, 0, len(docs))
	for _, doc := range docs {
		data, err := json.Marshal(doc)
		if err != nil {
			return "", fmt.Errorf("marshaling document %q: %w", doc.ID, err)
		}
		if _, err := f.Write(data); err != nil {
			return "", fmt.Errorf("writing document %q: %w", doc.ID, err)
		}
		docDict = append(docDict, DocEntry{
			ID:          doc.ID,
			Handle:      doc.Handle,
			SecondaryID: doc.SecondaryID,
			Lengths:     doc.Lengths,
			Offset:      offset - docsStart,
			Len:         len(data),
		})
		offset += int64(len(data))
	}
	docsSize := offset - docsStart

	docDictStart := offset
	docDictData, err := json.Marshal(docDict)
	if err != nil {
		return "", fmt.Errorf("marshaling document dictionary: %w", err)
	}
	if _, err := f.Write(docDictData); err != nil {
		return "", fmt.Errorf("writing document dictionary: %w", err)
	}

	checksum := crc32.NewIEEE()
	checksum.Write(dictData)
	checksum.Write(docDictData)
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], checksum.Sum32())
	binary.LittleEndian.PutUint32(footer[4:8], uint32(len(docs)))
	binary.LittleEndian.PutUint64(footer[8:16], uint64(docDictStart))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(len(docDictData)))
	binary.LittleEndian.PutUint64(footer[24:32], uint64(time.Now().Unix()))
	if _, err := f.Write(footer); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}

	binary.LittleEndian.PutUint32(headerBytes[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(headerBytes[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(headerBytes[8:12], uint32(len(entries)))
	binary.LittleEndian.PutUint32(headerBytes[12:16], uint32(len(docs)))
	binary.LittleEndian.PutUint64(headerBytes[16:24], uint64(dictStart))
	binary.LittleEndian.PutUint64(headerBytes[24:32], uint64(len(dictData)))
	binary.LittleEndian.PutUint64(headerBytes[32:40], uint64(postingsStart))
	binary.LittleEndian.PutUint64(headerBytes[40:48], uint64(postingsSize))
	binary.LittleEndian.PutUint64(headerBytes[48:56], uint64(docsStart))
	binary.LittleEndian.PutUint64(headerBytes[56:64], uint64(docsSize))
	if _, err := f.WriteAt(headerBytes, 0); err != nil {
		return "", fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing segment file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing segment file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming segment file: %w", err)
	}
	return segmentName, nil
}
