package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/indexer/index"
)

// Reader serves lookups against one immutable segment file. The term and
// document dictionaries are held in memory; postings and stored documents
// are read on demand.
type Reader struct {
	file     *os.File
	filePath string
	header   SegmentHeader
	dict     []DictEntry
	docs     []DocEntry
	docByID  map[string]int
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := readSegment(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func readSegment(f *os.File, path string) (*Reader, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat segment file: %w", err)
	}
	if info.Size() < int64(HeaderSize+FooterSize) {
		return nil, fmt.Errorf("invalid segment file: %d bytes is too short", info.Size())
	}
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	magic := binary.LittleEndian.Uint32(headerBytes[0:4])
	if magic != MagicBytes {
		return nil, fmt.Errorf("invalid segment file: bad magic bytes %x", magic)
	}
	header := SegmentHeader{
		Magic:      magic,
		Version:    binary.LittleEndian.Uint32(headerBytes[4:8]),
		TermCount:  binary.LittleEndian.Uint32(headerBytes[8:12]),
		DocCount:   binary.LittleEndian.Uint32(headerBytes[12:16]),
		DictOffset: int64(binary.LittleEndian.Uint64(headerBytes[16:24])),
		DictSize:   int64(binary.LittleEndian.Uint64(headerBytes[24:32])),
		PostOffset: int64(binary.LittleEndian.Uint64(headerBytes[32:40])),
		PostSize:   int64(binary.LittleEndian.Uint64(headerBytes[40:48])),
		DocsOffset: int64(binary.LittleEndian.Uint64(headerBytes[48:56])),
		DocsSize:   int64(binary.LittleEndian.Uint64(headerBytes[56:64])),
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported segment version %d", header.Version)
	}

	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, info.Size()-int64(FooterSize)); err != nil {
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	docDictOffset := int64(binary.LittleEndian.Uint64(footer[8:16]))
	docDictSize := int64(binary.LittleEndian.Uint64(footer[16:24]))

	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset); err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	docDictBytes := make([]byte, docDictSize)
	if _, err := f.ReadAt(docDictBytes, docDictOffset); err != nil {
		return nil, fmt.Errorf("reading document dictionary: %w", err)
	}
	checksum := crc32.NewIEEE()
	checksum.Write(dictBytes)
	checksum.Write(docDictBytes)
	if want := binary.LittleEndian.Uint32(footer[0:4]); checksum.Sum32() != want {
		return nil, fmt.Errorf("segment checksum mismatch: got %x, want %x", checksum.Sum32(), want)
	}

	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	var docs []DocEntry
	if err := json.Unmarshal(docDictBytes, &docs); err != nil {
		return nil, fmt.Errorf("parsing document dictionary: %w", err)
	}
	docByID := make(map[string]int, len(docs))
	for i, d := range docs {
		docByID[d.ID] = i
	}
	return &Reader{
		file:     f,
		filePath: path,
		header:   header,
		dict:     dict,
		docs:     docs,
		docByID:  docByID,
	}, nil
}

// Lookup returns the dictionary entry for a field-qualified term.
func (r *Reader) Lookup(key string) (DictEntry, bool) {
	idx := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].Term >= key
	})
	if idx >= len(r.dict) || r.dict[idx].Term != key {
		return DictEntry{}, false
	}
	return r.dict[idx], true
}

func (r *Reader) Search(key string) (index.PostingList, error) {
	entry, ok := r.Lookup(key)
	if !ok {
		return nil, nil
	}
	postingsBytes := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(postingsBytes, r.header.PostOffset+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings: %w", err)
	}
	var postings index.PostingList
	if err := json.Unmarshal(postingsBytes, &postings); err != nil {
		return nil, fmt.Errorf("parsing postings: %w", err)
	}
	return postings, nil
}

// DocEntry returns the dictionary entry of a stored document.
func (r *Reader) DocEntry(id string) (DocEntry, bool) {
	i, ok := r.docByID[id]
	if !ok {
		return DocEntry{}, false
	}
	return r.docs[i], true
}

// Doc reads a stored document. ok is false when the segment does not hold id.
func (r *Reader) Doc(id string) (doc index.StoredDoc, ok bool, err error) {
	entry, ok := r.DocEntry(id)
	if !ok {
		return index.StoredDoc{}, false, nil
	}
	data := make([]byte, entry.Len)
	if _, err := r.file.ReadAt(data, r.header.DocsOffset+entry.Offset); err != nil {
		return index.StoredDoc{}, false, fmt.Errorf("reading document %q: %w", id, err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return index.StoredDoc{}, false, fmt.Errorf("parsing document %q: %w", id, err)
	}
	return doc, true, nil
}

// DocEntries returns the document dictionary sorted by id.
func (r *Reader) DocEntries() []DocEntry {
	return r.docs
}

func (r *Reader) Terms() int {
	return len(r.dict)
}

func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

func (r *Reader) Path() string {
	return r.filePath
}

func (r *Reader) Close() error {
	return r.file.Close()
}
