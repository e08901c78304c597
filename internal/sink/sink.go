/*
Package sink implements C11, the sink adapter: spec.md §6 names
"Sink adapter (external)" among the injected collaborators, specified
only by the interface the core writes through. This package defines
that interface (`Sink`) and the concrete implementations a caller can
compose: `JSONLinesSink`, `CSVSink`, `MarkdownSink`, and a
`CompositeSink` that fans out to several at once. `CheckpointSink` is
the separate §6 "Resume blob layout" collaborator.

Grounded in internal/storage/sink.go (teacher): EnsureDir before
write, ENOSPC special-cased as retryable disk-full, deterministic
output path — retargeted from one Markdown document per page to one
append per item.
*/
package sink

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"

	"github.com/rohmanhakim/smartcrawl/internal/item"
	"github.com/rohmanhakim/smartcrawl/internal/metadata"
	"github.com/rohmanhakim/smartcrawl/pkg/failure"
	"github.com/rohmanhakim/smartcrawl/pkg/fileutil"
)

// Sink is the result_sink(item) collaborator of spec.md §6: it
// receives each valid item record. Implementations must not block the
// crawl loop for long.
type Sink interface {
	Write(it item.Item) failure.ClassifiedError
}

// CheckpointSink is the checkpoint_sink(blob) collaborator of spec.md
// §6: it persists a CheckpointBlob verbatim, used later for resume.
type CheckpointSink interface {
	Checkpoint(blob CheckpointBlob) failure.ClassifiedError
}

func wrapDirError(path string, err failure.ClassifiedError) *SinkError {
	var fileErr *fileutil.FileError
	if errors.As(err, &fileErr) {
		return &SinkError{Message: err.Error(), Retryable: true, Cause: ErrCausePathError, Path: path}
	}
	return &SinkError{Message: err.Error(), Retryable: false, Cause: ErrCausePathError, Path: path}
}

func classifyWriteErr(path string, err error) *SinkError {
	cause := ErrCauseWriteFailure
	retryable := false
	if errors.Is(err, syscall.ENOSPC) {
		cause = ErrCauseDiskFull
		retryable = true
	}
	return &SinkError{Message: err.Error(), Retryable: retryable, Cause: cause, Path: path}
}

func recordSinkError(metadataSink metadata.MetadataSink, action string, err *SinkError) {
	metadataSink.RecordError(time.Now(), "sink", action, mapSinkErrorToMetadataCause(err), err.Error(), []metadata.Attribute{
		metadata.NewAttr(metadata.AttrWritePath, err.Path),
	})
}

// --- JSONLinesSink -----------------------------------------------------

// JSONLinesSink appends one JSON object per line to a single file per
// session — the simplest durable encoding of an open-keyed record
// stream, and the teacher's own preference for machine-readable
// output (encoding/json, no schema negotiation).
type JSONLinesSink struct {
	metadataSink metadata.MetadataSink

	mu    sync.Mutex
	path  string
	file  *os.File
	count int
}

// NewJSONLinesSink opens (creating if needed) outputDir/items.jsonl
// for appending.
func NewJSONLinesSink(metadataSink metadata.MetadataSink, outputDir string) (*JSONLinesSink, failure.ClassifiedError) {
	if err := fileutil.EnsureDir(outputDir); err != nil {
		return nil, wrapDirError(outputDir, err)
	}
	path := filepath.Join(outputDir, "items.jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, &SinkError{Message: err.Error(), Retryable: false, Cause: ErrCauseWriteFailure, Path: path}
	}
	return &JSONLinesSink{metadataSink: metadataSink, path: path, file: f}, nil
}

// encodedItem is item.Item's JSON-line shape: canonical/dynamic
// fields nested under "fields", next to the provenance metadata, matching the
// "open-keyed record" shape of spec.md §3.
type encodedItem struct {
	Fields    map[string]string `json:"fields"`
	Selector  string            `json:"selector"`
	Signature string            `json:"structural_signature"`
}

// Write appends it as one JSON line.
func (s *JSONLinesSink) Write(it item.Item) failure.ClassifiedError {
	encoded, err := json.Marshal(encodedItem{
		Fields:    it.Fields,
		Selector:  it.Meta.Selector,
		Signature: it.Meta.StructuralSignature,
	})
	if err != nil {
		sinkErr := &SinkError{Message: err.Error(), Retryable: false, Cause: ErrCauseEncodeFailed, Path: s.path}
		recordSinkError(s.metadataSink, "JSONLinesSink.Write", sinkErr)
		return sinkErr
	}
	encoded = append(encoded, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.Write(encoded); err != nil {
		sinkErr := classifyWriteErr(s.path, err)
		recordSinkError(s.metadataSink, "JSONLinesSink.Write", sinkErr)
		return sinkErr
	}
	s.count++
	s.metadataSink.RecordArtifact(metadata.ArtifactItem, s.path, []metadata.Attribute{
		metadata.NewAttr(metadata.AttrSelector, it.Meta.Selector),
	})
	return nil
}

// Close flushes and closes the backing file.
func (s *JSONLinesSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// WriteResult reports the sink's current state for observability/tests.
func (s *JSONLinesSink) WriteResult() WriteResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return NewWriteResult(s.path, s.count)
}

// --- CSVSink -------------------------------------------------------------

// CSVSink writes one CSV file whose header is inferred from the first
// item's field keys; later items are padded/truncated to that header,
// matching spec.md §6's CSV export shape without pulling in a schema
// negotiation step.
type CSVSink struct {
	metadataSink metadata.MetadataSink

	mu      sync.Mutex
	path    string
	file    *os.File
	w       *csv.Writer
	header  []string
	count   int
}

// NewCSVSink opens (creating if needed) outputDir/items.csv.
func NewCSVSink(metadataSink metadata.MetadataSink, outputDir string) (*CSVSink, failure.ClassifiedError) {
	if err := fileutil.EnsureDir(outputDir); err != nil {
		return nil, wrapDirError(outputDir, err)
	}
	path := filepath.Join(outputDir, "items.csv")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, &SinkError{Message: err.Error(), Retryable: false, Cause: ErrCauseWriteFailure, Path: path}
	}
	return &CSVSink{metadataSink: metadataSink, path: path, file: f, w: csv.NewWriter(f)}, nil
}

// Write appends it as one CSV row, writing the header row first if
// this is the sink's first item.
func (s *CSVSink) Write(it item.Item) failure.ClassifiedError {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.header == nil {
		s.header = csvHeader(it)
		if err := s.w.Write(s.header); err != nil {
			sinkErr := classifyWriteErr(s.path, err)
			recordSinkError(s.metadataSink, "CSVSink.Write", sinkErr)
			return sinkErr
		}
	}

	row := make([]string, len(s.header))
	for i, key := range s.header {
		row[i] = it.Fields[key]
	}
	if err := s.w.Write(row); err != nil {
		sinkErr := classifyWriteErr(s.path, err)
		recordSinkError(s.metadataSink, "CSVSink.Write", sinkErr)
		return sinkErr
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		sinkErr := classifyWriteErr(s.path, err)
		recordSinkError(s.metadataSink, "CSVSink.Write", sinkErr)
		return sinkErr
	}

	s.count++
	s.metadataSink.RecordArtifact(metadata.ArtifactItem, s.path, []metadata.Attribute{
		metadata.NewAttr(metadata.AttrSelector, it.Meta.Selector),
	})
	return nil
}

func csvHeader(it item.Item) []string {
	keys := make([]string, 0, len(it.Fields))
	for _, canonical := range []string{item.FieldTitle, item.FieldLink, item.FieldImage, item.FieldPrice, item.FieldPriceNormalized, item.FieldDescription} {
		if _, ok := it.Fields[canonical]; ok {
			keys = append(keys, canonical)
		}
	}
	for k := range it.Fields {
		found := false
		for _, existing := range keys {
			if existing == k {
				found = true
				break
			}
		}
		if !found {
			keys = append(keys, k)
		}
	}
	return keys
}

// Close flushes and closes the backing file.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	return s.file.Close()
}

// WriteResult reports the sink's current state for observability/tests.
func (s *CSVSink) WriteResult() WriteResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return NewWriteResult(s.path, s.count)
}

// --- MarkdownSink ----------------------------------------------------

// MarkdownSink renders each item as a Markdown record, for dry-run and
// debug use (spec.md §6 "Sink adapter (external)" lists Markdown as
// one of the export shapes). It renders a small HTML definition list
// from the item's fields and converts it with html-to-markdown/v2,
// the same library the teacher uses for Markdown rendering elsewhere
// in the repo — just pointed at item fields instead of a parsed page.
type MarkdownSink struct {
	metadataSink metadata.MetadataSink
	conv         *converter.Converter

	mu    sync.Mutex
	path  string
	file  *os.File
	count int
}

// NewMarkdownSink opens (creating if needed) outputDir/items.md.
func NewMarkdownSink(metadataSink metadata.MetadataSink, outputDir string) (*MarkdownSink, failure.ClassifiedError) {
	if err := fileutil.EnsureDir(outputDir); err != nil {
		return nil, wrapDirError(outputDir, err)
	}
	path := filepath.Join(outputDir, "items.md")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, &SinkError{Message: err.Error(), Retryable: false, Cause: ErrCauseWriteFailure, Path: path}
	}
	conv := converter.NewConverter(converter.WithPlugins(base.NewBasePlugin(), commonmark.NewCommonmarkPlugin()))
	return &MarkdownSink{metadataSink: metadataSink, conv: conv, path: path, file: f}, nil
}

// Write renders it as a Markdown record and appends it.
func (s *MarkdownSink) Write(it item.Item) failure.ClassifiedError {
	markdown, err := s.conv.ConvertString(itemToHTML(it))
	if err != nil {
		sinkErr := &SinkError{Message: err.Error(), Retryable: false, Cause: ErrCauseEncodeFailed, Path: s.path}
		recordSinkError(s.metadataSink, "MarkdownSink.Write", sinkErr)
		return sinkErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.WriteString(markdown + "\n---\n"); err != nil {
		sinkErr := classifyWriteErr(s.path, err)
		recordSinkError(s.metadataSink, "MarkdownSink.Write", sinkErr)
		return sinkErr
	}
	s.count++
	s.metadataSink.RecordArtifact(metadata.ArtifactItem, s.path, []metadata.Attribute{
		metadata.NewAttr(metadata.AttrSelector, it.Meta.Selector),
	})
	return nil
}

func itemToHTML(it item.Item) string {
	var buf bytes.Buffer
	buf.WriteString("<dl>")
	for _, key := range []string{item.FieldTitle, item.FieldDescription, item.FieldPrice, item.FieldLink, item.FieldImage} {
		if v, ok := it.Fields[key]; ok && v != "" {
			fmt.Fprintf(&buf, "<dt>%s</dt><dd>%s</dd>", key, v)
		}
	}
	buf.WriteString("</dl>")
	return buf.String()
}

// Close flushes and closes the backing file.
func (s *MarkdownSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// WriteResult reports the sink's current state for observability/tests.
func (s *MarkdownSink) WriteResult() WriteResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return NewWriteResult(s.path, s.count)
}

// --- CompositeSink ---------------------------------------------------

// CompositeSink fans a single item out to N sinks. The first error
// encountered is returned; later sinks in the list still run so a
// slow or broken downstream sink does not silently swallow the
// others' writes.
type CompositeSink struct {
	sinks []Sink
}

// NewCompositeSink builds a CompositeSink over sinks.
func NewCompositeSink(sinks ...Sink) *CompositeSink {
	return &CompositeSink{sinks: sinks}
}

// Write fans it out to every configured sink.
func (c *CompositeSink) Write(it item.Item) failure.ClassifiedError {
	var first failure.ClassifiedError
	for _, s := range c.sinks {
		if err := s.Write(it); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// --- FileCheckpointSink -----------------------------------------------

// FileCheckpointSink persists each checkpoint as
// outputDir/checkpoint.json, overwritten on every call — a checkpoint
// is a snapshot, not a log, so only the latest one is kept.
type FileCheckpointSink struct {
	metadataSink metadata.MetadataSink
	outputDir    string
}

// NewFileCheckpointSink builds a CheckpointSink writing to outputDir.
func NewFileCheckpointSink(metadataSink metadata.MetadataSink, outputDir string) *FileCheckpointSink {
	return &FileCheckpointSink{metadataSink: metadataSink, outputDir: outputDir}
}

// Checkpoint persists blob verbatim as JSON, per spec.md §6 "Resume
// blob layout". Writes are synchronous and not fsync-gated — the
// caller owns durability guarantees (spec.md §9).
func (f *FileCheckpointSink) Checkpoint(blob CheckpointBlob) failure.ClassifiedError {
	if err := fileutil.EnsureDir(f.outputDir); err != nil {
		sinkErr := wrapDirError(f.outputDir, err)
		recordSinkError(f.metadataSink, "FileCheckpointSink.Checkpoint", sinkErr)
		return sinkErr
	}
	path := filepath.Join(f.outputDir, "checkpoint.json")
	encoded, err := json.MarshalIndent(blob, "", "  ")
	if err != nil {
		sinkErr := &SinkError{Message: err.Error(), Retryable: false, Cause: ErrCauseEncodeFailed, Path: path}
		recordSinkError(f.metadataSink, "FileCheckpointSink.Checkpoint", sinkErr)
		return sinkErr
	}
	if err := os.WriteFile(path, encoded, 0644); err != nil {
		sinkErr := classifyWriteErr(path, err)
		recordSinkError(f.metadataSink, "FileCheckpointSink.Checkpoint", sinkErr)
		return sinkErr
	}
	f.metadataSink.RecordArtifact(metadata.ArtifactItem, path, nil)
	return nil
}

// LoadCheckpoint reads back a previously written checkpoint, the
// resume-side counterpart to FileCheckpointSink.Checkpoint.
func LoadCheckpoint(outputDir string) (CheckpointBlob, error) {
	path := filepath.Join(outputDir, "checkpoint.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return CheckpointBlob{}, err
	}
	var blob CheckpointBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return CheckpointBlob{}, err
	}
	return blob, nil
}
