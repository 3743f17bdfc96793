package storage

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/crawlkit/engine/internal/extractor"
	"github.com/crawlkit/engine/internal/metadata"
	"github.com/crawlkit/engine/pkg/failure"
	"github.com/crawlkit/engine/pkg/fileutil"
)

/*
Responsibilities
- Emit CrawlResult records to a downstream sink
- Guarantee safe concurrent writes (single writer per sink instance)
- Stay an abstract interface at the engine boundary: the engine only
  ever calls Write/Close, never knows about consoles, files, or queues

The sink's concrete backends (console, file) are reference
implementations the engine ships with, analogous to how
NewVisitedSet/NewFetcher ship default backends for their own
interfaces — the engine's own contract is the interface, not any one
backend.
*/

// Sink is the downstream result emitter spec.md §6 calls out as an
// abstract collaborator: emit(Result), safe for concurrent calls when
// more than one emitter is configured.
type Sink interface {
	Write(result extractor.CrawlResult) failure.ClassifiedError
	Close() error
}

// NewSink is the named-backend registry for output_sink, matching
// spec.md §6's output_sink ∈ {console, file, custom}. "custom" has no
// built-in backend — it's a placeholder for a caller-supplied Sink the
// engine was never meant to construct itself.
func NewSink(name string, outputDir string, metadataSink metadata.MetadataSink, console io.Writer) (Sink, error) {
	switch name {
	case "", "console":
		return NewConsoleSink(console, metadataSink), nil
	case "file":
		return NewFileSink(outputDir, metadataSink)
	default:
		return nil, errors.New("storage: unknown output sink " + name)
	}
}

// ConsoleSink writes one JSON line per CrawlResult to an io.Writer,
// typically os.Stdout. Writes are serialized through a mutex so
// concurrent workers never interleave partial lines.
type ConsoleSink struct {
	metadataSink metadata.MetadataSink
	mu           sync.Mutex
	enc          *json.Encoder
}

func NewConsoleSink(w io.Writer, metadataSink metadata.MetadataSink) *ConsoleSink {
	return &ConsoleSink{
		metadataSink: metadataSink,
		enc:          json.NewEncoder(w),
	}
}

func (s *ConsoleSink) Write(result extractor.CrawlResult) failure.ClassifiedError {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enc.Encode(result); err != nil {
		storageErr := &StorageError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseWriteFailure,
		}
		s.recordError(result, storageErr)
		return storageErr
	}
	s.recordArtifact(result)
	return nil
}

func (s *ConsoleSink) Close() error { return nil }

// FileSink appends one JSON line per CrawlResult to <outputDir>/results.jsonl.
// The append-only, one-file-per-crawl layout keeps reruns idempotent at
// the directory level: a rerun either targets a fresh outputDir or
// continues the same results stream.
type FileSink struct {
	metadataSink metadata.MetadataSink
	mu           sync.Mutex
	file         *os.File
	enc          *json.Encoder
}

func NewFileSink(outputDir string, metadataSink metadata.MetadataSink) (*FileSink, error) {
	if err := fileutil.EnsureDir(outputDir); err != nil {
		return nil, err
	}
	path := filepath.Join(outputDir, "results.jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &FileSink{
		metadataSink: metadataSink,
		file:         f,
		enc:          json.NewEncoder(f),
	}, nil
}

func (s *FileSink) Write(result extractor.CrawlResult) failure.ClassifiedError {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enc.Encode(result); err != nil {
		cause := ErrCauseWriteFailure
		retryable := false
		if errors.Is(err, syscall.ENOSPC) {
			cause = ErrCauseDiskFull
			retryable = true
		}
		storageErr := &StorageError{
			Message:   err.Error(),
			Retryable: retryable,
			Cause:     cause,
			Path:      s.file.Name(),
		}
		s.recordError(result, storageErr)
		return storageErr
	}
	s.recordArtifact(result)
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

func (s *ConsoleSink) recordError(result extractor.CrawlResult, storageErr *StorageError) {
	recordSinkError(s.metadataSink, result, storageErr)
}

func (s *ConsoleSink) recordArtifact(result extractor.CrawlResult) {
	recordSinkArtifact(s.metadataSink, "console", result)
}

func (s *FileSink) recordError(result extractor.CrawlResult, storageErr *StorageError) {
	recordSinkError(s.metadataSink, result, storageErr)
}

func (s *FileSink) recordArtifact(result extractor.CrawlResult) {
	recordSinkArtifact(s.metadataSink, s.file.Name(), result)
}

func recordSinkError(metadataSink metadata.MetadataSink, result extractor.CrawlResult, storageErr *StorageError) {
	metadataSink.RecordError(
		time.Now(),
		"storage",
		"Sink.Write",
		mapStorageErrorToMetadataCause(storageErr),
		storageErr.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrURL, result.URL),
			metadata.NewAttr(metadata.AttrWritePath, storageErr.Path),
		},
	)
}

func recordSinkArtifact(metadataSink metadata.MetadataSink, path string, result extractor.CrawlResult) {
	metadataSink.RecordArtifact(
		metadata.ArtifactPage,
		path,
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrURL, result.URL),
			metadata.NewAttr(metadata.AttrField, result.ID),
		},
	)
}
