package frontier

import (
	"fmt"
	"os"
	"sync"

	bloom "github.com/bits-and-blooms/bloom/v3"
	"github.com/edsrzf/mmap-go"
)

/*
FileBackedVisitedSet is the file_backed VisitedSet backend spec.md §6's
url_queue option names: a bloom filter standing in for the authoritative
fingerprint map, so memory stays flat regardless of how many unique URLs
a crawl visits (max_unique_url_count up to six figures, per spec.md §5's
resource caps). The filter itself is allocated on the Go heap; the mmap
region holds a marshalled snapshot of it, written at creation, by
syncLocked, and on Close.

A bloom filter trades exactness for boundedness: it never reports a
fingerprint as absent when it was previously inserted (no false
negatives), but it can occasionally report "present" for a fingerprint
never seen (a false positive), which would cause CheckAndInsert to treat
a genuinely new URL as a duplicate and silently drop it. At the
configured false-positive rate (0.1%) this is an acceptable, documented
approximation of the exact map spec.md's VisitedSet calls for, the same
tradeoff this backend's constants are grounded on.
*/
type FileBackedVisitedSet struct {
	mu        sync.Mutex
	filter    *bloom.BloomFilter
	file      *os.File
	mmap      mmap.MMap
	path      string
	count     uint64
	syncEvery uint64
}

// falsePositiveRate is fixed rather than configurable: spec.md doesn't
// expose it, and 0.1% at six-figure scale keeps the backing file small.
const falsePositiveRate = 0.001

// NewFileBackedVisitedSet creates a disk-backed, bounded-memory visited
// set sized for estimatedCount unique URLs. A zero estimatedCount uses
// spec.md §6's default max_unique_url_count (100000).
func NewFileBackedVisitedSet(estimatedCount uint) (*FileBackedVisitedSet, error) {
	if estimatedCount == 0 {
		estimatedCount = 100000
	}

	filter := bloom.NewWithEstimates(estimatedCount, falsePositiveRate)

	tmpFile, err := os.CreateTemp("", "crawlkit-visited-*.bloom")
	if err != nil {
		return nil, fmt.Errorf("frontier: create visited-set file: %w", err)
	}
	path := tmpFile.Name()

	filterSize := filter.Cap()
	if err := tmpFile.Truncate(int64(filterSize)); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("frontier: size visited-set file: %w", err)
	}

	mapped, err := mmap.MapRegion(tmpFile, int(filterSize), mmap.RDWR, 0, 0)
	if err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("frontier: mmap visited-set file: %w", err)
	}

	data, err := filter.MarshalBinary()
	if err != nil {
		_ = mapped.Unmap()
		_ = tmpFile.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("frontier: marshal bloom filter: %w", err)
	}
	if len(data) > len(mapped) {
		_ = mapped.Unmap()
		_ = tmpFile.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("frontier: bloom filter (%d bytes) exceeds mapped region (%d bytes)", len(data), len(mapped))
	}
	copy(mapped, data)

	return &FileBackedVisitedSet{
		filter:    filter,
		file:      tmpFile,
		mmap:      mapped,
		path:      path,
		syncEvery: 1000,
	}, nil
}

// CheckAndInsert reports whether fp is new. A bloom filter has no
// native "insert if absent" primitive, so this tests, then adds, under
// the set's own lock — the atomicity spec.md §4.3 requires comes from
// that lock, not from the filter itself.
func (v *FileBackedVisitedSet) CheckAndInsert(fp string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.filter.TestString(fp) {
		return false
	}
	v.filter.AddString(fp)
	v.count++

	if v.count >= v.syncEvery {
		v.syncLocked()
	}
	return true
}

// Size reports the filter's estimated cardinality, not an exact count;
// bloom filters don't track one.
func (v *FileBackedVisitedSet) Size() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return int(v.filter.ApproximatedSize())
}

// syncLocked flushes the filter's current bit pattern into the mmap
// region. Best-effort: a failed flush loses durability, not correctness,
// since CheckAndInsert consults the in-heap filter, never the snapshot.
func (v *FileBackedVisitedSet) syncLocked() {
	data, err := v.filter.MarshalBinary()
	if err != nil || len(data) > len(v.mmap) {
		return
	}
	copy(v.mmap, data)
	_ = v.mmap.Flush()
	v.count = 0
}

// Close flushes and releases the backing file.
func (v *FileBackedVisitedSet) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.count > 0 {
		v.syncLocked()
	}

	var firstErr error
	if v.mmap != nil {
		if err := v.mmap.Unmap(); err != nil && firstErr == nil {
			firstErr = err
		}
		v.mmap = nil
	}
	if v.file != nil {
		if err := v.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		v.file = nil
	}
	if v.path != "" {
		if err := os.Remove(v.path); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
		v.path = ""
	}
	return firstErr
}

var _ VisitedSet = (*FileBackedVisitedSet)(nil)
