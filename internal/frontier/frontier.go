package frontier

import (
	"sync"

	"github.com/crawlkit/engine/internal/config"
	"github.com/crawlkit/engine/pkg/urlutil"
)

/*
Frontier Responsibilities
- Maintain BFS ordering
- Deduplicate URLs
- Track crawl depth
- Prevent infinite traversal
- Knows nothing about:
	- fetching
	- extraction
	- robots admission
	- storage

It is a data structure + policy module, not a pipeline executor.
*/

// CrawlFrontier is the bounded, thread-safe URL frontier described by
// the engine's queue and dedup behavior: a priority-by-depth queue that
// never releases a URL at depth N+1 while any depth-N URL remains
// pending, backed by a VisitedSet keyed on the normalized URL's
// fingerprint. It implements Queue, with depth-bucketing as a stricter
// ordering guarantee than spec.md §4.3 requires (FIFO per producer), not
// a weaker one.
//
// The zero value is not usable; call Init before Submit/Dequeue.
type CrawlFrontier struct {
	mu   sync.Mutex
	cond *sync.Cond

	cfg    config.Config
	limits urlutil.Limits

	depthQueues map[int]*FIFOQueue[CrawlTask]
	visited     VisitedSet
	pending     int
	maxSize     int
	closed      bool
}

func NewCrawlFrontier() *CrawlFrontier {
	return &CrawlFrontier{}
}

// Init (re)configures the frontier with the in-memory VisitedSet
// backend. Must be called before Submit/Dequeue.
func (f *CrawlFrontier) Init(cfg config.Config) {
	f.InitWithBackend(cfg, NewMemoryVisitedSet())
}

// InitWithBackend (re)configures the frontier with a caller-supplied
// VisitedSet backend, e.g. a FileBackedVisitedSet for large crawls.
func (f *CrawlFrontier) InitWithBackend(cfg config.Config, visited VisitedSet) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cfg = cfg
	f.limits = urlutil.DefaultLimits
	f.depthQueues = make(map[int]*FIFOQueue[CrawlTask])
	f.visited = visited
	f.pending = 0
	f.closed = false
	f.cond = sync.NewCond(&f.mu)
}

// SetMaxSize bounds the number of tasks the frontier will hold pending
// (across all depths) before Submit reports RejectedFull, matching
// spec.md §6's url_queue_size_limit. Zero (the default) means unbounded.
func (f *CrawlFrontier) SetMaxSize(maxSize int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.maxSize = maxSize
}

// Submit admits a CrawlAdmissionCandidate into the frontier, returning
// the outcome spec.md §4.3 defines. The caller has already cleared
// robots and scope admission; Submit only enforces depth/page budgets,
// the size cap, and deduplication.
func (f *CrawlFrontier) Submit(candidate CrawlAdmissionCandidate) EnqueueOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return RejectedFull
	}

	depth := candidate.DiscoveryMetadata().Depth()
	if maxDepth := f.cfg.MaxDepth(); maxDepth > 0 && depth > maxDepth {
		return RejectedFull
	}

	targetURL := candidate.TargetURL()
	key := f.dedupKey(targetURL.String())

	if maxPages := f.cfg.MaxPages(); maxPages > 0 && f.visited.Size() >= maxPages {
		return RejectedFull
	}
	if f.maxSize > 0 && f.pending >= f.maxSize {
		return RejectedFull
	}

	if !f.visited.CheckAndInsert(key) {
		return Duplicate
	}

	q, ok := f.depthQueues[depth]
	if !ok {
		q = NewFIFOQueue[CrawlTask]()
		f.depthQueues[depth] = q
	}

	meta := candidate.DiscoveryMetadata()
	via := meta.DiscoveredVia()
	if via == "" {
		via = DiscoveredViaHTMLLink
		if candidate.SourceContext() == SourceSeed {
			via = DiscoveredViaSeed
		}
	}

	q.Enqueue(NewCrawlTask(targetURL, depth, meta.Referer(), via))
	f.pending++
	f.cond.Broadcast()
	return Enqueued
}

// Enqueue satisfies the Queue interface directly: fp is the candidate's
// fingerprint, computed by the caller (the coordinator already holds
// the normalized URL by the time it calls this).
func (f *CrawlFrontier) Enqueue(fp string, task CrawlTask) EnqueueOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return RejectedFull
	}
	if f.maxSize > 0 && f.pending >= f.maxSize {
		return RejectedFull
	}
	if !f.visited.CheckAndInsert(fp) {
		return Duplicate
	}

	q, ok := f.depthQueues[task.Depth()]
	if !ok {
		q = NewFIFOQueue[CrawlTask]()
		f.depthQueues[task.Depth()] = q
	}
	q.Enqueue(task)
	f.pending++
	f.cond.Broadcast()
	return Enqueued
}

// dedupKey canonicalizes raw for deduplication purposes. A URL that
// fails normalization still dedups correctly on its raw string form.
func (f *CrawlFrontier) dedupKey(raw string) string {
	normalized, err := urlutil.Normalize(raw, f.limits)
	if err != nil {
		return raw
	}
	return normalized.FingerprintHex()
}

// Dequeue returns the next task in strict BFS order: the lowest depth
// with any pending task. It does not block — an empty frontier returns
// false immediately, whether or not it has been closed. Workers that
// need to wait for more work (or for Close) use DequeueWait instead;
// this split keeps direct Dequeue callers (tests, single-shot draining)
// simple while still giving the coordinator a true blocking primitive.
func (f *CrawlFrontier) Dequeue() (CrawlTask, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dequeueLocked()
}

func (f *CrawlFrontier) dequeueLocked() (CrawlTask, bool) {
	depth := f.currentMinDepthLocked()
	if depth == -1 {
		return CrawlTask{}, false
	}
	task, ok := f.depthQueues[depth].Dequeue()
	if ok {
		f.pending--
	}
	return task, ok
}

// DequeueWait blocks until a task is available or the frontier is
// closed with nothing left pending, matching the Queue interface's
// documented contract. This is what coordinator workers call.
func (f *CrawlFrontier) DequeueWait() (CrawlTask, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		if task, ok := f.dequeueLocked(); ok {
			return task, true
		}
		if f.closed {
			return CrawlTask{}, false
		}
		f.cond.Wait()
	}
}

// Close is irreversible: pending Dequeue calls still drain remaining
// tasks, but no further Submit/Enqueue will be admitted.
func (f *CrawlFrontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.cond.Broadcast()
}

// Empty reports whether the frontier currently has no pending tasks.
func (f *CrawlFrontier) Empty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending == 0
}

// IsDepthExhausted reports whether depth has no pending tokens. A
// negative depth, or one the frontier has never seen, is exhausted.
func (f *CrawlFrontier) IsDepthExhausted(depth int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if depth < 0 {
		return true
	}
	q, ok := f.depthQueues[depth]
	if !ok {
		return true
	}
	return q.Size() == 0
}

// CurrentMinDepth returns the smallest depth with a pending token, or
// -1 if the frontier is empty.
func (f *CrawlFrontier) CurrentMinDepth() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.currentMinDepthLocked()
}

func (f *CrawlFrontier) currentMinDepthLocked() int {
	min := -1
	for depth, q := range f.depthQueues {
		if q.Size() == 0 {
			continue
		}
		if min == -1 || depth < min {
			min = depth
		}
	}
	return min
}

// VisitedCount returns the number of unique URLs ever admitted, whether
// or not they've since been dequeued.
func (f *CrawlFrontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visited.Size()
}

// Size returns the number of tasks currently pending across all depths.
func (f *CrawlFrontier) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

// AsQueue adapts f to the Queue interface's blocking Dequeue contract.
// CrawlFrontier's own Dequeue stays non-blocking (existing callers and
// tests rely on that), so production code that wants the spec.md §4.3
// blocking behavior goes through this adapter instead.
func (f *CrawlFrontier) AsQueue() Queue {
	return frontierQueue{f}
}

type frontierQueue struct {
	f *CrawlFrontier
}

func (q frontierQueue) Enqueue(fp string, task CrawlTask) EnqueueOutcome {
	return q.f.Enqueue(fp, task)
}

func (q frontierQueue) Dequeue() (CrawlTask, bool) {
	return q.f.DequeueWait()
}

func (q frontierQueue) Close()        { q.f.Close() }
func (q frontierQueue) Size() int     { return q.f.Size() }
func (q frontierQueue) Empty() bool   { return q.f.Empty() }

var _ Queue = frontierQueue{}
