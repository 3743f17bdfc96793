package frontier

import "github.com/crawlkit/engine/pkg/failure"

/*
Queue is the abstract frontier contract spec.md §4.3 describes: a
thread-safe FIFO with dedup, a size cap, and backpressure, implemented
by one of the named Backends below. The coordinator only ever depends
on this interface, never on a concrete backend, so swapping
memory_only for file_backed is a config change, not a code change.
*/
type Queue interface {
	// Enqueue admits task unless its fingerprint has already been seen
	// (Duplicate) or the queue is at capacity (RejectedFull).
	Enqueue(fp string, task CrawlTask) EnqueueOutcome

	// Dequeue blocks until a task is available or the queue is closed,
	// matching the second return value to false only in the latter case.
	Dequeue() (CrawlTask, bool)

	// Close is irreversible: subsequent Enqueue calls fail, and pending
	// Dequeue calls drain the remaining tasks before returning false.
	Close()

	Size() int
	Empty() bool
}

// QueueFullErrorCause distinguishes why a fingerprint-queue pairing
// could not be admitted, for metadata recording.
const QueueFullErrorCause = "queue at capacity"

// QueueFullError is the transient error spec.md §4.3/§7 names for an
// Enqueue rejected because the queue has reached its configured size
// cap. It is never retried by the queue itself — callers decide whether
// to drop the link or count it, per spec.md §5.
type QueueFullError struct {
	Host string
}

func (e *QueueFullError) Error() string {
	return "queue full, rejected enqueue for host " + e.Host
}

func (e *QueueFullError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

func (e *QueueFullError) IsRetryable() bool {
	return true
}
