package havenmem

import (
	"strings"
	"sync"
)

// DefaultFIFOCapacity is the FIFO queue size used when an agent does not
// specify one (§3 Agent.FIFOCapacity).
const DefaultFIFOCapacity = 50

// MaxWorkingMemoryBytes is the size cap enforced on the rendered working
// memory document after every update_working_memory call (§4.6).
const MaxWorkingMemoryBytes = 2048

// eligibleForArchival reports whether a ConversationEntry may be promoted
// to archival memory on FIFO overflow: non-empty content, and a role the
// spec explicitly includes (§4.2; tool_call and system_announcement rows
// are excluded even when non-empty).
func eligibleForArchival(e ConversationEntry) bool {
	if strings.TrimSpace(e.Content) == "" {
		return false
	}
	switch e.Role {
	case RoleUser, RoleAssistant, RoleToolResult:
		return true
	default:
		return false
	}
}

// fifoQueue is the bounded in-memory view over one agent's conversation
// log (§4.2). The log itself (held in Store) is never pruned; fifoQueue
// only tracks what is currently visible to the context assembler.
type fifoQueue struct {
	mu       sync.Mutex
	capacity int
	view     []ConversationEntry
}

func newFIFOQueue(capacity int) *fifoQueue {
	if capacity <= 0 {
		capacity = DefaultFIFOCapacity
	}
	return &fifoQueue{capacity: capacity}
}

// loadFromLog seeds the view from the last-K rows of the persisted log, in
// chronological order. No overflow promotion is re-run (§4.2, §8 restart
// replay).
func (q *fifoQueue) loadFromLog(entries []ConversationEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.view = append([]ConversationEntry(nil), entries...)
}

// items returns a snapshot of the current bounded view, oldest first.
func (q *fifoQueue) items() []ConversationEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]ConversationEntry, len(q.view))
	copy(out, q.view)
	return out
}

// append adds entry to the tail. If the view now exceeds capacity, the
// single oldest entry is popped and returned for the caller to attempt
// archival promotion (best-effort; §4.2).
func (q *fifoQueue) append(entry ConversationEntry) (overflowed ConversationEntry, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.view = append(q.view, entry)
	if len(q.view) > q.capacity {
		overflowed = q.view[0]
		q.view = q.view[1:]
		ok = true
	}
	return overflowed, ok
}

func (q *fifoQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.view)
}

// workingMemoryDoc is the single mutable key-value document the engine
// treats as opaque text (§3 WorkingMemory). It is rendered deterministically
// as "field: value" lines in first-set order, so repeated updates of the
// same field are idempotent in shape.
type workingMemoryDoc struct {
	mu     sync.Mutex
	fields map[string]string
	order  []string
}

func parseWorkingMemoryDoc(text string) *workingMemoryDoc {
	d := &workingMemoryDoc{fields: make(map[string]string)}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		field, value, found := strings.Cut(line, ": ")
		if !found {
			continue
		}
		d.setLocked(field, value)
	}
	return d
}

func (d *workingMemoryDoc) setLocked(field, value string) {
	if _, exists := d.fields[field]; !exists {
		d.order = append(d.order, field)
	}
	d.fields[field] = value
}

func (d *workingMemoryDoc) render() string {
	var b strings.Builder
	for _, field := range d.order {
		b.WriteString(field)
		b.WriteString(": ")
		b.WriteString(d.fields[field])
		b.WriteString("\n")
	}
	return b.String()
}

func (d *workingMemoryDoc) text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.render()
}

// set updates field to value and returns the newly rendered document. If
// the result exceeds MaxWorkingMemoryBytes, the update is rejected and the
// document is left unchanged (§4.6 update_working_memory bounds).
func (d *workingMemoryDoc) set(field, value string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	prevValue, existed := d.fields[field]
	d.setLocked(field, value)
	rendered := d.render()
	if len(rendered) > MaxWorkingMemoryBytes {
		if existed {
			d.fields[field] = prevValue
		} else {
			delete(d.fields, field)
			d.order = d.order[:len(d.order)-1]
		}
		return "", &ErrValidation{Field: "value", Reason: "working memory document would exceed 2 KiB cap"}
	}
	return rendered, nil
}
