package canvas

import (
	"slices"
	"time"
)

// LogConfig describes the dependencies of a Log.
type LogConfig struct {
	IDProvider IDProvider
	Clock      func() time.Time
	// MaxElements bounds the log; 0 leaves it unbounded. When full, the oldest elements are evicted.
	MaxElements int
}

// Log is the ordered element history of one room. Log order is append order.
//
// Log is not safe for concurrent use; the owning room serializes access.
type Log struct {
	elements    []Element
	ids         IDProvider
	clock       func() time.Time
	maxElements int
	lastCommit  time.Time
}

// NewLog constructs an empty Log.
func NewLog(cfg LogConfig) *Log {
	ids := cfg.IDProvider
	if ids == nil {
		ids = NewUUIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	maxElements := cfg.MaxElements
	if maxElements < 0 {
		maxElements = 0
	}
	return &Log{
		ids:         ids,
		clock:       clock,
		maxElements: maxElements,
	}
}

// Append commits a payload authored by authorID and returns the stored element.
// If the log is bounded and full, the evicted oldest elements are returned in log order.
// The log is left untouched when no identifier can be issued.
func (l *Log) Append(authorID string, payload Payload) (Element, []Element, error) {
	elementID, err := l.ids.NewID()
	if err != nil {
		return Element{}, nil, err
	}

	var evicted []Element
	if l.maxElements > 0 && len(l.elements) >= l.maxElements {
		overflow := len(l.elements) - l.maxElements + 1
		evicted = make([]Element, overflow)
		copy(evicted, l.elements[:overflow])
		l.elements = slices.Delete(l.elements, 0, overflow)
	}

	element := Element{
		ID:          elementID,
		AuthorID:    authorID,
		Kind:        payload.Kind(),
		Payload:     payload.clone(),
		CommittedAt: l.nextCommitTime(),
	}
	l.elements = append(l.elements, element)
	return element.clone(), evicted, nil
}

// RemoveLastBy removes the most recently appended element authored by authorID.
// Newer elements by other authors are left in place. The scan is linear in the log length.
func (l *Log) RemoveLastBy(authorID string) (Element, bool) {
	for index := len(l.elements) - 1; index >= 0; index-- {
		if l.elements[index].AuthorID != authorID {
			continue
		}
		removed := l.elements[index]
		l.elements = slices.Delete(l.elements, index, index+1)
		return removed, true
	}
	return Element{}, false
}

// Clear empties the log and returns how many elements were dropped.
func (l *Log) Clear() int {
	removed := len(l.elements)
	clear(l.elements)
	l.elements = l.elements[:0]
	return removed
}

// Len returns the number of committed elements.
func (l *Log) Len() int {
	return len(l.elements)
}

// Snapshot returns a copy of the log in order, annotating each element with the name
// resolve returns for its author. Empty names become UnknownAuthorName.
func (l *Log) Snapshot(resolve func(authorID string) string) []SnapshotElement {
	snapshot := make([]SnapshotElement, 0, len(l.elements))
	for _, element := range l.elements {
		name := ""
		if resolve != nil {
			name = resolve(element.AuthorID)
		}
		if name == "" {
			name = UnknownAuthorName
		}
		snapshot = append(snapshot, SnapshotElement{
			Element:    element.clone(),
			AuthorName: name,
		})
	}
	return snapshot
}

// commit times are strictly increasing within a log even if the clock stalls or steps back.
func (l *Log) nextCommitTime() time.Time {
	now := l.clock().UTC()
	if !now.After(l.lastCommit) {
		now = l.lastCommit.Add(time.Nanosecond)
	}
	l.lastCommit = now
	return now
}
