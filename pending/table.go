package pending

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/viant/idebridge/internal/collection"
)

// ErrNotFound indicates a stale or unknown call id
var ErrNotFound = errors.New("no pending call")

// Table is a concurrency-safe registry of pending calls
type Table struct {
	calls *collection.SyncMap[string, *Call]
}

// Create registers a new call with a generated id
func (t *Table) Create(tool string) *Call {
	call := newCall(uuid.NewString(), tool)
	t.calls.Put(call.ID, call)
	return call
}

// Resolve removes the call and delivers result to its waiter
func (t *Table) Resolve(id string, result json.RawMessage) error {
	call, ok := t.calls.Take(id)
	if !ok {
		return fmt.Errorf("%w with id: %v", ErrNotFound, id)
	}
	call.done <- result
	return nil
}

// Remove drops the call without signaling its slot
func (t *Table) Remove(id string) bool {
	return t.calls.Delete(id)
}

// CancelAll cancels every pending call and returns their number
func (t *Table) CancelAll() int {
	calls := t.calls.Drain()
	for _, call := range calls {
		close(call.done)
	}
	return len(calls)
}

// Len returns number of pending calls
func (t *Table) Len() int {
	return t.calls.Len()
}

// NewTable creates an empty table
func NewTable() *Table {
	return &Table{calls: collection.NewSyncMap[string, *Call]()}
}
