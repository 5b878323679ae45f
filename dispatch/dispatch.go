// Package dispatch models the boundary a real network layer would use to
// turn an incoming record frame into a submitted procedure: a type_id ->
// Handler table, grounded on
// original_source/src/sas/core/BeanCodec.java's registerAllBeans/createBean
// dispatch table. No transport is implemented here; the TCP/session/filter-
// chain layer is out of scope, so this package only shows the shape a real
// implementation would plug into.
package dispatch

import (
	"fmt"
	"sync"

	"github.com/shoaldb/keel/octets"
)

// Handler decodes one incoming record body and submits whatever procedure
// it constructs. sid identifies the originating session for FIFO ordering.
type Handler func(sid int64, body *octets.Octets) error

// Table maps a record's type_id to the Handler responsible for it.
type Table struct {
	mu       sync.RWMutex
	handlers map[int]Handler
}

// NewTable returns an empty dispatch Table.
func NewTable() *Table {
	return &Table{handlers: make(map[int]Handler)}
}

// Register installs handler for typeID, overwriting any prior registration.
func (t *Table) Register(typeID int, handler Handler) {
	t.mu.Lock()
	t.handlers[typeID] = handler
	t.mu.Unlock()
}

// Dispatch looks up typeID's handler and invokes it with body.
func (t *Table) Dispatch(sid int64, typeID int, body *octets.Octets) error {
	t.mu.RLock()
	h, ok := t.handlers[typeID]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("dispatch: no handler registered for type_id %d", typeID)
	}
	return h(sid, body)
}
