// Package records keeps what the workers observed: the register value history with its
// CSV and HTML exports, an optional bbolt journal behind that history, and the ILA
// sample files.
package records

import (
	"sync"
	"time"
)

// TimeLayout is how history timestamps are rendered (day first).
const TimeLayout = "02/01/2006 15:04:05"

// Value is one distinct value observed at an address.
type Value struct {
	Hex string
	At  time.Time
}

// Entry is the value history of one address, oldest first.
type Entry struct {
	Address uint64
	Values  []Value
}

// HistoryOption configures a History.
type HistoryOption func(*History)

// WithJournal writes every new value through to j.
func WithJournal(j *Journal) HistoryOption {
	return func(h *History) {
		h.journal = j
	}
}

// History records the distinct values seen per register address. It is safe for
// concurrent use.
type History struct {
	journal *Journal

	mu     sync.Mutex
	order  []uint64
	values map[uint64][]Value
}

// NewHistory creates an empty history.
func NewHistory(options ...HistoryOption) *History {
	h := &History{values: map[uint64][]Value{}}
	for _, option := range options {
		option(h)
	}
	return h
}

// Record stores hex for address unless it was already recorded there. It reports
// whether the value was new. A journal write failure keeps the value in memory.
func (h *History) Record(address uint64, hex string, at time.Time) (bool, error) {
	h.mu.Lock()
	seen, known := h.values[address]
	if !known {
		h.order = append(h.order, address)
	}
	for _, v := range seen {
		if v.Hex == hex {
			h.mu.Unlock()
			return false, nil
		}
	}
	h.values[address] = append(seen, Value{Hex: hex, At: at})
	h.mu.Unlock()

	if h.journal != nil {
		if err := h.journal.Put(address, hex, at); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Entries returns the history in first-seen address order.
func (h *History) Entries() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries := make([]Entry, 0, len(h.order))
	for _, address := range h.order {
		entries = append(entries, Entry{
			Address: address,
			Values:  append([]Value(nil), h.values[address]...),
		})
	}
	return entries
}

// Len counts recorded values across all addresses.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, values := range h.values {
		n += len(values)
	}
	return n
}
