package core

import (
	"encoding/json"
	"fmt"
	"sort"
)

// State is the whole tracker state. Update methods return a new State and
// leave the receiver untouched.
type State struct {
	months   map[MonthKey][]Transaction
	selected MonthKey
}

// NewState builds a state from a month mapping. The selection is the most
// recent month, or empty when there are no months.
func NewState(months map[MonthKey][]Transaction) State {
	s := State{months: make(map[MonthKey][]Transaction, len(months))}
	for k, txs := range months {
		s.months[k] = append(make([]Transaction, 0, len(txs)), txs...)
	}
	if keys := s.Keys(); len(keys) > 0 {
		s.selected = keys[0]
	}
	return s
}

func (s State) clone() State {
	out := State{
		months:   make(map[MonthKey][]Transaction, len(s.months)+1),
		selected: s.selected,
	}
	for k, txs := range s.months {
		out.months[k] = txs
	}
	return out
}

// AddTransaction appends tx to key's sequence, creating it if absent.
func (s State) AddTransaction(key MonthKey, tx Transaction) State {
	out := s.clone()
	prev := s.months[key]
	txs := make([]Transaction, len(prev), len(prev)+1)
	copy(txs, prev)
	out.months[key] = append(txs, tx)
	if out.selected == "" {
		out.selected = key
	}
	return out
}

// EnsureMonth adds an empty sequence for key when it is missing.
func (s State) EnsureMonth(key MonthKey) State {
	if _, ok := s.months[key]; ok {
		return s
	}
	out := s.clone()
	out.months[key] = []Transaction{}
	if out.selected == "" {
		out.selected = key
	}
	return out
}

// Select changes the selected month. The key must be present.
func (s State) Select(key MonthKey) (State, error) {
	if _, ok := s.months[key]; !ok {
		return s, fmt.Errorf("select %s: %w", key, ErrUnknownMonth)
	}
	out := s.clone()
	out.selected = key
	return out, nil
}

func (s State) Selected() MonthKey {
	return s.selected
}

func (s State) Has(key MonthKey) bool {
	_, ok := s.months[key]
	return ok
}

func (s State) Len() int {
	return len(s.months)
}

// Transactions returns a copy of key's sequence, nil when absent.
func (s State) Transactions(key MonthKey) []Transaction {
	txs, ok := s.months[key]
	if !ok {
		return nil
	}
	return append(make([]Transaction, 0, len(txs)), txs...)
}

// Keys returns all month keys, most recent first.
func (s State) Keys() []MonthKey {
	keys := make([]MonthKey, 0, len(s.months))
	for k := range s.months {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] > keys[j] })
	return keys
}

// Months returns a deep copy of the mapping.
func (s State) Months() map[MonthKey][]Transaction {
	out := make(map[MonthKey][]Transaction, len(s.months))
	for k := range s.months {
		out[k] = s.Transactions(k)
	}
	return out
}

// MarshalState encodes the mapping as { "YYYY-MM": [ ... ] }. The selection
// is not persisted.
func MarshalState(s State) ([]byte, error) {
	out := make(map[string][]Transaction, len(s.months))
	for k, txs := range s.months {
		if txs == nil {
			txs = []Transaction{}
		}
		out[string(k)] = txs
	}
	return json.Marshal(out)
}

// UnmarshalState decodes a persisted blob. A null month becomes an empty
// sequence.
func UnmarshalState(data []byte) (State, error) {
	var raw map[string][]Transaction
	if err := json.Unmarshal(data, &raw); err != nil {
		return State{}, fmt.Errorf("decode state: %w", err)
	}
	months := make(map[MonthKey][]Transaction, len(raw))
	for k, txs := range raw {
		if txs == nil {
			txs = []Transaction{}
		}
		months[MonthKey(k)] = txs
	}
	return NewState(months), nil
}
