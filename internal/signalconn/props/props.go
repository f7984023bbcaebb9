// Package props implements the opaque ordered key-value property bag
// exchanged alongside SDP in SETUP/UPDATE/PROPSYNC messages
// (spec.md §4.B).
package props

import (
	"encoding/json"
	"sync"
)

// Props is an ordered string-to-string dictionary. Insertion order is
// preserved across Add, iteration and MarshalJSON; after UnmarshalJSON
// the contents are kept but the order is not defined. The zero value
// is ready to use.
type Props struct {
	mu     sync.RWMutex
	keys   []string
	values map[string]string
}

// New returns an empty Props.
func New() *Props {
	return &Props{values: make(map[string]string)}
}

// Add inserts or updates a key. Updating an existing key does not
// change its position in iteration order.
func (p *Props) Add(key, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.values == nil {
		p.values = make(map[string]string)
	}
	if _, exists := p.values[key]; !exists {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// Get returns the value for key and whether it was present.
func (p *Props) Get(key string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.values[key]
	return v, ok
}

// Len returns the number of entries.
func (p *Props) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.keys)
}

// ForEach iterates entries in insertion order, stopping early if fn
// returns false.
func (p *Props) ForEach(fn func(key, value string) bool) {
	p.mu.RLock()
	keys := make([]string, len(p.keys))
	copy(keys, p.keys)
	values := p.values
	p.mu.RUnlock()

	for _, k := range keys {
		if !fn(k, values[k]) {
			return
		}
	}
}

// Equal reports whether p and other contain the same keys and values,
// independent of insertion order. Used by tests to compare an
// encode-then-decode round trip, since the wire format (a JSON object)
// does not guarantee field order is preserved by a receiver's parser.
func (p *Props) Equal(other *Props) bool {
	if p == nil || other == nil {
		return p == other
	}
	if p.Len() != other.Len() {
		return false
	}
	equal := true
	p.ForEach(func(k, v string) bool {
		ov, ok := other.Get(k)
		if !ok || ov != v {
			equal = false
			return false
		}
		return true
	})
	return equal
}

// MarshalJSON renders the bag as a JSON object, keys in insertion
// order. encoding/json does not guarantee map key order, so this
// builds the object manually rather than marshaling a map.
func (p *Props) MarshalJSON() ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	buf := make([]byte, 0, 64)
	buf = append(buf, '{')
	for i, k := range p.keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(p.values[k])
		if err != nil {
			return nil, err
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, vb...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// UnmarshalJSON populates the bag from a JSON object. Since
// encoding/json decodes objects into Go maps without preserving
// source order, iteration order after decode is the order returned
// by ranging the intermediate map — undefined, but stable content.
// This matches the wire codec's stated policy (spec.md §4.A: "field
// order in output is not significant to receivers").
func (p *Props) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = make([]string, 0, len(m))
	p.values = make(map[string]string, len(m))
	for k, v := range m {
		p.keys = append(p.keys, k)
		p.values[k] = v
	}
	return nil
}
