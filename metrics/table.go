package metrics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// Entry is a single label and how often it was seen.
type Entry struct {
	Key   string
	Count int64
}

// Table is a list of entries sorted by descending count. It marshals to a JSON
// object whose keys keep that order.
type Table []Entry

// Get returns the count stored for key.
func (t Table) Get(key string) (int64, bool) {
	for _, e := range t {
		if e.Key == key {
			return e.Count, true
		}
	}
	return 0, false
}

func (t Table) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range t {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		fmt.Fprintf(&buf, "%d", e.Count)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (t *Table) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return err
	}

	var out Table
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("metrics table: unexpected key %v", tok)
		}

		var count int64
		if err := dec.Decode(&count); err != nil {
			return err
		}
		out = append(out, Entry{Key: key, Count: count})
	}

	*t = out
	return nil
}

// frequencies counts occurrences per label. Entries are created on first use
// and never removed.
type frequencies struct {
	m sync.Map // string -> *atomic.Int64
}

func (f *frequencies) inc(key string) {
	if v, ok := f.m.Load(key); ok {
		v.(*atomic.Int64).Add(1)
		return
	}

	v, _ := f.m.LoadOrStore(key, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)
}

// top returns at most n entries ordered by descending count, ties by key.
func (f *frequencies) top(n int) Table {
	var all Table
	f.m.Range(func(k, v any) bool {
		all = append(all, Entry{Key: k.(string), Count: v.(*atomic.Int64).Load()})
		return true
	})

	sort.Slice(all, func(i, j int) bool {
		if all[i].Count != all[j].Count {
			return all[i].Count > all[j].Count
		}
		return all[i].Key < all[j].Key
	})

	if len(all) > n {
		all = all[:n]
	}
	return all
}
