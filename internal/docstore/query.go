package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// envelope is the stored form used by the key-value backends.
type envelope struct {
	Version int64           `json:"v"`
	Data    json.RawMessage `json:"d"`
}

func (e envelope) document(id string) Document {
	return Document{ID: id, Version: e.Version, Data: e.Data}
}

// matcher evaluates Query equality in process for backends that cannot push
// the filter down.
type matcher struct {
	field string
	want  []byte
}

func newMatcher(q Query) (*matcher, error) {
	if q.Field == "" {
		return &matcher{}, nil
	}
	want, err := json.Marshal(q.Value)
	if err != nil {
		return nil, fmt.Errorf("encode query value: %w", err)
	}
	return &matcher{field: q.Field, want: want}, nil
}

func (m *matcher) match(data json.RawMessage) bool {
	if m.field == "" {
		return true
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return false
	}
	raw, ok := fields[m.field]
	if !ok {
		return false
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return false
	}
	return bytes.Equal(buf.Bytes(), m.want)
}

// sortDocuments orders docs by a top-level field; ties and the unsorted case
// fall back to document id.
func sortDocuments(docs []Document, orderBy string, descending bool) {
	keys := make([]any, len(docs))
	if orderBy != "" {
		for i, doc := range docs {
			var fields map[string]any
			if err := json.Unmarshal(doc.Data, &fields); err == nil {
				keys[i] = fields[orderBy]
			}
		}
	}
	idx := make([]int, len(docs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ia, ib := idx[a], idx[b]
		c := compareValues(keys[ia], keys[ib])
		if c == 0 {
			c = compareStrings(docs[ia].ID, docs[ib].ID)
		}
		if descending {
			return c > 0
		}
		return c < 0
	})
	sorted := make([]Document, len(docs))
	for i, j := range idx {
		sorted[i] = docs[j]
	}
	copy(docs, sorted)
}

func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

func compareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return ra - rb
	}
	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case string:
		return compareStrings(av, b.(string))
	}
	return 0
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
