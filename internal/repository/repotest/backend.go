// Package repotest provides an in-memory stand-in for the backend REST API,
// used by tests across the coordinator packages.
package repotest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/blockedby/tgcrawler/internal/api"
)

// Backend is an in-memory implementation of the repository backend. It
// honors the _sort/_order/_limit query controls and reports unique
// violations the way the real backend does, with api.ErrUniqueConstraint.
type Backend struct {
	mu   sync.Mutex
	seq  int
	rows map[string]map[string]map[string]any

	// Unique declares natural keys per type; Create conflicts on them.
	Unique map[string][]string
}

func New() *Backend {
	return &Backend{rows: make(map[string]map[string]map[string]any), Unique: make(map[string][]string)}
}

func (b *Backend) table(typ string) map[string]map[string]any {
	if b.rows[typ] == nil {
		b.rows[typ] = make(map[string]map[string]any)
	}
	return b.rows[typ]
}

func (b *Backend) List(_ context.Context, typ string, query map[string]string) ([]map[string]any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sortKey := query["_sort"]
	order := query["_order"]
	limit := 0
	if v, ok := query["_limit"]; ok {
		limit, _ = strconv.Atoi(v)
	}

	var out []map[string]any
	for _, row := range b.table(typ) {
		match := true
		for k, v := range query {
			if k == "_sort" || k == "_order" || k == "_limit" {
				continue
			}
			if fmt.Sprint(row[k]) != v {
				match = false
				break
			}
		}
		if match {
			out = append(out, copyRow(row))
		}
	}

	if sortKey != "" {
		sort.Slice(out, func(i, j int) bool {
			less := lessValue(out[i][sortKey], out[j][sortKey])
			if order == "desc" {
				return !less
			}
			return less
		})
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (b *Backend) Get(_ context.Context, typ, id string) (map[string]any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	row, ok := b.table(typ)[id]
	if !ok {
		return nil, api.ErrNotFound
	}
	return copyRow(row), nil
}

func (b *Backend) Create(_ context.Context, typ string, body map[string]any) (map[string]any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if keys := b.Unique[typ]; len(keys) > 0 {
		for _, row := range b.table(typ) {
			same := true
			for _, k := range keys {
				if fmt.Sprint(row[k]) != fmt.Sprint(body[k]) {
					same = false
					break
				}
			}
			if same {
				return nil, api.ErrUniqueConstraint
			}
		}
	}

	b.seq++
	id := strconv.Itoa(b.seq)
	row := normalizeRow(body)
	row["id"] = id
	b.table(typ)[id] = row
	return copyRow(row), nil
}

func (b *Backend) Update(_ context.Context, typ, id string, body map[string]any) (map[string]any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	row := normalizeRow(body)
	row["id"] = id
	b.table(typ)[id] = row
	return copyRow(row), nil
}

func (b *Backend) Delete(_ context.Context, typ, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.table(typ), id)
	return nil
}

// Set mutates one field of a stored row, simulating out-of-band writes such
// as an operator entering a login code.
func (b *Backend) Set(typ, id, field string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.table(typ)[id][field] = value
}

// Count returns the number of rows of a type.
func (b *Backend) Count(typ string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.table(typ))
}

func lessValue(a, b any) bool {
	af, aerr := strconv.ParseFloat(fmt.Sprint(a), 64)
	bf, berr := strconv.ParseFloat(fmt.Sprint(b), 64)
	if aerr == nil && berr == nil {
		return af < bf
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

// normalizeRow round-trips a body through JSON so stored values carry the
// types the real REST backend would return (float64 numbers, plain strings),
// matching what entity Deserialize expects.
func normalizeRow(row map[string]any) map[string]any {
	data, err := json.Marshal(row)
	if err != nil {
		panic(fmt.Sprintf("repotest: marshal row: %v", err))
	}
	out := make(map[string]any, len(row))
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("repotest: unmarshal row: %v", err))
	}
	return out
}

func copyRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
