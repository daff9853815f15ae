// Package file serves raw job records from a local YAML or JSON file.
package file

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.yaml.in/yaml/v3"

	"github.com/okian/jobrank/internal/adapters/source/memory"
	"github.com/okian/jobrank/internal/domain/model"
	"github.com/okian/jobrank/internal/domain/source"
)

const defaultPageSize = 50

// Adapter reads the file on first use and pages through its records.
type Adapter struct {
	id       string
	path     string
	pageSize int

	once  sync.Once
	inner *memory.Adapter
	err   error
}

// New creates an adapter for path. The file holds a list of records, or a
// mapping with a "jobs" list.
func New(id, path string, pageSize int) *Adapter {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Adapter{id: id, path: path, pageSize: pageSize}
}

// ID returns the source id.
func (a *Adapter) ID() string { return a.id }

// FetchPage returns the page at cursor.
func (a *Adapter) FetchPage(ctx context.Context, cursor string) (source.Page, error) {
	a.once.Do(func() {
		var records []model.RawRecord
		records, a.err = Load(a.path)
		if a.err == nil {
			a.inner = memory.New(a.id, memory.WithPages(memory.Paginate(records, a.pageSize)...))
		}
	})
	if a.err != nil {
		return source.Page{}, a.err
	}
	return a.inner.FetchPage(ctx, cursor)
}

// Load reads raw records from path. YAML is a superset of JSON, so both
// formats decode the same way.
func Load(path string) ([]model.RawRecord, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("read postings file: %w", err)
	}

	var list []map[string]any
	if err := yaml.Unmarshal(data, &list); err != nil {
		var doc struct {
			Jobs []map[string]any `yaml:"jobs"`
		}
		if err2 := yaml.Unmarshal(data, &doc); err2 != nil {
			return nil, fmt.Errorf("decode postings file: %w", err)
		}
		list = doc.Jobs
	}

	out := make([]model.RawRecord, 0, len(list))
	for _, m := range list {
		out = append(out, model.RawRecord(m))
	}
	return out, nil
}
