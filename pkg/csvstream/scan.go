package csvstream

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
)

// Stream is the subset of Reader used by the scan helpers.
type Stream interface {
	Header() []string
	Next() (map[string]string, error)
}

// Metadata describes the shape of a file.
type Metadata struct {
	Columns  []string
	RowCount int
}

// ScanMetadata reads the whole stream and counts its records.
func ScanMetadata(s Stream) (*Metadata, error) {
	md := &Metadata{Columns: append([]string(nil), s.Header()...)}
	for {
		_, err := s.Next()
		if errors.Is(err, io.EOF) {
			return md, nil
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", md.RowCount, err)
		}
		md.RowCount++
	}
}

// ValueStats is the distinct-value profile of one column.
type ValueStats struct {
	Values     map[string]int
	TotalRows  int
	EmptyCount int
}

// UniqueValues counts the trimmed non-empty values of column over at most
// limit rows. limit <= 0 scans everything.
func UniqueValues(s Stream, column string, limit int) (*ValueStats, error) {
	if !HasColumn(s.Header(), column) {
		return nil, fmt.Errorf("column %q not found", column)
	}
	vs := &ValueStats{Values: make(map[string]int)}
	for limit <= 0 || vs.TotalRows < limit {
		rec, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", vs.TotalRows, err)
		}
		vs.TotalRows++
		v := strings.TrimSpace(rec[column])
		if v == "" {
			vs.EmptyCount++
			continue
		}
		vs.Values[v]++
	}
	return vs, nil
}

// TopValues returns at most n values ordered by descending count, then value.
func TopValues(values map[string]int, n int) []models.ValueCount {
	out := make([]models.ValueCount, 0, len(values))
	for v, c := range values {
		out = append(out, models.ValueCount{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// CollectRows returns the records whose 0-based index is in indices, in file
// order, stopping after limit rows.
func CollectRows(s Stream, indices []int, limit int) ([]map[string]string, error) {
	want := make(map[int]struct{}, len(indices))
	last := -1
	for _, i := range indices {
		want[i] = struct{}{}
		if i > last {
			last = i
		}
	}
	rows := []map[string]string{}
	for idx := 0; idx <= last; idx++ {
		if limit > 0 && len(rows) >= limit {
			break
		}
		rec, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", idx, err)
		}
		if _, ok := want[idx]; ok {
			rows = append(rows, rec)
		}
	}
	return rows, nil
}

// HasColumn reports whether header contains column.
func HasColumn(header []string, column string) bool {
	for _, h := range header {
		if h == column {
			return true
		}
	}
	return false
}
