// Package csvstream reads delimited files as forward-only record streams.
package csvstream

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrNoHeader is returned for files without a header line.
var ErrNoHeader = errors.New("file has no header row")

// Reader yields records keyed by header field, in file order.
// Short rows leave trailing fields empty; extra fields are ignored.
type Reader struct {
	csv    *csv.Reader
	header []string
	closer io.Closer
}

// NewReader reads the header from r. If r is an io.Closer it is closed by Close.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = strings.TrimSpace(h)
	}

	rd := &Reader{csv: cr, header: cols}
	if c, ok := r.(io.Closer); ok {
		rd.closer = c
	}
	return rd, nil
}

// Header returns the trimmed header field names.
func (r *Reader) Header() []string {
	return r.header
}

// Next returns the next record, or io.EOF at the end of the file.
func (r *Reader) Next() (map[string]string, error) {
	fields, err := r.csv.Read()
	if err != nil {
		return nil, err
	}
	rec := make(map[string]string, len(r.header))
	for i, h := range r.header {
		if i < len(fields) {
			rec[h] = fields[i]
		} else {
			rec[h] = ""
		}
	}
	return rec, nil
}

// Close releases the underlying reader when it is closable.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
