package export

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/facilityops/watchpost/internal/conf"
	"github.com/facilityops/watchpost/internal/datastore/entities"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// WriteCSV writes the header and one line per rule. The whole document is
// rendered in memory first; on error nothing reaches w.
func WriteCSV(w io.Writer, rules []entities.WatchRule, opts Options) error {
	opts = opts.normalize()

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("%w: header: %w", ErrExport, err)
	}
	for _, row := range Rows(rules, opts) {
		if err := cw.Write(row.Values()); err != nil {
			return fmt.Errorf("%w: row: %w", ErrExport, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrExport, err)
	}

	var out []byte
	switch opts.Encoding {
	case conf.EncodingUTF8BOM:
		out = append(append(make([]byte, 0, len(utf8BOM)+buf.Len()), utf8BOM...), buf.Bytes()...)
	case conf.EncodingGB18030:
		encoded, _, err := transform.Bytes(simplifiedchinese.GB18030.NewEncoder(), buf.Bytes())
		if err != nil {
			return fmt.Errorf("%w: gb18030: %w", ErrExport, err)
		}
		out = encoded
	default:
		return fmt.Errorf("%w: unsupported encoding %q", ErrExport, opts.Encoding)
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(out); err != nil {
		return fmt.Errorf("%w: %w", ErrExport, err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: %w", ErrExport, err)
	}
	return nil
}

// ParseCSV reads a document produced by WriteCSV. UTF-8 input (with or
// without BOM) is read as is; anything else is decoded as GB18030.
func ParseCSV(r io.Reader) ([]Row, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		data, _, err = transform.Bytes(simplifiedchinese.GB18030.NewDecoder(), data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode gb18030 csv: %w", err)
		}
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = len(Header)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("csv is empty")
	}
	for i, name := range Header {
		if records[0][i] != name {
			return nil, fmt.Errorf("unexpected column %d %q, want %q", i+1, records[0][i], name)
		}
	}

	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		rows = append(rows, rowFromValues(rec))
	}
	return rows, nil
}
