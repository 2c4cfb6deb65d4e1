// Package normalize turns source CSV rows into canonical asset records.
//
// The header line is checked against the data contract before any record
// is produced. Each cell is cleaned (newline runs become a comma, byte
// order marks and surrounding whitespace are removed) and the identifier
// cell is split on commas, so one row can yield several records that share
// the same attributes.
package normalize

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/roach88/attrsync/internal/contract"
	"github.com/roach88/attrsync/internal/ir"
)

// ContractError reports the required columns the input does not carry.
type ContractError struct {
	Missing []string
}

// Error implements the error interface.
func (e *ContractError) Error() string {
	return fmt.Sprintf("broken contract: input CSV missing required fields: %s", strings.Join(e.Missing, ", "))
}

// IsContractError reports whether err is, or wraps, a *ContractError.
func IsContractError(err error) bool {
	var ce *ContractError
	return errors.As(err, &ce)
}

// Reader yields asset records from CSV input.
type Reader struct {
	csv       *csv.Reader
	contract  *contract.Contract
	idIndex   int
	attrIndex []int
	pending   []ir.AssetRecord
	rows      int
}

// NewReader reads and validates the header line. It fails with a
// *ContractError naming every missing column, sorted, before any record is
// read.
func NewReader(r io.Reader, c *contract.Contract) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[ir.CleanField(h)] = i
	}

	var missing []string
	for _, field := range c.RequiredFields() {
		if _, ok := index[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, &ContractError{Missing: missing}
	}

	nr := &Reader{
		csv:       cr,
		contract:  c,
		idIndex:   index[c.IDField],
		attrIndex: make([]int, len(c.Attributes)),
	}
	for i, m := range c.Attributes {
		nr.attrIndex[i] = index[m.Source]
	}
	return nr, nil
}

// Next returns the next record, or io.EOF when the input is exhausted.
// Rows without any identifier produce no records.
func (r *Reader) Next() (ir.AssetRecord, error) {
	for len(r.pending) == 0 {
		row, err := r.csv.Read()
		if errors.Is(err, io.EOF) {
			return ir.AssetRecord{}, io.EOF
		}
		if err != nil {
			return ir.AssetRecord{}, fmt.Errorf("read csv row: %w", err)
		}
		r.rows++
		r.expand(row)
	}

	rec := r.pending[0]
	r.pending = r.pending[1:]
	return rec, nil
}

// Rows returns the number of data rows read so far.
func (r *Reader) Rows() int {
	return r.rows
}

func (r *Reader) expand(row []string) {
	ids := ir.SplitIDs(cell(row, r.idIndex))
	if len(ids) == 0 {
		return
	}

	attrs := make(ir.Attributes, len(r.contract.Attributes))
	for i, m := range r.contract.Attributes {
		attrs[i] = ir.Attribute{Key: m.Key, Value: ir.CleanCell(cell(row, r.attrIndex[i]))}
	}

	for _, id := range ids {
		r.pending = append(r.pending, ir.AssetRecord{
			AssetID:    id,
			Attributes: slices.Clone(attrs),
		})
	}
}

// cell returns row[i], or "" for short rows.
func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// ReadAll drains r into a slice.
func ReadAll(r io.Reader, c *contract.Contract) ([]ir.AssetRecord, error) {
	nr, err := NewReader(r, c)
	if err != nil {
		return nil, err
	}

	var records []ir.AssetRecord
	for {
		rec, err := nr.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
}

// ReadFile reads every record from the CSV file at path.
func ReadFile(path string, c *contract.Contract) ([]ir.AssetRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv file: %w", err)
	}
	defer f.Close()

	return ReadAll(f, c)
}
