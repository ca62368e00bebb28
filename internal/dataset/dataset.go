// Package dataset loads numeric tables from CSV, TSV or pandas split-JSON files.
package dataset

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// ErrUnsupportedFormat is returned for file extensions Load does not know.
var ErrUnsupportedFormat = errors.New("unsupported dataset format")

// Dataset is a numeric table; rows are observations, columns are features.
type Dataset struct {
	Columns []string
	Index   []string
	Rows    [][]float64
}

// Dims returns the number of rows and columns.
func (d *Dataset) Dims() (int, int) {
	return len(d.Rows), len(d.Columns)
}

// Matrix copies the rows into a dense matrix.
func (d *Dataset) Matrix() *mat.Dense {
	r, c := d.Dims()
	m := mat.NewDense(r, c, nil)
	for i, row := range d.Rows {
		m.SetRow(i, row)
	}
	return m
}

// Load reads the dataset at path, choosing the decoder from its extension.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	var ds *Dataset
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		ds, err = ReadDelimited(bufio.NewReader(f), ',')
	case ".tsv":
		ds, err = ReadDelimited(bufio.NewReader(f), '\t')
	case ".json":
		ds, err = ReadSplitJSON(f)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset %s: %w", path, err)
	}
	return ds, nil
}

// ReadDelimited parses a table with a header row. A leading column whose
// header is empty or "index" holds row labels, matching pandas to_csv.
func ReadDelimited(r io.Reader, comma rune) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	// A tab counts as leading space, which would swallow an empty index header.
	reader.TrimLeadingSpace = comma != '\t'

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("empty table")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	hasIndex := len(header) > 0 && (header[0] == "" || strings.EqualFold(header[0], "index"))
	first := 0
	if hasIndex {
		first = 1
	}
	ds := &Dataset{Columns: append([]string(nil), header[first:]...)}
	if len(ds.Columns) == 0 {
		return nil, errors.New("table has no feature columns")
	}

	for line := 2; ; line++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		row := make([]float64, len(ds.Columns))
		for j, cell := range rec[first:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %q: not numeric: %q", line, ds.Columns[j], cell)
			}
			if !finite(v) {
				return nil, fmt.Errorf("line %d column %q: not finite: %q", line, ds.Columns[j], cell)
			}
			row[j] = v
		}
		if hasIndex {
			ds.Index = append(ds.Index, rec[0])
		} else {
			ds.Index = append(ds.Index, strconv.Itoa(len(ds.Rows)))
		}
		ds.Rows = append(ds.Rows, row)
	}

	if len(ds.Rows) == 0 {
		return nil, errors.New("table has no rows")
	}
	return ds, nil
}

// splitTable is the pandas DataFrame.to_json(orient="split") layout.
type splitTable struct {
	Columns []json.RawMessage `json:"columns"`
	Index   []json.RawMessage `json:"index"`
	Data    [][]*float64      `json:"data"`
}

// ReadSplitJSON parses a pandas split-oriented JSON document. Null cells
// are rejected.
func ReadSplitJSON(r io.Reader) (*Dataset, error) {
	var t splitTable
	if err := json.NewDecoder(r).Decode(&t); err != nil {
		return nil, fmt.Errorf("failed to decode JSON table: %w", err)
	}
	if len(t.Columns) == 0 {
		return nil, errors.New("table has no feature columns")
	}
	if len(t.Data) == 0 {
		return nil, errors.New("table has no rows")
	}
	if len(t.Index) != 0 && len(t.Index) != len(t.Data) {
		return nil, fmt.Errorf("index has %d labels for %d rows", len(t.Index), len(t.Data))
	}

	ds := &Dataset{
		Columns: make([]string, len(t.Columns)),
		Index:   make([]string, len(t.Data)),
		Rows:    make([][]float64, len(t.Data)),
	}
	for j, c := range t.Columns {
		ds.Columns[j] = label(c)
	}
	for i, cells := range t.Data {
		if len(cells) != len(ds.Columns) {
			return nil, fmt.Errorf("row %d has %d cells, want %d", i, len(cells), len(ds.Columns))
		}
		row := make([]float64, len(cells))
		for j, c := range cells {
			if c == nil {
				return nil, fmt.Errorf("row %d column %q is null", i, ds.Columns[j])
			}
			if !finite(*c) {
				return nil, fmt.Errorf("row %d column %q is not finite", i, ds.Columns[j])
			}
			row[j] = *c
		}
		ds.Rows[i] = row
		if len(t.Index) > 0 {
			ds.Index[i] = label(t.Index[i])
		} else {
			ds.Index[i] = strconv.Itoa(i)
		}
	}
	return ds, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// label renders a JSON scalar (string or number) as a plain string.
func label(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
