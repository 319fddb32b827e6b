// Package csvmerge joins per-run timing CSVs into one wide table.
package csvmerge

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

var (
	ErrNoInputs         = errors.New("no input files")
	ErrMalformedRow     = errors.New("malformed row")
	ErrRowCountMismatch = errors.New("row count mismatch")
	ErrIDMismatch       = errors.New("identifier mismatch")
)

// Record is one id,value row
type Record struct {
	ID    string
	Value string
}

// Input is one parsed CSV file and the column name it contributes
type Input struct {
	Name    string
	Records []Record
}

// Read parses a two-column id,value CSV. A first row whose value is not
// numeric is taken as a header and skipped.
func Read(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true

	var records []Record
	for line := 1; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRow, err)
		}

		id, value := strings.TrimSpace(row[0]), strings.TrimSpace(row[1])
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("%w: line %d: value %q is not numeric", ErrMalformedRow, line, value)
		}
		records = append(records, Record{ID: id, Value: value})
	}
	return records, nil
}

// Merge checks that all inputs list the same ids in the same order and
// returns the wide table, header first.
func Merge(inputs []Input) ([][]string, error) {
	if len(inputs) == 0 {
		return nil, ErrNoInputs
	}

	first := inputs[0]
	for _, in := range inputs[1:] {
		if len(in.Records) != len(first.Records) {
			return nil, fmt.Errorf("%w: %s has %d rows, %s has %d",
				ErrRowCountMismatch, first.Name, len(first.Records), in.Name, len(in.Records))
		}
		for i, rec := range in.Records {
			if rec.ID != first.Records[i].ID {
				return nil, fmt.Errorf("%w: row %d: %s has %q, %s has %q",
					ErrIDMismatch, i+1, first.Name, first.Records[i].ID, in.Name, rec.ID)
			}
		}
	}

	header := make([]string, 0, len(inputs)+1)
	header = append(header, "id")
	for _, in := range inputs {
		header = append(header, in.Name)
	}

	rows := [][]string{header}
	for i, rec := range first.Records {
		row := make([]string, 0, len(inputs)+1)
		row = append(row, rec.ID)
		for _, in := range inputs {
			row = append(row, in.Records[i].Value)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ColumnName derives an input's column name from its file name
func ColumnName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// MergeFiles reads every input path, merges them and writes output. The
// output is only created once all inputs have been validated.
func MergeFiles(fs afero.Fs, output string, paths []string) error {
	if len(paths) == 0 {
		return ErrNoInputs
	}

	inputs := make([]Input, 0, len(paths))
	for _, p := range paths {
		records, err := readFile(fs, p)
		if err != nil {
			return err
		}
		inputs = append(inputs, Input{Name: ColumnName(p), Records: records})
	}

	rows, err := Merge(inputs)
	if err != nil {
		return err
	}

	f, err := fs.Create(output)
	if err != nil {
		return fmt.Errorf("create %s: %w", output, err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", output, err)
	}
	return f.Close()
}

func readFile(fs afero.Fs, path string) ([]Record, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	records, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}
