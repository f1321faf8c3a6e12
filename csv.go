package leads

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// ParseError means the file as a whole couldn't be read; no row of it is imported
type ParseError struct {
	Line int // 0 when unknown
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("csv: line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("csv: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var errNoHeader = errors.New("missing header row")

/*
	ReadRows reads a csv file with a header row. Every record must have as many fields as the header.
	Rows that are blank after trimming are dropped here already
*/
func ReadRows(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &ParseError{Err: errNoHeader}
	}
	if err != nil {
		return nil, toParseError(err)
	}

	rows := []Row{}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, toParseError(err)
		}

		row := make(Row, len(header))
		for i, key := range header {
			row[i] = Cell{Key: key, Value: record[i]}
		}
		if row.blank() {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func toParseError(err error) error {
	var csvErr *csv.ParseError
	if errors.As(err, &csvErr) {
		return &ParseError{Line: csvErr.Line, Err: csvErr.Err}
	}
	return &ParseError{Err: err}
}

// ReadInputs reads a csv file & normalizes every row of it
func ReadInputs(r io.Reader, n *Normalizer) ([]Input, error) {
	rows, err := ReadRows(r)
	if err != nil {
		return nil, err
	}
	return n.NormalizeAll(rows), nil
}

// ImportCSV reads, normalizes & imports a whole csv file. The leads come back in file order
func ImportCSV(ctx context.Context, r io.Reader, s Storage, n *Normalizer) ([]*Lead, error) {
	ins, err := ReadInputs(r, n)
	if err != nil {
		return nil, err
	}
	return s.Import(ctx, ins)
}
