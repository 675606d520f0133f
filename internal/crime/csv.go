package crime

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jszwec/csvutil"
)

// ReadCSV decodes crime export rows. Records with the wrong number of fields
// are skipped and counted in malformed; I/O errors abort the read.
func ReadCSV(r io.Reader) (rows []RawRow, malformed int, err error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	dec, err := csvutil.NewDecoder(reader)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("read csv header: %w", err)
	}

	for {
		var row RawRow
		err := dec.Decode(&row)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.Is(err, csvutil.ErrFieldCount) || errors.As(err, &parseErr) {
				malformed++
				continue
			}
			return nil, malformed, fmt.Errorf("decode csv row %d: %w", len(rows)+malformed+1, err)
		}
		rows = append(rows, row)
	}

	return rows, malformed, nil
}

// LoadCSVFile reads and parses a crime CSV export.
func LoadCSVFile(path string, parser *Parser) (ParseResult, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return ParseResult{}, fmt.Errorf("open crime csv: %w", err)
	}
	defer f.Close()

	rows, malformed, err := ReadCSV(f)
	if err != nil {
		return ParseResult{}, err
	}

	result := parser.Parse(rows)
	if malformed > 0 {
		result.Dropped += malformed
		result.DropReasons["malformed_row"] += malformed
	}
	return result, nil
}
