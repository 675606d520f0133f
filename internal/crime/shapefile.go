package crime

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
)

// ErrMissingField indicates a required DBF attribute is absent from a shapefile.
var ErrMissingField = errors.New("shapefile missing required field")

// dbfNameLimit is the maximum DBF field name length; longer names are truncated on export.
const dbfNameLimit = 10

// ReadShapefile reads point incidents from a shapefile. The point geometry
// supplies X/Y; attributes use the same names as the CSV export. Non-point
// shapes are skipped and counted in skipped.
func ReadShapefile(path string) (rows []RawRow, skipped int, err error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open shapefile: %w", err)
	}
	defer func() { _ = reader.Close() }()

	typeIdx := fieldIndex(reader, "TYPE")
	yearIdx := fieldIndex(reader, "YEAR")
	monthIdx := fieldIndex(reader, "MONTH")
	dayIdx := fieldIndex(reader, "DAY")
	if typeIdx < 0 || yearIdx < 0 || monthIdx < 0 || dayIdx < 0 {
		return nil, 0, fmt.Errorf("%w: TYPE, YEAR, MONTH and DAY are required", ErrMissingField)
	}
	hourIdx := fieldIndex(reader, "HOUR")
	minuteIdx := fieldIndex(reader, "MINUTE")
	blockIdx := fieldIndex(reader, "HUNDRED_BLOCK")
	hoodIdx := fieldIndex(reader, "NEIGHBOURHOOD")

	attr := func(idx int) string {
		if idx < 0 {
			return ""
		}
		// Some writers pad with NUL instead of spaces.
		return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
	}

	for reader.Next() {
		_, shape := reader.Shape()
		point, ok := shape.(*shp.Point)
		if !ok || point == nil {
			skipped++
			continue
		}

		rows = append(rows, RawRow{
			Type:          attr(typeIdx),
			Year:          attr(yearIdx),
			Month:         attr(monthIdx),
			Day:           attr(dayIdx),
			Hour:          attr(hourIdx),
			Minute:        attr(minuteIdx),
			HundredBlock:  attr(blockIdx),
			Neighbourhood: attr(hoodIdx),
			X:             strconv.FormatFloat(point.X, 'f', -1, 64),
			Y:             strconv.FormatFloat(point.Y, 'f', -1, 64),
		})
	}
	if err := reader.Err(); err != nil {
		return nil, skipped, fmt.Errorf("read shapefile: %w", err)
	}

	return rows, skipped, nil
}

// LoadShapefile reads and parses a crime shapefile.
func LoadShapefile(path string, parser *Parser) (ParseResult, error) {
	rows, skipped, err := ReadShapefile(path)
	if err != nil {
		return ParseResult{}, err
	}

	result := parser.Parse(rows)
	if skipped > 0 {
		result.Dropped += skipped
		result.DropReasons["non_point_shape"] += skipped
	}
	return result, nil
}

// fieldIndex returns the index of a named field, matching the DBF-truncated
// form as well. Returns -1 if not found.
func fieldIndex(reader *shp.Reader, name string) int {
	truncated := name
	if len(truncated) > dbfNameLimit {
		truncated = truncated[:dbfNameLimit]
	}
	for i, f := range reader.Fields() {
		field := strings.TrimRight(f.String(), "\x00")
		if strings.EqualFold(field, name) || strings.EqualFold(field, truncated) {
			return i
		}
	}
	return -1
}
