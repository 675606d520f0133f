package crime

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// RawRow is one row of the crime export. All fields are kept as text so a
// malformed value drops a single row instead of failing the whole file.
type RawRow struct {
	Type          string `csv:"TYPE"`
	Year          string `csv:"YEAR"`
	Month         string `csv:"MONTH"`
	Day           string `csv:"DAY"`
	Hour          string `csv:"HOUR,omitempty"`
	Minute        string `csv:"MINUTE,omitempty"`
	HundredBlock  string `csv:"HUNDRED_BLOCK,omitempty"`
	Neighbourhood string `csv:"NEIGHBOURHOOD,omitempty"`
	X             string `csv:"X"`
	Y             string `csv:"Y"`
}

// ParseResult holds the records that parsed and the number of dropped rows.
type ParseResult struct {
	Records []Record
	Dropped int
	// DropReasons counts dropped rows by cause.
	DropReasons map[string]int
}

// ParserConfig holds configuration for the row parser.
type ParserConfig struct {
	// Projector converts X/Y to WGS84 (default: UTM zone 10N).
	Projector Projector

	// Location is the time zone the YEAR..MINUTE fields are expressed in (default: UTC).
	Location *time.Location

	// Logger for parse diagnostics.
	Logger zerolog.Logger
}

// Parser turns raw rows into crime records.
type Parser struct {
	projector Projector
	location  *time.Location
	logger    zerolog.Logger
}

// NewParser creates a new parser.
func NewParser(cfg ParserConfig) *Parser {
	projector := cfg.Projector
	if projector == nil {
		projector = DefaultProjector()
	}

	location := cfg.Location
	if location == nil {
		location = time.UTC
	}

	return &Parser{
		projector: projector,
		location:  location,
		logger:    cfg.Logger,
	}
}

// Parse converts rows to records, skipping rows that fail validation.
func (p *Parser) Parse(rows []RawRow) ParseResult {
	result := ParseResult{
		Records:     make([]Record, 0, len(rows)),
		DropReasons: make(map[string]int),
	}

	for i := range rows {
		rec, err := p.ParseRow(rows[i])
		if err != nil {
			result.Dropped++
			result.DropReasons[dropReason(err)]++
			p.logger.Trace().Err(err).Int("row", i).Msg("dropping crime row")
			continue
		}
		result.Records = append(result.Records, rec)
	}

	p.logger.Debug().
		Int("rows", len(rows)).
		Int("records", len(result.Records)).
		Int("dropped", result.Dropped).
		Msg("parsed crime rows")

	return result
}

// ParseRow converts a single row.
func (p *Parser) ParseRow(row RawRow) (Record, error) {
	crimeType := strings.TrimSpace(row.Type)
	if crimeType == "" {
		return Record{}, ErrMissingType
	}

	x, errX := parseCoordinate(row.X)
	y, errY := parseCoordinate(row.Y)
	if errX != nil || errY != nil {
		return Record{}, fmt.Errorf("%w: X=%q Y=%q", ErrInvalidCoordinates, row.X, row.Y)
	}
	// The export zeroes both coordinates for redacted incidents.
	if x == 0 && y == 0 {
		return Record{}, fmt.Errorf("%w: redacted location", ErrInvalidCoordinates)
	}

	occurredAt, err := p.timestamp(row)
	if err != nil {
		return Record{}, err
	}

	lat, lon, err := p.projector.ToWGS84(x, y)
	if err != nil {
		return Record{}, err
	}

	return NewRecord(
		crimeType,
		occurredAt,
		lat, lon,
		strings.TrimSpace(row.HundredBlock),
		strings.TrimSpace(row.Neighbourhood),
	), nil
}

// timestamp builds the occurrence time. MONTH is 1-based, matching time.Month.
func (p *Parser) timestamp(row RawRow) (time.Time, error) {
	year, err := parseRequiredInt(row.Year)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: year %q", ErrInvalidDate, row.Year)
	}
	month, err := parseRequiredInt(row.Month)
	if err != nil || month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("%w: month %q", ErrInvalidDate, row.Month)
	}
	day, err := parseRequiredInt(row.Day)
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("%w: day %q", ErrInvalidDate, row.Day)
	}
	hour, err := parseOptionalInt(row.Hour)
	if err != nil || hour < 0 || hour > 23 {
		return time.Time{}, fmt.Errorf("%w: hour %q", ErrInvalidDate, row.Hour)
	}
	minute, err := parseOptionalInt(row.Minute)
	if err != nil || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("%w: minute %q", ErrInvalidDate, row.Minute)
	}

	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, p.location)
	// time.Date normalizes 31 April into 1 May; reject instead.
	if t.Day() != day {
		return time.Time{}, fmt.Errorf("%w: %04d-%02d-%02d does not exist", ErrInvalidDate, year, month, day)
	}
	return t, nil
}

func parseCoordinate(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}

// parseRequiredInt accepts integers and integral floats ("2019.0"), which
// some DBF exports produce.
func parseRequiredInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty")
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("non-integral value %q", s)
	}
	return int(f), nil
}

func parseOptionalInt(s string) (int, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	return parseRequiredInt(s)
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingType):
		return "missing_type"
	case errors.Is(err, ErrInvalidCoordinates):
		return "invalid_coordinates"
	case errors.Is(err, ErrInvalidDate):
		return "invalid_date"
	case errors.Is(err, ErrProjection):
		return "projection"
	default:
		return "other"
	}
}
