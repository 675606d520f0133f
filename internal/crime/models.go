// Package crime provides crime incident records, their severity classification and
// the readers that turn raw police open-data rows into geographic records.
package crime

import (
	"errors"
	"strings"
	"time"
)

// Sentinel errors for crime record operations.
var (
	// ErrMissingType indicates a row has no crime type.
	ErrMissingType = errors.New("missing crime type")
	// ErrInvalidCoordinates indicates projected coordinates could not be parsed.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrInvalidDate indicates year, month or day are missing or out of range.
	ErrInvalidDate = errors.New("invalid date")
	// ErrProjection indicates the coordinate transform failed.
	ErrProjection = errors.New("coordinate projection failed")
)

// Severity is the coarse harm level of a crime type.
type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

// Weight returns the exposure weight for the severity level.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityHigh:
		return 3.0
	case SeverityMedium:
		return 2.0
	default:
		return 1.0
	}
}

// severityByType maps Vancouver Police Department crime types to severity.
// Keys are lower-cased.
var severityByType = map[string]Severity{
	"homicide":                 SeverityHigh,
	"offence against a person": SeverityHigh,
	"assault":                  SeverityHigh,
	"robbery":                  SeverityHigh,
	"vehicle collision or pedestrian struck (with fatality)": SeverityHigh,

	"break and enter commercial":        SeverityMedium,
	"break and enter residential/other": SeverityMedium,
	"theft of vehicle":                  SeverityMedium,
	"theft from vehicle":                SeverityMedium,
	"mischief":                          SeverityMedium,
	"vehicle collision or pedestrian struck (with injury)": SeverityMedium,

	"theft of bicycle": SeverityLow,
	"other theft":      SeverityLow,
}

// Classify returns the severity for a crime type. Unknown types are LOW.
func Classify(crimeType string) Severity {
	if s, ok := severityByType[strings.ToLower(strings.TrimSpace(crimeType))]; ok {
		return s
	}
	return SeverityLow
}

// Record is a single geolocated crime incident. Records are never mutated after parsing.
type Record struct {
	CrimeType      string
	Severity       Severity
	SeverityWeight float64
	OccurredAt     time.Time
	Latitude       float64
	Longitude      float64
	BlockAddress   string
	Neighborhood   string
}

// NewRecord builds a record with severity derived from the crime type.
func NewRecord(crimeType string, occurredAt time.Time, lat, lon float64, block, neighborhood string) Record {
	sev := Classify(crimeType)
	return Record{
		CrimeType:      crimeType,
		Severity:       sev,
		SeverityWeight: sev.Weight(),
		OccurredAt:     occurredAt,
		Latitude:       lat,
		Longitude:      lon,
		BlockAddress:   block,
		Neighborhood:   neighborhood,
	}
}

// SeverityCounts tallies records by severity level.
type SeverityCounts struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// Add increments the counter for s.
func (c *SeverityCounts) Add(s Severity) {
	switch s {
	case SeverityHigh:
		c.High++
	case SeverityMedium:
		c.Medium++
	default:
		c.Low++
	}
}

// Merge adds other into c.
func (c *SeverityCounts) Merge(other SeverityCounts) {
	c.High += other.High
	c.Medium += other.Medium
	c.Low += other.Low
}

// Total returns the number of counted records.
func (c SeverityCounts) Total() int {
	return c.High + c.Medium + c.Low
}
