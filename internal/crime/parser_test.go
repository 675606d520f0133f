package crime

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRow() RawRow {
	return RawRow{
		Type:          "Theft from Vehicle",
		Year:          "2023",
		Month:         "3",
		Day:           "14",
		Hour:          "21",
		Minute:        "45",
		HundredBlock:  "10XX GRANVILLE ST",
		Neighbourhood: "Central Business District",
		X:             "-123.1207",
		Y:             "49.2827",
	}
}

func newIdentityParser() *Parser {
	return NewParser(ParserConfig{
		Projector: IdentityProjector{},
		Logger:    zerolog.Nop(),
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		crimeType string
		want      Severity
		weight    float64
	}{
		{"Offence Against a Person", SeverityHigh, 3.0},
		{"  homicide ", SeverityHigh, 3.0},
		{"Break and Enter Residential/Other", SeverityMedium, 2.0},
		{"Theft of Vehicle", SeverityMedium, 2.0},
		{"Theft of Bicycle", SeverityLow, 1.0},
		{"Jaywalking", SeverityLow, 1.0},
		{"", SeverityLow, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.crimeType, func(t *testing.T) {
			got := Classify(tt.crimeType)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.weight, got.Weight())
		})
	}
}

func TestParser_ParseRow_MonthIsOneBased(t *testing.T) {
	rec, err := newIdentityParser().ParseRow(validRow())
	require.NoError(t, err)

	assert.Equal(t, time.Date(2023, time.March, 14, 21, 45, 0, 0, time.UTC), rec.OccurredAt)
	assert.Equal(t, SeverityMedium, rec.Severity)
	assert.Equal(t, 2.0, rec.SeverityWeight)
	assert.InDelta(t, 49.2827, rec.Latitude, 1e-9)
	assert.InDelta(t, -123.1207, rec.Longitude, 1e-9)
	assert.Equal(t, "10XX GRANVILLE ST", rec.BlockAddress)
	assert.Equal(t, "Central Business District", rec.Neighborhood)
}

func TestParser_ParseRow_DefaultsHourAndMinute(t *testing.T) {
	row := validRow()
	row.Hour = ""
	row.Minute = " "
	row.Month = "12"
	row.Day = "31"

	rec, err := newIdentityParser().ParseRow(row)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, time.December, 31, 0, 0, 0, 0, time.UTC), rec.OccurredAt)
}

func TestParser_ParseRow_Location(t *testing.T) {
	loc := time.FixedZone("PST", -8*3600)
	p := NewParser(ParserConfig{Projector: IdentityProjector{}, Location: loc})

	rec, err := p.ParseRow(validRow())
	require.NoError(t, err)
	assert.Equal(t, 21, rec.OccurredAt.Hour())
	assert.Equal(t, loc, rec.OccurredAt.Location())
}

func TestParser_ParseRow_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RawRow)
		want   error
	}{
		{"missing type", func(r *RawRow) { r.Type = "  " }, ErrMissingType},
		{"unparseable X", func(r *RawRow) { r.X = "abc" }, ErrInvalidCoordinates},
		{"empty Y", func(r *RawRow) { r.Y = "" }, ErrInvalidCoordinates},
		{"NaN coordinate", func(r *RawRow) { r.X = "NaN" }, ErrInvalidCoordinates},
		{"redacted location", func(r *RawRow) { r.X, r.Y = "0", "0" }, ErrInvalidCoordinates},
		{"missing year", func(r *RawRow) { r.Year = "" }, ErrInvalidDate},
		{"month zero", func(r *RawRow) { r.Month = "0" }, ErrInvalidDate},
		{"month thirteen", func(r *RawRow) { r.Month = "13" }, ErrInvalidDate},
		{"nonexistent day", func(r *RawRow) { r.Month, r.Day = "4", "31" }, ErrInvalidDate},
		{"garbage hour", func(r *RawRow) { r.Hour = "noon" }, ErrInvalidDate},
		{"hour out of range", func(r *RawRow) { r.Hour = "24" }, ErrInvalidDate},
		{"out of range geographic", func(r *RawRow) { r.Y = "95" }, ErrProjection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := validRow()
			tt.mutate(&row)
			_, err := newIdentityParser().ParseRow(row)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParser_ParseRow_IntegralFloats(t *testing.T) {
	row := validRow()
	row.Year = "2023.0"
	row.Month = "3.0"

	rec, err := newIdentityParser().ParseRow(row)
	require.NoError(t, err)
	assert.Equal(t, time.March, rec.OccurredAt.Month())

	row.Day = "14.5"
	_, err = newIdentityParser().ParseRow(row)
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestParser_Parse_CountsDrops(t *testing.T) {
	good := validRow()
	noType := validRow()
	noType.Type = ""
	badX := validRow()
	badX.X = "n/a"
	unknown := validRow()
	unknown.Type = "Something New"

	result := newIdentityParser().Parse([]RawRow{good, noType, badX, unknown})

	require.Len(t, result.Records, 2)
	assert.Equal(t, 2, result.Dropped)
	assert.Equal(t, 1, result.DropReasons["missing_type"])
	assert.Equal(t, 1, result.DropReasons["invalid_coordinates"])
	assert.Equal(t, SeverityLow, result.Records[1].Severity)
}

func TestUTMProjector_Vancouver(t *testing.T) {
	p := NewParser(ParserConfig{Logger: zerolog.Nop()})

	row := validRow()
	row.X = "491285.0"
	row.Y = "5458662.0"

	rec, err := p.ParseRow(row)
	require.NoError(t, err)
	assert.InDelta(t, 49.28, rec.Latitude, 0.05)
	assert.InDelta(t, -123.12, rec.Longitude, 0.05)
}

func TestUTMProjector_OutOfRange(t *testing.T) {
	_, _, err := DefaultProjector().ToWGS84(5, 5458662)
	assert.ErrorIs(t, err, ErrProjection)
}

func TestSeverityCounts(t *testing.T) {
	var c SeverityCounts
	c.Add(SeverityHigh)
	c.Add(SeverityLow)
	c.Add(SeverityLow)

	other := SeverityCounts{Medium: 2}
	c.Merge(other)

	assert.Equal(t, SeverityCounts{High: 1, Medium: 2, Low: 2}, c)
	assert.Equal(t, 5, c.Total())
}
