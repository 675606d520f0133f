package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoute/saferoute/internal/auth"
	"github.com/saferoute/saferoute/internal/crime"
	"github.com/saferoute/saferoute/internal/dataset"
	"github.com/saferoute/saferoute/internal/planner"
	"github.com/saferoute/saferoute/internal/safety"
)

const crimeCSV = `TYPE,YEAR,MONTH,DAY,HOUR,MINUTE,HUNDRED_BLOCK,NEIGHBOURHOOD,X,Y
Offence Against a Person,2024,5,30,22,0,10XX ALBERNI ST,West End,-123.1180,49.2800
Theft from Vehicle,2024,5,28,18,30,10XX ALBERNI ST,West End,-123.1170,49.2801
Mischief,2024,5,20,3,15,2XX E HASTINGS ST,Strathcona,-123.1150,49.2805
,2024,3,1,1,1,1XX MAIN ST,Strathcona,-123.1,49.28
`

const routesGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"id": "through-hotspot", "distanceMeters": 580, "durationSeconds": 420},
      "geometry": {"type": "LineString", "coordinates": [[-123.1220, 49.2800], [-123.1180, 49.2800], [-123.1140, 49.2800]]}
    },
    {
      "type": "Feature",
      "properties": {"distanceMeters": 600, "durationSeconds": 430},
      "geometry": {"type": "LineString", "coordinates": [[-123.1220, 49.2900], [-123.1180, 49.2900], [-123.1140, 49.2900]]}
    }
  ]
}`

// quietConfig keeps config loading independent of the host time zone database.
func quietConfig(t *testing.T) {
	t.Helper()
	t.Setenv("SAFEROUTE_DATASET_TIMEZONE", "UTC")
	t.Setenv("SAFEROUTE_LOG_LEVEL", "error")
}

// withDataset points the configuration at a WGS84 CSV fixture.
func withDataset(t *testing.T) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crimedata.csv")
	require.NoError(t, os.WriteFile(path, []byte(crimeCSV), 0o600))

	t.Setenv("SAFEROUTE_DATASET_SOURCE", "csv")
	t.Setenv("SAFEROUTE_DATASET_PATH", path)
	t.Setenv("SAFEROUTE_DATASET_PROJECTION", "wgs84")
	quietConfig(t)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"import", "index", "rank", "config", "token"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "saferoute", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	require.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
}

func TestCommand_RequiredFlags(t *testing.T) {
	tests := []struct {
		name string
		flag string
	}{
		{name: "import", flag: "file"},
		{name: "rank", flag: "input"},
		{name: "token", flag: "subject"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, _, err := rootCmd.Find([]string{tt.name})
			require.NoError(t, err)
			flag := cmd.Flags().Lookup(tt.flag)
			require.NotNil(t, flag)
			assert.Equal(t, []string{"true"}, flag.Annotations[cobra.BashCompOneRequiredFlag])
		})
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path    string
		format  string
		want    string
		wantErr bool
	}{
		{path: "crimedata.csv", want: dataset.SourceCSV},
		{path: "CRIME.SHP", want: dataset.SourceShapefile},
		{path: "export.txt", format: "csv", want: dataset.SourceCSV},
		{path: "export.txt", wantErr: true},
		{path: "a.csv", format: "parquet", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.path+"/"+tt.format, func(t *testing.T) {
			got, err := detectFormat(tt.path, tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCandidatesFromGeoJSON(t *testing.T) {
	candidates, err := candidatesFromGeoJSON([]byte(routesGeoJSON))
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	assert.Equal(t, "through-hotspot", candidates[0].ID)
	assert.Equal(t, 580.0, candidates[0].DistanceMeters)
	assert.Len(t, candidates[0].Geometry, 3)
	assert.Equal(t, "feature-2", candidates[1].ID)
	assert.Equal(t, 430.0, candidates[1].DurationSeconds)
}

func TestCandidatesFromGeoJSON_Rejects(t *testing.T) {
	tests := map[string]string{
		"not geojson": `{"type":`,
		"empty":       `{"type":"FeatureCollection","features":[]}`,
		"point":       `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[1,2]}}]}`,
	}

	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := candidatesFromGeoJSON([]byte(input))
			assert.Error(t, err)
		})
	}
}

func TestCandidatesFromGeoJSON_MissingDistanceAndDuration(t *testing.T) {
	const input = `{"type":"FeatureCollection","features":[
	  {"type":"Feature","properties":{"id":"bare"},
	   "geometry":{"type":"LineString","coordinates":[[-123.1220,49.2800],[-123.1140,49.2800]]}},
	  {"type":"Feature","properties":{"id":"zeroed","distanceMeters":0,"durationSeconds":0},
	   "geometry":{"type":"LineString","coordinates":[[-123.1220,49.2900],[-123.1140,49.2900]]}}
	]}`

	candidates, err := candidatesFromGeoJSON([]byte(input))
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	for _, c := range candidates {
		assert.InDelta(t, safety.LengthMeters(c.Geometry), c.DistanceMeters, 1e-9, c.ID)
		assert.InDelta(t, 580, c.DistanceMeters, 10, c.ID)
		assert.InDelta(t, c.DistanceMeters/walkingSpeedMps, c.DurationSeconds, 1e-9, c.ID)
	}
}

func TestSummarizeIndex(t *testing.T) {
	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	store := dataset.NewStore(dataset.StoreConfig{})
	snap := store.Replace("test", []crime.Record{
		crime.NewRecord("Robbery", at.Add(-48*time.Hour), 49.28, -123.12, "", ""),
		crime.NewRecord("Mischief", at.Add(-24*time.Hour), 49.28, -123.12, "", ""),
		crime.NewRecord("Other Theft", at, 49.30, -123.10, "", ""),
	})

	s := summarizeIndex(snap)

	assert.Equal(t, 3, s.Records)
	assert.Equal(t, 2, s.Cells)
	assert.InDelta(t, 1.5, s.PerCell, 1e-9)
	assert.Equal(t, 1, s.Severity[crime.SeverityHigh])
	assert.Equal(t, 1, s.Severity[crime.SeverityMedium])
	assert.Equal(t, 1, s.Severity[crime.SeverityLow])
	assert.Equal(t, at.Add(-48*time.Hour), s.Earliest)
	assert.Equal(t, at, s.Latest)

	var out bytes.Buffer
	require.NoError(t, writeIndexStats(&out, s))
	assert.Contains(t, out.String(), "records")
	assert.Contains(t, out.String(), "severity HIGH")
}

func TestConfigShow(t *testing.T) {
	quietConfig(t)
	t.Setenv("SAFEROUTE_AUTH_JWT_SIGNING_KEY", "super-secret")

	out, err := execute(t, "config", "show")
	require.NoError(t, err)

	assert.Contains(t, out, "scoring:")
	assert.Contains(t, out, "half_life_days")
	assert.NotContains(t, out, "super-secret")
}

func TestToken(t *testing.T) {
	quietConfig(t)
	const key = "cli-test-signing-key"
	t.Setenv("SAFEROUTE_AUTH_JWT_SIGNING_KEY", key)
	t.Setenv("SAFEROUTE_AUTH_ISSUER", "saferoute")

	out, err := execute(t, "token", "--subject", "ops@example.com", "--ttl", "10m")
	require.NoError(t, err)

	svc := auth.NewJWTService(auth.JWTConfig{SigningKey: key, Issuer: "saferoute"})
	claims, err := svc.ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", claims.Subject)
	assert.True(t, claims.IsAdmin())
}

func TestToken_NoSigningKey(t *testing.T) {
	quietConfig(t)
	t.Setenv("SAFEROUTE_AUTH_JWT_SIGNING_KEY", "")

	_, err := execute(t, "token", "--subject", "ops@example.com")

	assert.ErrorIs(t, err, auth.ErrMissingSigningKey)
}

func TestIndexStats(t *testing.T) {
	withDataset(t)

	out, err := execute(t, "index", "stats")
	require.NoError(t, err)

	assert.Contains(t, out, "records")
	assert.Contains(t, out, "drop: ")
}

func TestRank(t *testing.T) {
	withDataset(t)
	input := filepath.Join(t.TempDir(), "routes.geojson")
	require.NoError(t, os.WriteFile(input, []byte(routesGeoJSON), 0o600))

	out, err := execute(t, "rank", "--input", input, "--at", "2024-06-01T00:00:00Z", "--json")
	require.NoError(t, err)

	var rows []rankOutput
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "feature-2", rows[0].ID)
	assert.True(t, rows[0].Recommended)
	assert.Equal(t, "through-hotspot", rows[1].ID)
	assert.Greater(t, rows[0].SafetyScore, rows[1].SafetyScore)
	assert.Positive(t, rows[1].TotalCrimes)

	rankJSON = false
	out, err = execute(t, "rank", "--input", input, "--at", "2024-06-01T00:00:00Z")
	require.NoError(t, err)
	assert.Contains(t, out, "RANK")
	assert.Contains(t, out, "1 *")
}

func TestRank_Window(t *testing.T) {
	withDataset(t)
	input := filepath.Join(t.TempDir(), "routes.geojson")
	require.NoError(t, os.WriteFile(input, []byte(routesGeoJSON), 0o600))
	t.Cleanup(func() { rankWindow, rankJSON = "", false })

	// No fixture crime happened between 06:00 and 18:00.
	out, err := execute(t, "rank", "--input", input, "--at", "2024-06-01T00:00:00Z", "--window", "day", "--json")
	require.NoError(t, err)

	var rows []rankOutput
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Zero(t, row.TotalCrimes, row.ID)
		assert.Equal(t, 100, row.SafetyScore, row.ID)
	}

	rankJSON = false
	out, err = execute(t, "rank", "--input", input, "--at", "2024-06-01T00:00:00Z", "--window", "night")
	require.NoError(t, err)
	assert.Contains(t, out, "(night crimes)")

	_, err = execute(t, "rank", "--input", input, "--window", "dawn")
	assert.ErrorIs(t, err, planner.ErrInvalidTimeWindow)
}
