// Package dataset loads crime records and publishes immutable spatial index
// snapshots for concurrent readers.
package dataset

import (
	"context"
	"fmt"

	"github.com/saferoute/saferoute/internal/crime"
)

// Source loads the full crime dataset.
type Source interface {
	// Name identifies the source in logs and status output.
	Name() string

	// Load reads and parses every record.
	Load(ctx context.Context) (crime.ParseResult, error)
}

// CSVSource reads a crime export in CSV form.
type CSVSource struct {
	Path   string
	Parser *crime.Parser
}

// Name returns the source name.
func (s CSVSource) Name() string {
	return "csv:" + s.Path
}

// Load parses the CSV file.
func (s CSVSource) Load(ctx context.Context) (crime.ParseResult, error) {
	if err := ctx.Err(); err != nil {
		return crime.ParseResult{}, err
	}
	return crime.LoadCSVFile(s.Path, s.Parser)
}

// ShapefileSource reads a point shapefile with crime attributes.
type ShapefileSource struct {
	Path   string
	Parser *crime.Parser
}

// Name returns the source name.
func (s ShapefileSource) Name() string {
	return "shapefile:" + s.Path
}

// Load parses the shapefile.
func (s ShapefileSource) Load(ctx context.Context) (crime.ParseResult, error) {
	if err := ctx.Err(); err != nil {
		return crime.ParseResult{}, err
	}
	return crime.LoadShapefile(s.Path, s.Parser)
}

// RepositorySource reads previously imported records from a repository.
type RepositorySource struct {
	Repo crime.Repository
	// Label names the backing store (default: "repository").
	Label string
}

// Name returns the source name.
func (s RepositorySource) Name() string {
	if s.Label != "" {
		return s.Label
	}
	return "repository"
}

// Load lists every stored record.
func (s RepositorySource) Load(ctx context.Context) (crime.ParseResult, error) {
	records, err := s.Repo.List(ctx)
	if err != nil {
		return crime.ParseResult{}, fmt.Errorf("listing crime records: %w", err)
	}
	return crime.ParseResult{Records: records}, nil
}

// Source kinds accepted by NewSource.
const (
	SourceCSV       = "csv"
	SourceShapefile = "shapefile"
	SourcePostgres  = "postgres"
)

// NewSource returns the source for kind. File sources need path and parser;
// the postgres source needs repo.
func NewSource(kind, path string, parser *crime.Parser, repo crime.Repository) (Source, error) {
	switch kind {
	case SourceCSV, "":
		if path == "" {
			return nil, fmt.Errorf("csv source requires a path")
		}
		return CSVSource{Path: path, Parser: parser}, nil
	case SourceShapefile:
		if path == "" {
			return nil, fmt.Errorf("shapefile source requires a path")
		}
		return ShapefileSource{Path: path, Parser: parser}, nil
	case SourcePostgres:
		if repo == nil {
			return nil, fmt.Errorf("postgres source requires a repository")
		}
		return RepositorySource{Repo: repo, Label: "postgres:" + crime.TableName}, nil
	default:
		return nil, fmt.Errorf("unknown dataset source %q", kind)
	}
}
