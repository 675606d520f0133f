package crime

import "context"

// Repository defines the interface for crime record persistence.
type Repository interface {
	// List returns every stored record.
	List(ctx context.Context) ([]Record, error)

	// ReplaceAll atomically replaces the stored dataset with records.
	// Returns the number of rows written.
	ReplaceAll(ctx context.Context, records []Record) (int64, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int64, error)
}
