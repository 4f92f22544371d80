package store

import (
	"context"
	"errors"

	"github.com/JakeFAU/ratings-crawler/internal/dataset"
)

// ErrSchema marks a persisted table that cannot be trusted: missing columns,
// unparseable IDs or duplicate keys.
var ErrSchema = errors.New("persisted table schema violation")

// Snapshot is the cumulative dataset handed to Save.
type Snapshot struct {
	Users   dataset.UserTable
	Items   dataset.ItemTable
	Ratings *dataset.RatingSet
}

// SaveReport describes what a Save wrote.
type SaveReport struct {
	// URIs lists every object or table written, in write order.
	URIs []string
	// SnapshotURI is empty unless a versioned copy was written.
	SnapshotURI string
	Users       int
	Items       int
	Ratings     int
	// Digest is the hex SHA-256 of the raw ratings table as written.
	Digest string
}

// Gateway loads and saves the dataset tables.
type Gateway interface {
	LoadUsers(ctx context.Context) (dataset.UserTable, error)
	LoadItems(ctx context.Context) (dataset.ItemTable, error)
	LoadRatings(ctx context.Context) (*dataset.RatingSet, error)
	LoadUpdateLog(ctx context.Context) (dataset.UpdateLog, error)
	// Save overwrites the latest tables. When versioned is true the ratings
	// table is additionally written to an immutable timestamped snapshot.
	Save(ctx context.Context, snap Snapshot, versioned bool) (SaveReport, error)
	SaveUpdateLog(ctx context.Context, log dataset.UpdateLog) error
}

// UserExporter writes one user's ratings outside the cumulative tables.
type UserExporter interface {
	ExportUser(
		ctx context.Context,
		username string,
		ratings []dataset.Rating,
		translated []dataset.TranslatedRating,
	) ([]string, error)
}
