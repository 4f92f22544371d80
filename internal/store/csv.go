package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/JakeFAU/ratings-crawler/internal/crawler"
	"github.com/JakeFAU/ratings-crawler/internal/dataset"
)

const csvContentType = "text/csv; charset=utf-8"

// CSVConfig controls the CSV gateway.
type CSVConfig struct {
	// Prefix is prepended to every object path.
	Prefix string
	// CompressSnapshots writes versioned snapshots as zstd.
	CompressSnapshots bool
}

// CSVGateway persists the dataset as CSV tables in a blob store.
type CSVGateway struct {
	blobs  crawler.BlobStore
	clock  crawler.Clock
	hasher crawler.Hasher
	cfg    CSVConfig
	logger *zap.Logger
}

var (
	_ Gateway      = (*CSVGateway)(nil)
	_ UserExporter = (*CSVGateway)(nil)
)

// NewCSVGateway builds a CSVGateway.
func NewCSVGateway(
	blobs crawler.BlobStore,
	clock crawler.Clock,
	hasher crawler.Hasher,
	cfg CSVConfig,
	logger *zap.Logger,
) *CSVGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVGateway{
		blobs:  blobs,
		clock:  clock,
		hasher: hasher,
		cfg:    cfg,
		logger: logger,
	}
}

// LoadUsers reads the identity table. Duplicate usernames or IDs fail the
// load.
func (g *CSVGateway) LoadUsers(ctx context.Context) (dataset.UserTable, error) {
	t, found, err := g.loadTable(ctx, UserMappingsPath, userMappingsHeader)
	if err != nil || !found {
		return dataset.UserTable{}, err
	}
	users := make(dataset.UserTable, len(t.rows))
	owners := make(map[int64]string, len(t.rows))
	dropped := 0
	for i, row := range t.rows {
		name := t.field(row, "username")
		if name == "" || t.field(row, "numeric_user_id") == "" {
			dropped++
			continue
		}
		id, err := parseID(t, row, "numeric_user_id", i)
		if err != nil {
			return nil, err
		}
		if _, dup := users[name]; dup {
			return nil, fmt.Errorf("%w: %s line %d: duplicate username %q", ErrSchema, t.name, line(i), name)
		}
		if other, dup := owners[id]; dup {
			return nil, fmt.Errorf("%w: %s line %d: id %d shared by %q and %q", ErrSchema, t.name, line(i), id, other, name)
		}
		users[name] = id
		owners[id] = name
	}
	g.warnDropped(t.name, dropped)
	return users, nil
}

// LoadItems reads the item table.
func (g *CSVGateway) LoadItems(ctx context.Context) (dataset.ItemTable, error) {
	t, found, err := g.loadTable(ctx, FilmMappingsPath, filmMappingsHeader)
	if err != nil || !found {
		return dataset.ItemTable{}, err
	}
	items := make(dataset.ItemTable, len(t.rows))
	dropped := 0
	for i, row := range t.rows {
		label := t.field(row, "film_title")
		if label == "" || t.field(row, "film_id") == "" {
			dropped++
			continue
		}
		id, err := parseID(t, row, "film_id", i)
		if err != nil {
			return nil, err
		}
		if known, dup := items[id]; dup {
			if known != label {
				return nil, fmt.Errorf("%w: %s line %d: film %d labelled %q and %q", ErrSchema, t.name, line(i), id, known, label)
			}
			continue
		}
		items[id] = label
	}
	g.warnDropped(t.name, dropped)
	return items, nil
}

// LoadRatings reads the latest raw ratings table.
func (g *CSVGateway) LoadRatings(ctx context.Context) (*dataset.RatingSet, error) {
	t, found, err := g.loadTable(ctx, RawRatingsPath, rawRatingsHeader)
	if err != nil || !found {
		return dataset.NewRatingSet(), err
	}
	set := dataset.NewRatingSet()
	dropped := 0
	for i, row := range t.rows {
		if t.field(row, "user_id") == "" || t.field(row, "film_id") == "" || t.field(row, "rating") == "" {
			dropped++
			continue
		}
		userID, err := parseID(t, row, "user_id", i)
		if err != nil {
			return nil, err
		}
		itemID, err := parseID(t, row, "film_id", i)
		if err != nil {
			return nil, err
		}
		score, err := parseScoreCell(t, row, i)
		if err != nil {
			return nil, err
		}
		if !set.Add(dataset.Rating{UserID: userID, ItemID: itemID, Score: score}) {
			return nil, fmt.Errorf("%w: %s line %d: duplicate rating (%d, %d)", ErrSchema, t.name, line(i), userID, itemID)
		}
	}
	g.warnDropped(t.name, dropped)
	return set, nil
}

// LoadUpdateLog reads the update log. The log only drives freshness, so a
// malformed file is logged and treated as empty.
func (g *CSVGateway) LoadUpdateLog(ctx context.Context) (dataset.UpdateLog, error) {
	t, found, err := g.loadTable(ctx, UserUpdatesPath, userUpdatesHeader)
	if errors.Is(err, ErrSchema) {
		g.logger.Warn("update log unreadable, starting empty", zap.Error(err))
		return dataset.UpdateLog{}, nil
	}
	if err != nil || !found {
		return dataset.UpdateLog{}, err
	}
	log := make(dataset.UpdateLog, len(t.rows))
	skipped := 0
	for _, row := range t.rows {
		name := t.field(row, "username")
		day, perr := time.Parse(dataset.DateLayout, t.field(row, "last_updated"))
		if name == "" || perr != nil {
			skipped++
			continue
		}
		log[name] = day
	}
	g.warnDropped(t.name, skipped)
	return log, nil
}

// Save writes the identity, item, raw and translated tables, plus a
// timestamped ratings snapshot when versioned. Translation runs before any
// write, so an unmapped ID leaves the stored tables untouched.
func (g *CSVGateway) Save(ctx context.Context, snap Snapshot, versioned bool) (SaveReport, error) {
	rows := snap.Ratings.Rows()
	translated, err := dataset.Translate(rows, snap.Users, snap.Items)
	if err != nil {
		return SaveReport{}, fmt.Errorf("translate ratings: %w", err)
	}
	raw, err := EncodeRatings(rows)
	if err != nil {
		return SaveReport{}, err
	}
	human, err := encodeTranslated(translated)
	if err != nil {
		return SaveReport{}, err
	}
	users, err := encodeUsers(snap.Users)
	if err != nil {
		return SaveReport{}, err
	}
	items, err := encodeItems(snap.Items)
	if err != nil {
		return SaveReport{}, err
	}
	digest, err := g.hasher.Hash(raw)
	if err != nil {
		return SaveReport{}, fmt.Errorf("hash ratings: %w", err)
	}

	report := SaveReport{
		Users:   len(snap.Users),
		Items:   len(snap.Items),
		Ratings: len(rows),
		Digest:  digest,
	}
	writes := []struct {
		path string
		data []byte
	}{
		{UserMappingsPath, users},
		{FilmMappingsPath, items},
		{RawRatingsPath, raw},
		{TranslatedRatingsPath, human},
	}
	for _, w := range writes {
		uri, err := g.put(ctx, w.path, csvContentType, w.data)
		if err != nil {
			return report, err
		}
		report.URIs = append(report.URIs, uri)
	}

	if versioned {
		uri, err := g.putSnapshot(ctx, raw)
		if err != nil {
			return report, err
		}
		report.SnapshotURI = uri
		report.URIs = append(report.URIs, uri)
	}

	g.logger.Info("dataset saved",
		zap.Int("users", report.Users),
		zap.Int("items", report.Items),
		zap.Int("ratings", report.Ratings),
		zap.String("digest", report.Digest),
		zap.String("snapshot", report.SnapshotURI),
	)
	return report, nil
}

// SaveUpdateLog overwrites the update log.
func (g *CSVGateway) SaveUpdateLog(ctx context.Context, log dataset.UpdateLog) error {
	data, err := encodeUpdateLog(log)
	if err != nil {
		return err
	}
	_, err = g.put(ctx, UserUpdatesPath, csvContentType, data)
	return err
}

// ExportUser writes one user's raw and translated ratings to their own files.
func (g *CSVGateway) ExportUser(
	ctx context.Context,
	username string,
	ratings []dataset.Rating,
	translated []dataset.TranslatedRating,
) ([]string, error) {
	if username == "" || strings.ContainsAny(username, `/\`) {
		return nil, fmt.Errorf("invalid username %q", username)
	}
	rawPath, translatedPath := UserExportPaths(username)
	raw, err := EncodeRatings(ratings)
	if err != nil {
		return nil, err
	}
	human, err := encodeTranslated(translated)
	if err != nil {
		return nil, err
	}
	rawURI, err := g.put(ctx, rawPath, csvContentType, raw)
	if err != nil {
		return nil, err
	}
	humanURI, err := g.put(ctx, translatedPath, csvContentType, human)
	if err != nil {
		return []string{rawURI}, err
	}
	return []string{rawURI, humanURI}, nil
}

func (g *CSVGateway) putSnapshot(ctx context.Context, raw []byte) (string, error) {
	path := SnapshotPath(g.clock.Now(), g.cfg.CompressSnapshots)
	if !g.cfg.CompressSnapshots {
		return g.put(ctx, path, csvContentType, raw)
	}
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return "", fmt.Errorf("zstd writer: %w", err)
	}
	if _, err := enc.Write(raw); err != nil {
		_ = enc.Close()
		return "", fmt.Errorf("compress snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("compress snapshot: %w", err)
	}
	return g.put(ctx, path, "application/zstd", buf.Bytes())
}

func (g *CSVGateway) put(ctx context.Context, rel, contentType string, data []byte) (string, error) {
	path := joinPrefix(g.cfg.Prefix, rel)
	uri, err := g.blobs.PutObject(ctx, path, contentType, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return uri, nil
}

// loadTable reads and parses rel. A missing object is reported as not found
// without error.
func (g *CSVGateway) loadTable(ctx context.Context, rel string, required []string) (table, bool, error) {
	path := joinPrefix(g.cfg.Prefix, rel)
	rc, err := g.blobs.GetObject(ctx, path)
	if errors.Is(err, crawler.ErrObjectNotFound) {
		g.logger.Info("table not found, starting empty", zap.String("path", path))
		return table{}, false, nil
	}
	if err != nil {
		return table{}, false, fmt.Errorf("read %s: %w", path, err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return table{}, false, fmt.Errorf("read %s: %w", path, err)
	}
	t, err := parseTable(path, data, required)
	if err != nil {
		return table{}, false, err
	}
	return t, true, nil
}

func (g *CSVGateway) warnDropped(name string, n int) {
	if n > 0 {
		g.logger.Warn("dropped rows with blank required fields", zap.String("table", name), zap.Int("rows", n))
	}
}
