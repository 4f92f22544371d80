package postgres

import (
	"time"

	"github.com/JakeFAU/ratings-crawler/internal/dataset"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS user_mappings (
	username        TEXT PRIMARY KEY,
	numeric_user_id BIGINT NOT NULL UNIQUE CHECK (numeric_user_id > 0)
)`,
	`CREATE TABLE IF NOT EXISTS film_mappings (
	film_id    BIGINT PRIMARY KEY,
	film_title TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS ratings (
	position BIGINT NOT NULL,
	user_id  BIGINT NOT NULL,
	film_id  BIGINT NOT NULL,
	rating   DOUBLE PRECISION NOT NULL CHECK (rating >= 0 AND rating <= 5),
	PRIMARY KEY (user_id, film_id)
)`,
	`CREATE TABLE IF NOT EXISTS user_updates (
	username     TEXT PRIMARY KEY,
	last_updated DATE NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS ratings_snapshots (
	taken_at TIMESTAMPTZ NOT NULL,
	digest   TEXT NOT NULL,
	position BIGINT NOT NULL,
	user_id  BIGINT NOT NULL,
	film_id  BIGINT NOT NULL,
	rating   DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (taken_at, user_id, film_id)
)`,
	`CREATE OR REPLACE VIEW translated_ratings AS
SELECT u.username, f.film_title, r.rating
FROM ratings r
JOIN user_mappings u ON u.numeric_user_id = r.user_id
JOIN film_mappings f ON f.film_id = r.film_id
ORDER BY r.position`,
}

const (
	selectUsers   = `SELECT username, numeric_user_id FROM user_mappings ORDER BY numeric_user_id`
	selectItems   = `SELECT film_id, film_title FROM film_mappings ORDER BY film_id`
	selectRatings = `SELECT user_id, film_id, rating FROM ratings ORDER BY position`
	selectUpdates = `SELECT username, last_updated FROM user_updates ORDER BY username`
)

var (
	userColumns     = []string{"username", "numeric_user_id"}
	itemColumns     = []string{"film_id", "film_title"}
	ratingColumns   = []string{"position", "user_id", "film_id", "rating"}
	updateColumns   = []string{"username", "last_updated"}
	snapshotColumns = []string{"taken_at", "digest", "position", "user_id", "film_id", "rating"}
)

func userRows(users dataset.UserTable) [][]any {
	entries := users.Sorted()
	out := make([][]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, []any{e.Username, e.ID})
	}
	return out
}

func itemRows(items dataset.ItemTable) [][]any {
	entries := items.Sorted()
	out := make([][]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, []any{e.ID, e.Label})
	}
	return out
}

func ratingRows(rows []dataset.Rating) [][]any {
	out := make([][]any, 0, len(rows))
	for i, r := range rows {
		out = append(out, []any{int64(i), r.UserID, r.ItemID, r.Score})
	}
	return out
}

func snapshotRows(takenAt time.Time, digest string, rows []dataset.Rating) [][]any {
	out := make([][]any, 0, len(rows))
	for i, r := range rows {
		out = append(out, []any{takenAt, digest, int64(i), r.UserID, r.ItemID, r.Score})
	}
	return out
}

func updateRows(log dataset.UpdateLog) [][]any {
	names := log.Usernames()
	out := make([][]any, 0, len(names))
	for _, name := range names {
		out = append(out, []any{name, log[name]})
	}
	return out
}
