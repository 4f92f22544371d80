package store

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// Object paths relative to the gateway prefix.
const (
	RawRatingsPath        = "training/latest_raw_user_ratings.csv"
	TranslatedRatingsPath = "training/latest_translated_user_ratings.csv"
	UserMappingsPath      = "mappings/latest_user_mappings.csv"
	FilmMappingsPath      = "mappings/latest_film_mappings.csv"
	UserUpdatesPath       = "mappings/latest_user_updates.csv"

	snapshotLayout = "20060102-150405"
)

// Column headers.
var (
	rawRatingsHeader        = []string{"user_id", "film_id", "rating"}
	translatedRatingsHeader = []string{"username", "film_title", "rating"}
	userMappingsHeader      = []string{"username", "numeric_user_id"}
	filmMappingsHeader      = []string{"film_id", "film_title"}
	userUpdatesHeader       = []string{"username", "last_updated"}
)

// SnapshotPath names the versioned ratings copy written at t.
func SnapshotPath(t time.Time, compressed bool) string {
	name := fmt.Sprintf("training/raw_ratings_%s.csv", t.UTC().Format(snapshotLayout))
	if compressed {
		name += ".zst"
	}
	return name
}

// UserExportPaths returns the raw and translated per-user file paths.
func UserExportPaths(username string) (raw, translated string) {
	return fmt.Sprintf("users/user_%s_raw.csv", username),
		fmt.Sprintf("users/user_%s_translated.csv", username)
}

func joinPrefix(prefix, rel string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return rel
	}
	return path.Join(prefix, rel)
}
