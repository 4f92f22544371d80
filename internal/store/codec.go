package store

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/JakeFAU/ratings-crawler/internal/dataset"
)

// table is a parsed CSV file with its header resolved to column positions.
type table struct {
	name    string
	columns map[string]int
	rows    [][]string
}

func parseTable(name string, data []byte, required []string) (table, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return table{}, fmt.Errorf("%w: %s: %v", ErrSchema, name, err)
	}
	t := table{name: name, columns: make(map[string]int)}
	if len(records) == 0 {
		return t, nil
	}
	for i, col := range records[0] {
		t.columns[strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))] = i
	}
	var missing []string
	for _, col := range required {
		if _, ok := t.columns[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return table{}, fmt.Errorf("%w: %s: missing columns %v", ErrSchema, name, missing)
	}
	t.rows = records[1:]
	return t, nil
}

// field returns the trimmed cell for col, or "" when the row is short.
func (t table) field(row []string, col string) string {
	i := t.columns[col]
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// line reports the 1-based file line of row i, counting the header.
func line(i int) int {
	return i + 2
}

func parseID(t table, row []string, col string, i int) (int64, error) {
	raw := t.field(row, col)
	// Tables written by dataframe tools may carry integral floats.
	if f, err := strconv.ParseFloat(raw, 64); err == nil && f == math.Trunc(f) && !strings.ContainsAny(raw, "eE") {
		raw = strconv.FormatInt(int64(f), 10)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s line %d: %s %q is not a positive integer", ErrSchema, t.name, line(i), col, raw)
	}
	return id, nil
}

func parseScoreCell(t table, row []string, i int) (float64, error) {
	raw := t.field(row, "rating")
	score, err := strconv.ParseFloat(raw, 64)
	if err != nil || score < 0 || score > dataset.MaxScore || math.Mod(score*2, 1) != 0 {
		return 0, fmt.Errorf("%w: %s line %d: rating %q out of domain", ErrSchema, t.name, line(i), raw)
	}
	return score, nil
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', 1, 64)
}

func writeCSV(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("write rows: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeRatings renders rows as the raw ratings CSV table. Gateways hash this
// encoding so digests agree across backends.
func EncodeRatings(rows []dataset.Rating) ([]byte, error) {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{
			strconv.FormatInt(r.UserID, 10),
			strconv.FormatInt(r.ItemID, 10),
			formatScore(r.Score),
		})
	}
	return writeCSV(rawRatingsHeader, out)
}

func encodeTranslated(rows []dataset.TranslatedRating) ([]byte, error) {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{r.Username, r.ItemLabel, formatScore(r.Score)})
	}
	return writeCSV(translatedRatingsHeader, out)
}

func encodeUsers(users dataset.UserTable) ([]byte, error) {
	entries := users.Sorted()
	out := make([][]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, []string{e.Username, strconv.FormatInt(e.ID, 10)})
	}
	return writeCSV(userMappingsHeader, out)
}

func encodeItems(items dataset.ItemTable) ([]byte, error) {
	entries := items.Sorted()
	out := make([][]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, []string{strconv.FormatInt(e.ID, 10), e.Label})
	}
	return writeCSV(filmMappingsHeader, out)
}

func encodeUpdateLog(log dataset.UpdateLog) ([]byte, error) {
	names := log.Usernames()
	out := make([][]string, 0, len(names))
	for _, name := range names {
		out = append(out, []string{name, log[name].Format(dataset.DateLayout)})
	}
	return writeCSV(userUpdatesHeader, out)
}
