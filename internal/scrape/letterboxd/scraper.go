// Package letterboxd parses Letterboxd listing pages and builds their URLs.
package letterboxd

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/ratings-crawler/internal/crawler"
	"github.com/JakeFAU/ratings-crawler/internal/dataset"
)

// ErrUnexpectedLayout means the members table was not where it is expected.
var ErrUnexpectedLayout = errors.New("unexpected page layout")

const (
	posterSelector  = "li.poster-container"
	filmSelector    = "div.film-poster"
	ratingSelector  = "p.poster-viewingdata"
	membersSection  = "section.col-main"
	membersRows     = "table.person-table tbody tr"
	memberLinkQuery = "h3.title-3 a[href]"
)

// FilmGridScraper extracts (slug, film id, glyphs) triples from a user's
// films-by-date page.
type FilmGridScraper struct{}

// NewFilmGridScraper returns a FilmGridScraper.
func NewFilmGridScraper() *FilmGridScraper {
	return &FilmGridScraper{}
}

// ScrapePage returns the poster entries on the page, or EndOfData when the
// page has none. Entries without a poster or a numeric film id are skipped.
// Unrated entries are kept with empty glyphs; scoring happens downstream.
func (s *FilmGridScraper) ScrapePage(body []byte) (crawler.PageResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return crawler.PageResult{}, fmt.Errorf("parse film grid: %w", err)
	}
	var records []dataset.RawRecord
	doc.Find(posterSelector).Each(func(_ int, item *goquery.Selection) {
		poster := item.Find(filmSelector).First()
		if poster.Length() == 0 {
			return
		}
		rawID, _ := poster.Attr("data-film-id")
		id, err := strconv.ParseInt(strings.TrimSpace(rawID), 10, 64)
		if err != nil || id <= 0 {
			return
		}
		slug, _ := poster.Attr("data-film-slug")
		records = append(records, dataset.RawRecord{
			ItemSlug: strings.TrimSpace(slug),
			ItemID:   id,
			Glyphs:   strings.TrimSpace(item.Find(ratingSelector).First().Text()),
		})
	})
	return crawler.Records(records), nil
}

// MembersScraper extracts usernames from a popular-members page.
type MembersScraper struct{}

// NewMembersScraper returns a MembersScraper.
func NewMembersScraper() *MembersScraper {
	return &MembersScraper{}
}

// ScrapeMembers returns usernames in page order. A page without the members
// table yields ErrUnexpectedLayout.
func (s *MembersScraper) ScrapeMembers(body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse members page: %w", err)
	}
	section := doc.Find(membersSection).First()
	if section.Length() == 0 || section.Find("table.person-table tbody").Length() == 0 {
		return nil, ErrUnexpectedLayout
	}
	var names []string
	section.Find(membersRows).Each(func(_ int, row *goquery.Selection) {
		href, ok := row.Find(memberLinkQuery).First().Attr("href")
		if !ok {
			return
		}
		if name := usernameFromHref(href); name != "" {
			names = append(names, name)
		}
	})
	return names, nil
}

// usernameFromHref maps "/alice/" to "alice".
func usernameFromHref(href string) string {
	trimmed := strings.Trim(strings.TrimSpace(href), "/")
	if trimmed == "" {
		return ""
	}
	return strings.SplitN(trimmed, "/", 2)[0]
}
