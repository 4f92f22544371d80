package letterboxd

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/JakeFAU/ratings-crawler/internal/crawler"
)

// DefaultBaseURL is the public site root.
const DefaultBaseURL = "https://letterboxd.com"

// RatingsURLs builds {base}/{user}/films/by/date/page/{n}/.
func RatingsURLs(baseURL string) crawler.URLBuilder {
	base := strings.TrimRight(baseURL, "/")
	return func(user string, page int) string {
		return fmt.Sprintf("%s/%s/films/by/date/page/%d/", base, url.PathEscape(user), page)
	}
}

// MembersURL builds the popular-members listing URL. Page 1 has no page suffix.
func MembersURL(baseURL string, page int) string {
	base := strings.TrimRight(baseURL, "/") + "/members/popular/"
	if page <= 1 {
		return base
	}
	return fmt.Sprintf("%spage/%d/", base, page)
}
