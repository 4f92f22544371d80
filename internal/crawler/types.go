package crawler

import (
	"net/http"
	"time"

	"github.com/JakeFAU/ratings-crawler/internal/dataset"
)

// Response is the outcome of one HTTP attempt, including non-2xx statuses.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// PageKind tags the outcome of scraping one page.
type PageKind int

// Page outcomes. Transport failures are never a PageKind; they surface as
// errors from the Fetcher.
const (
	PageRecords PageKind = iota + 1
	PageEndOfData
)

func (k PageKind) String() string {
	switch k {
	case PageRecords:
		return "records"
	case PageEndOfData:
		return "end_of_data"
	default:
		return "unknown"
	}
}

// PageResult is either a non-empty list of records or an explicit end marker.
type PageResult struct {
	Kind    PageKind
	Records []dataset.RawRecord
}

// Records wraps a page's records. An empty slice yields EndOfData.
func Records(records []dataset.RawRecord) PageResult {
	if len(records) == 0 {
		return EndOfData()
	}
	return PageResult{Kind: PageRecords, Records: records}
}

// EndOfData marks a page that held no matching entries.
func EndOfData() PageResult {
	return PageResult{Kind: PageEndOfData}
}

// Empty reports whether the page carried no records.
func (r PageResult) Empty() bool {
	return r.Kind != PageRecords || len(r.Records) == 0
}
