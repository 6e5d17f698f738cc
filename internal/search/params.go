// Package search turns filter form input and URL query strings into a
// canonical search parameter set and back.
//
// Nothing here returns an error: malformed input drops the offending field so
// a hand-edited or stale URL still yields a usable search.
package search

import (
	"strings"
)

// Query string keys of the dashboard URL.
const (
	KeyKeyword   = "keyword"
	KeySubreddit = "subreddit"
	KeyDomain    = "domain"
	KeyAuthor    = "author"
	KeyStartDate = "startDate"
	KeyEndDate   = "endDate"
	KeyOffset    = "offset"
	KeyLimit     = "limit"
	KeySort      = "sort"
)

// Sort selects the client-side ordering of search results.
type Sort string

const (
	SortRelevance Sort = "relevance"
	SortRecent    Sort = "recent"
	SortComments  Sort = "comments"
	SortScore     Sort = "score"
	SortSentiment Sort = "sentiment"
)

// ParseSort maps raw to a known Sort, or "" when unrecognized.
func ParseSort(raw string) Sort {
	switch Sort(strings.ToLower(strings.TrimSpace(raw))) {
	case SortRelevance:
		return SortRelevance
	case SortRecent:
		return SortRecent
	case SortComments:
		return SortComments
	case SortScore:
		return SortScore
	case SortSentiment:
		return SortSentiment
	default:
		return ""
	}
}

// Params is the canonical search request. Empty strings, zero Dates and nil
// Offset/Limit are absent.
type Params struct {
	Keyword   string
	Subreddit string
	Domain    string
	Author    string
	StartDate Date
	EndDate   Date
	Offset    *int
	Limit     *int
	Sort      Sort
}

// Form is the raw state of the filter form. Dates may be YYYY-MM-DD or
// RFC 3339 timestamps, as emitted by date pickers.
type Form struct {
	Keyword   string
	Subreddit string
	Domain    string
	Author    string
	StartDate string
	EndDate   string
	Sort      string
}

// FromForm builds canonical Params from form state, dropping blank fields.
func FromForm(f Form) Params {
	p := Params{
		Keyword:   strings.TrimSpace(f.Keyword),
		Subreddit: strings.TrimSpace(f.Subreddit),
		Domain:    strings.TrimSpace(f.Domain),
		Author:    strings.TrimSpace(f.Author),
		Sort:      ParseSort(f.Sort),
	}
	p.StartDate, _ = ParseDate(f.StartDate)
	p.EndDate, _ = ParseDate(f.EndDate)
	return p
}

// Form returns p as form state, for repopulating the filter form.
func (p Params) Form() Form {
	return Form{
		Keyword:   p.Keyword,
		Subreddit: p.Subreddit,
		Domain:    p.Domain,
		Author:    p.Author,
		StartDate: p.StartDate.String(),
		EndDate:   p.EndDate.String(),
		Sort:      string(p.Sort),
	}
}

// Normalize trims text fields and drops out-of-range paging values.
func (p Params) Normalize() Params {
	p.Keyword = strings.TrimSpace(p.Keyword)
	p.Subreddit = strings.TrimSpace(p.Subreddit)
	p.Domain = strings.TrimSpace(p.Domain)
	p.Author = strings.TrimSpace(p.Author)
	p.Sort = ParseSort(string(p.Sort))
	if p.Offset != nil && *p.Offset < 0 {
		p.Offset = nil
	}
	if p.Limit != nil && *p.Limit < 1 {
		p.Limit = nil
	}
	return p
}

// ActiveFilters counts the filter fields that are set. Paging and sort are
// not filters.
func (p Params) ActiveFilters() int {
	n := 0
	for _, s := range []string{p.Keyword, p.Subreddit, p.Domain, p.Author} {
		if s != "" {
			n++
		}
	}
	if !p.StartDate.IsZero() {
		n++
	}
	if !p.EndDate.IsZero() {
		n++
	}
	return n
}

// Filters returns p without paging or sort, the part shared by every
// analysis view.
func (p Params) Filters() Params {
	p.Offset = nil
	p.Limit = nil
	p.Sort = ""
	return p
}

// WithPage sets Offset and Limit for a 1-based page of perPage results.
func (p Params) WithPage(page, perPage int) Params {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 1
	}
	offset := (page - 1) * perPage
	p.Offset = &offset
	p.Limit = &perPage
	return p
}

// Paged fills in absent paging: Limit defaults to perPage and a missing
// Offset selects page. Equal searches then share one cache entry.
func (p Params) Paged(page, perPage int) Params {
	if p.Limit == nil {
		if perPage < 1 {
			perPage = 1
		}
		p.Limit = intPtr(perPage)
	}
	if p.Offset == nil {
		p = p.WithPage(page, *p.Limit)
	}
	return p
}

// Page reports the 1-based page implied by Offset and Limit.
func (p Params) Page() int {
	if p.Offset == nil || p.Limit == nil || *p.Limit < 1 {
		return 1
	}
	return *p.Offset / *p.Limit + 1
}

func intPtr(v int) *int {
	return &v
}
