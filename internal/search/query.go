package search

import (
	"net/url"
	"strconv"
	"strings"
)

// Backend API keys that differ from the URL keys.
const (
	apiKeyStartDate = "start_date"
	apiKeyEndDate   = "end_date"
)

// Values returns the URL form of p. Only present fields are included.
func (p Params) Values() url.Values {
	v := url.Values{}
	setIf(v, KeyKeyword, p.Keyword)
	setIf(v, KeySubreddit, p.Subreddit)
	setIf(v, KeyDomain, p.Domain)
	setIf(v, KeyAuthor, p.Author)
	setIf(v, KeyStartDate, p.StartDate.String())
	setIf(v, KeyEndDate, p.EndDate.String())
	if p.Offset != nil {
		v.Set(KeyOffset, strconv.Itoa(*p.Offset))
	}
	if p.Limit != nil {
		v.Set(KeyLimit, strconv.Itoa(*p.Limit))
	}
	setIf(v, KeySort, string(p.Sort))
	return v
}

// Encode returns the query string for p with keys in sorted order.
func (p Params) Encode() string {
	return p.Values().Encode()
}

// APIValues returns p in the backend's parameter naming. Sort is applied
// locally and never sent.
func (p Params) APIValues() url.Values {
	v := p.Values()
	v.Del(KeySort)
	if d := v.Get(KeyStartDate); d != "" {
		v.Del(KeyStartDate)
		v.Set(apiKeyStartDate, d)
	}
	if d := v.Get(KeyEndDate); d != "" {
		v.Del(KeyEndDate)
		v.Set(apiKeyEndDate, d)
	}
	return v
}

// Parse decodes a URL query string. A leading '?' is allowed, unknown keys
// are ignored and malformed values leave their field absent.
func Parse(raw string) Params {
	raw = strings.TrimPrefix(raw, "?")
	// ParseQuery keeps every pair it could decode even when it reports an error.
	values, _ := url.ParseQuery(raw)
	return FromValues(values)
}

// FromValues decodes already-parsed query values.
func FromValues(v url.Values) Params {
	p := Params{
		Keyword:   strings.TrimSpace(v.Get(KeyKeyword)),
		Subreddit: strings.TrimSpace(v.Get(KeySubreddit)),
		Domain:    strings.TrimSpace(v.Get(KeyDomain)),
		Author:    strings.TrimSpace(v.Get(KeyAuthor)),
		Sort:      ParseSort(v.Get(KeySort)),
	}
	p.StartDate, _ = ParseDate(v.Get(KeyStartDate))
	p.EndDate, _ = ParseDate(v.Get(KeyEndDate))
	if n, ok := parseInt(v.Get(KeyOffset)); ok && n >= 0 {
		p.Offset = intPtr(n)
	}
	if n, ok := parseInt(v.Get(KeyLimit)); ok && n >= 1 {
		p.Limit = intPtr(n)
	}
	return p
}

// Malformed lists the recognized keys in v whose values were discarded.
func Malformed(v url.Values) []string {
	var bad []string
	for _, key := range []string{KeyStartDate, KeyEndDate} {
		if raw := strings.TrimSpace(v.Get(key)); raw != "" {
			if _, ok := ParseDate(raw); !ok {
				bad = append(bad, key)
			}
		}
	}
	if raw := strings.TrimSpace(v.Get(KeyOffset)); raw != "" {
		if n, ok := parseInt(raw); !ok || n < 0 {
			bad = append(bad, KeyOffset)
		}
	}
	if raw := strings.TrimSpace(v.Get(KeyLimit)); raw != "" {
		if n, ok := parseInt(raw); !ok || n < 1 {
			bad = append(bad, KeyLimit)
		}
	}
	if raw := strings.TrimSpace(v.Get(KeySort)); raw != "" && ParseSort(raw) == "" {
		bad = append(bad, KeySort)
	}
	return bad
}

func setIf(v url.Values, key, val string) {
	if val != "" {
		v.Set(key, val)
	}
}

func parseInt(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
