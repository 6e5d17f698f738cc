package search

import (
	"sort"
	"time"
)

// PostTimeLayout is the format of Post.CreatedUTC as sent by the backend.
const PostTimeLayout = "2006-01-02 15:04:05"

// Post is one search hit.
type Post struct {
	ID          string   `json:"id"`
	Subreddit   string   `json:"subreddit"`
	Author      string   `json:"author"`
	Title       string   `json:"title"`
	PreviewText string   `json:"preview_text,omitempty"`
	CreatedUTC  string   `json:"created_utc"`
	Score       int      `json:"score"`
	NumComments int      `json:"num_comments"`
	Permalink   string   `json:"permalink,omitempty"`
	URL         string   `json:"url,omitempty"`
	Domain      string   `json:"domain,omitempty"`
	Sentiment   *float64 `json:"sentiment,omitempty"`
}

// Created parses CreatedUTC, returning the zero time when it is malformed.
func (p Post) Created() time.Time {
	if t, err := time.Parse(PostTimeLayout, p.CreatedUTC); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, p.CreatedUTC); err == nil {
		return t
	}
	return time.Time{}
}

// Results is the body of a /posts/search response.
type Results struct {
	Total  int    `json:"total"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
	Posts  []Post `json:"posts"`
}

// TotalPages reports how many pages of perPage cover Total.
func (r Results) TotalPages(perPage int) int {
	if perPage < 1 || r.Total <= 0 {
		return 0
	}
	return (r.Total + perPage - 1) / perPage
}

// SortPosts returns a sorted copy of posts. Relevance, and any unknown
// order, keeps the backend's ordering.
func SortPosts(posts []Post, by Sort) []Post {
	out := append([]Post(nil), posts...)
	var less func(a, b Post) bool
	switch by {
	case SortRecent:
		less = func(a, b Post) bool { return a.Created().After(b.Created()) }
	case SortComments:
		less = func(a, b Post) bool { return a.NumComments > b.NumComments }
	case SortScore:
		less = func(a, b Post) bool { return a.Score > b.Score }
	case SortSentiment:
		less = func(a, b Post) bool { return sentimentOf(a) > sentimentOf(b) }
	default:
		return out
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func sentimentOf(p Post) float64 {
	if p.Sentiment == nil {
		return 0
	}
	return *p.Sentiment
}
