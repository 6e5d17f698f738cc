package savedsearch

import (
	"context"
	"errors"
	"testing"
	"time"

	"socialdash/internal/search"
)

func newTestService() *Service {
	svc := NewService(NewMemoryStore())
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	svc.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Minute)
	}
	return svc
}

func TestCreateStoresCanonicalQuery(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	p := search.Params{Keyword: "  climate ", Subreddit: "science", StartDate: search.NewDate(2024, 1, 1)}

	saved, err := svc.Create(ctx, "", p)
	if err != nil {
		t.Fatal(err)
	}
	if saved.Name != "climate" {
		t.Fatalf("name %q", saved.Name)
	}
	if saved.Query != "keyword=climate&startDate=2024-01-01&subreddit=science" {
		t.Fatalf("query %q", saved.Query)
	}
	got, err := svc.Get(ctx, saved.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Params().Encode() != saved.Query {
		t.Fatalf("restored %q", got.Params().Encode())
	}
}

func TestCreateRequiresName(t *testing.T) {
	tests := []struct {
		name   string
		label  string
		params search.Params
	}{
		{"no keyword", " ", search.Params{Author: "bob"}},
		{"blank keyword", "", search.Params{Keyword: " \t ", Author: "bob"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService()
			if _, err := svc.Create(context.Background(), tt.label, tt.params); !errors.Is(err, ErrInvalid) {
				t.Fatalf("got %v", err)
			}
			list, err := svc.List(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if len(list) != 0 {
				t.Fatalf("invalid search was stored: %+v", list)
			}
		})
	}
}

func TestCreateNameFromPaddedKeyword(t *testing.T) {
	svc := newTestService()
	saved, err := svc.Create(context.Background(), "   ", search.Params{Keyword: "\t climate change  "})
	if err != nil {
		t.Fatal(err)
	}
	if saved.Name != "climate change" {
		t.Fatalf("name %q", saved.Name)
	}
	if saved.Query != "keyword=climate+change" {
		t.Fatalf("query %q", saved.Query)
	}
}

func TestListNewestFirstAndDelete(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	first, _ := svc.Create(ctx, "first", search.Params{Keyword: "a"})
	second, _ := svc.Create(ctx, "second", search.Params{Keyword: "b"})

	list, err := svc.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("unexpected order %+v", list)
	}

	if err := svc.Delete(ctx, first.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, first.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := svc.Get(ctx, first.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete: %v", err)
	}
}

func TestMalformedIDIsNotFound(t *testing.T) {
	svc := newTestService()
	if _, err := svc.Get(context.Background(), "not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v", err)
	}
	if err := svc.Delete(context.Background(), "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v", err)
	}
}

// refusingStore fails the test on any lookup. Typed-id stores reject
// non-uuid keys with a driver error, so those must never reach them.
type refusingStore struct {
	Store
	t *testing.T
}

func (s refusingStore) Get(context.Context, string) (SavedSearch, error) {
	s.t.Fatal("malformed id reached the store")
	return SavedSearch{}, nil
}

func (s refusingStore) Delete(context.Context, string) error {
	s.t.Fatal("malformed id reached the store")
	return nil
}

func TestMalformedIDNeverReachesStore(t *testing.T) {
	svc := NewService(refusingStore{Store: NewMemoryStore(), t: t})
	for _, id := range []string{"", "42", "not-a-uuid", "'; DROP TABLE saved_searches; --"} {
		if _, err := svc.Get(context.Background(), id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("get %q: %v", id, err)
		}
		if err := svc.Delete(context.Background(), id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("delete %q: %v", id, err)
		}
	}
}
