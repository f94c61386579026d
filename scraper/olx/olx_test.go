package olx

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"olx-scraper/models"
)

func cardHTML(id, title, price string) string {
	return fmt.Sprintf(`<div data-cy="l-card" id="%s">
		<a href="/d/uk/obyavlenie/%s.html"></a>
		<h4>%s</h4>
		<p data-testid="ad-price">%s</p>
	</div>`, id, id, title, price)
}

func pageHTML(nextHref string, cards ...string) string {
	page := "<html><body>"
	for _, c := range cards {
		page += c
	}
	if nextHref != "" {
		page += fmt.Sprintf(`<div data-testid="pagination-wrapper">
			<a data-testid="pagination-forward" href="%s"></a>
		</div>`, nextHref)
	}
	return page + "</body></html>"
}

func TestFetchPageRetriesTransientFailures(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	s := newTestScraper(t)
	body, err := s.fetchPage(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetchPage: %v", err)
	}
	if body != "ok" {
		t.Errorf("body = %q; want ok", body)
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Errorf("attempts = %d; want 2 (one retry)", got)
	}
}

func TestFetchPageDoesNotRetryClientErrors(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := newTestScraper(t)
	_, err := s.fetchPage(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error for 404, got nil")
	}
	if IsTransient(err) {
		t.Error("404 classified as transient")
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("attempts = %d; want 1 (no retries)", got)
	}
}

func TestFetchPageExhaustsRetries(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := newTestScraper(t)
	_, err := s.fetchPage(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error after exhausting retries, got nil")
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("attempts = %d; want 3 (MaxRetries)", got)
	}
}

func TestScrapeWalksAllPages(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/page1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pageHTML("/page2",
			cardHTML("1", "Перша", "10 000 грн"),
			cardHTML("2", "Друга", "11 000 грн")))
	})
	mux.HandleFunc("/page2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pageHTML("", cardHTML("3", "Третя", "12 000 грн")))
	})

	s := newTestScraper(t)
	s.cfg.BaseURL = srv.URL
	s.cfg.SearchURL = srv.URL + "/page1"

	var pages []int
	sink := PageSinkFunc(func(pageNum int, apartments []*models.Apartment) {
		pages = append(pages, pageNum)
	})

	apartments, err := s.Scrape(context.Background(), sink)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}

	if len(apartments) != 3 {
		t.Fatalf("got %d apartments, want 3", len(apartments))
	}
	// Page-then-card order preserved.
	for i, want := range []string{"1", "2", "3"} {
		if apartments[i].PostID != want {
			t.Errorf("apartments[%d].PostID = %q; want %q", i, apartments[i].PostID, want)
		}
	}
	if len(pages) != 2 || pages[0] != 1 || pages[1] != 2 {
		t.Errorf("sink pages = %v; want [1 2]", pages)
	}
}

func TestScrapeHonorsMaxPages(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/page1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pageHTML("/page2", cardHTML("1", "Перша", "10 000 грн")))
	})
	mux.HandleFunc("/page2", func(w http.ResponseWriter, r *http.Request) {
		t.Error("page 2 fetched despite MaxPages=1")
	})

	s := newTestScraper(t)
	s.cfg.BaseURL = srv.URL
	s.cfg.SearchURL = srv.URL + "/page1"
	s.cfg.MaxPages = 1

	apartments, err := s.Scrape(context.Background(), nil)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if len(apartments) != 1 {
		t.Errorf("got %d apartments, want 1", len(apartments))
	}
}

func TestScrapeKeepsEarlierPagesOnFailure(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/page1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pageHTML("/page2", cardHTML("1", "Перша", "10 000 грн")))
	})
	mux.HandleFunc("/page2", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	s := newTestScraper(t)
	s.cfg.BaseURL = srv.URL
	s.cfg.SearchURL = srv.URL + "/page1"

	apartments, err := s.Scrape(context.Background(), nil)
	if err != nil {
		t.Fatalf("partial success must not surface an error, got %v", err)
	}
	if len(apartments) != 1 || apartments[0].PostID != "1" {
		t.Errorf("accumulated results lost: %v", apartments)
	}
}

func TestScrapeFailsWhenNothingObtained(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	s := newTestScraper(t)
	s.cfg.BaseURL = srv.URL
	s.cfg.SearchURL = srv.URL + "/page1"

	apartments, err := s.Scrape(context.Background(), nil)
	if err == nil {
		t.Error("expected error when zero records were obtained")
	}
	if len(apartments) != 0 {
		t.Errorf("got %d apartments, want 0", len(apartments))
	}
}

func TestScrapeStopsOnPaginationCycle(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var hits int32
	mux.HandleFunc("/page1", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		// "next" points back at this very page.
		fmt.Fprint(w, pageHTML("/page1", cardHTML("1", "Перша", "10 000 грн")))
	})

	s := newTestScraper(t)
	s.cfg.BaseURL = srv.URL
	s.cfg.SearchURL = srv.URL + "/page1"

	apartments, err := s.Scrape(context.Background(), nil)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("page fetched %d times; want 1", got)
	}
	if len(apartments) != 1 {
		t.Errorf("got %d apartments, want 1", len(apartments))
	}
}

func TestScrapeStopsPromptlyOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pageHTML("/next", cardHTML("1", "Перша", "10 000 грн")))
	}))
	defer srv.Close()

	s := newTestScraper(t)
	s.cfg.BaseURL = srv.URL
	s.cfg.SearchURL = srv.URL + "/page1"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	apartments, err := s.Scrape(ctx, nil)
	if err == nil {
		t.Error("expected context error from cancelled walk")
	}
	if len(apartments) != 0 {
		t.Errorf("got %d apartments, want 0", len(apartments))
	}
}
