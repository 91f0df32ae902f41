package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"storyweaver/harvester/internal/config"
	"storyweaver/harvester/internal/domain"
	"storyweaver/harvester/internal/throttle"
)

const metadataJSON = `{"ok":true,"data":{"downloadLinks":[{"type":"PDF","href":"/download/482.pdf"}],` +
	`"translations":[{"language":"Hindi","slug":"483-lomdi","title":"Lomdi"},{"language":"English","slug":"484-the-brave-fox","title":"The Brave Fox"}]}}`

func newTestClient(t *testing.T, baseURL string) (StoryClient, *throttle.Limiter) {
	t.Helper()
	limiter := throttle.NewLimiter(1000, time.Second)
	cfg := config.RemoteConfig{
		BaseURL:       baseURL,
		MetadataPath:  "/api/v1/stories/{slug}/translations_and_videos",
		Timeout:       5 * time.Second,
		UserAgent:     "harvester-test",
		SessionCookie: "_session=abc",
		MaxBodyBytes:  1 << 20,
	}
	c := NewStoryClient(cfg, limiter, 50*time.Millisecond, nil)
	t.Cleanup(c.Close)
	return c, limiter
}

func TestFetchMetadata_ParsesPayloadAndSendsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/stories/482/translations_and_videos" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Cookie") != "_session=abc" || r.Header.Get("User-Agent") != "harvester-test" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(metadataJSON))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	meta, raw, err := c.FetchMetadata(context.Background(), "482")
	if err != nil {
		t.Fatalf("fetch metadata: %v", err)
	}
	if len(meta.DownloadLinks) != 1 || meta.DownloadLinks[0].Type != "PDF" {
		t.Fatalf("unexpected links: %+v", meta.DownloadLinks)
	}
	if len(meta.Variants) != 2 || meta.Variants[1].Slug != "484-the-brave-fox" {
		t.Fatalf("unexpected variants: %+v", meta.Variants)
	}
	if len(raw) == 0 {
		t.Fatalf("expected raw body for the snapshot")
	}
}

func TestFetchMetadata_ClassifiesFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"interstitial", http.StatusOK, "<!DOCTYPE html><html><head><title>Just a moment...</title></head><body>cf-chl</body></html>", domain.ErrAntiBot},
		{"bad json", http.StatusOK, `{"ok":tru`, domain.ErrMalformed},
		{"ok false", http.StatusOK, `{"ok":false}`, domain.ErrNotFound},
		{"missing", http.StatusNotFound, `{}`, domain.ErrNotFound},
		{"gone", http.StatusGone, `{}`, domain.ErrNotFound},
		{"server error", http.StatusInternalServerError, `oops`, domain.ErrRemoteFailure},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c, _ := newTestClient(t, srv.URL)
			_, _, err := c.FetchMetadata(context.Background(), "482")
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestFetchMetadata_AntiBotReportsPageTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><head><title>Attention Required!</title></head><body>captcha</body></html>"))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	_, _, err := c.FetchMetadata(context.Background(), "482")
	if !errors.Is(err, domain.ErrAntiBot) {
		t.Fatalf("expected anti-bot, got %v", err)
	}
	if !strings.Contains(err.Error(), "Attention Required!") {
		t.Fatalf("expected page title in error, got %v", err)
	}
}

func TestFetchMetadata_RateLimitTripsLimiter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, limiter := newTestClient(t, srv.URL)
	_, _, err := c.FetchMetadata(context.Background(), "482")
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	if got := domain.RetryAfter(err); got != 7*time.Second {
		t.Fatalf("expected retry after 7s, got %v", got)
	}
	if limiter.CooldownRemaining() <= 0 {
		t.Fatalf("expected the limiter to be cooling down")
	}
}

func TestDownload_ResolvesRelativeLinks(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/download/482.pdf":
			_, _ = w.Write([]byte("%PDF-1.7 payload"))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	c, limiter := newTestClient(t, srv.URL)
	body, err := c.Download(context.Background(), "/download/482.pdf")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if string(body) != "%PDF-1.7 payload" {
		t.Fatalf("unexpected body %q", body)
	}

	if _, err := c.Download(context.Background(), srv.URL+"/download/missing.zip"); !errors.Is(err, domain.ErrDownloadFailed) {
		t.Fatalf("expected download failure, got %v", err)
	}
	if limiter.Started() != 2 || hits.Load() != 2 {
		t.Fatalf("expected every request to pass the limiter, started=%d hits=%d", limiter.Started(), hits.Load())
	}
}

func TestDownload_TransportErrorStartsOneRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		conn, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			return
		}
		_ = conn.Close()
	}))
	defer srv.Close()

	limiter := throttle.NewLimiter(1, time.Hour)
	cfg := config.RemoteConfig{
		BaseURL:      srv.URL,
		MetadataPath: "/api/v1/stories/{slug}/translations_and_videos",
		Timeout:      5 * time.Second,
		UserAgent:    "harvester-test",
	}
	c := NewStoryClient(cfg, limiter, time.Second, nil)
	defer c.Close()

	if _, err := c.Download(context.Background(), "/download/482.zip"); !errors.Is(err, domain.ErrDownloadFailed) {
		t.Fatalf("expected download failure, got %v", err)
	}
	if limiter.Started() != 1 || hits.Load() != 1 {
		t.Fatalf("expected one outbound request per admitted slot, started=%d hits=%d", limiter.Started(), hits.Load())
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if got := parseRetryAfter("120", now); got != 2*time.Minute {
		t.Errorf("expected 2m, got %v", got)
	}
	if got := parseRetryAfter(now.Add(30*time.Second).Format(http.TimeFormat), now); got != 30*time.Second {
		t.Errorf("expected 30s, got %v", got)
	}
	if got := parseRetryAfter("soon", now); got != 0 {
		t.Errorf("expected 0 for garbage, got %v", got)
	}
}
