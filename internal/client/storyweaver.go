package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"storyweaver/harvester/internal/config"
	"storyweaver/harvester/internal/domain"
	"storyweaver/harvester/internal/proxy"
	"storyweaver/harvester/internal/throttle"

	"github.com/andybalholm/brotli"
	log "github.com/sirupsen/logrus"
	"resty.dev/v3"
)

// StoryClient talks to the story API. Every request passes the shared limiter.
type StoryClient interface {
	FetchCatalog(ctx context.Context, source string) ([]byte, error)
	FetchMetadata(ctx context.Context, slug string) (*domain.RemoteMetadata, []byte, error)
	Download(ctx context.Context, href string) ([]byte, error)
	Close()
}

type storyClient struct {
	cfg           config.RemoteConfig
	limiter       *throttle.Limiter
	cooldown      time.Duration
	proxySupplier proxy.ProxySupplier

	mu      sync.Mutex
	clients map[string]*resty.Client // Keyed by proxy URL, "" is direct
	current string
}

type metadataEnvelope struct {
	OK   *bool                  `json:"ok"`
	Data *domain.RemoteMetadata `json:"data"`
}

func NewStoryClient(cfg config.RemoteConfig, limiter *throttle.Limiter, cooldown time.Duration, proxySupplier proxy.ProxySupplier) StoryClient {
	c := &storyClient{
		cfg:           cfg,
		limiter:       limiter,
		cooldown:      cooldown,
		proxySupplier: proxySupplier,
		clients:       make(map[string]*resty.Client),
	}

	if proxySupplier != nil {
		if proxyURL := proxySupplier.Get(); proxyURL != "" {
			c.current = proxyURL
			log.Infof("🔗 Using initial proxy: %s", proxyURL)
		}
	}

	return c
}

func (c *storyClient) newHTTPClient(proxyURL string) *resty.Client {
	client := resty.New().
		SetTimeout(c.cfg.Timeout).
		// Every outbound request must pass the limiter; retries belong to the scheduler
		SetRetryCount(0).
		SetHeader("User-Agent", c.cfg.UserAgent).
		SetHeader("Accept-Language", "en-US,en;q=0.5").
		AddContentDecompresser("br", func(r io.ReadCloser) (io.ReadCloser, error) {
			return &brotliReader{Reader: brotli.NewReader(r), src: r}, nil
		})

	if c.cfg.SessionCookie != "" {
		client.SetHeader("Cookie", c.cfg.SessionCookie)
	}
	if proxyURL != "" {
		client.SetProxy(proxyURL)
	}
	return client
}

func (c *storyClient) http() *resty.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	client, ok := c.clients[c.current]
	if !ok {
		client = c.newHTTPClient(c.current)
		c.clients[c.current] = client
	}
	return client
}

// rotateProxy switches to the next proxy. It reports false when there is nothing to switch to.
func (c *storyClient) rotateProxy() bool {
	if c.proxySupplier == nil || c.proxySupplier.Len() == 0 {
		return false
	}
	next := c.proxySupplier.Get()

	c.mu.Lock()
	defer c.mu.Unlock()
	if next == c.current && c.proxySupplier.Len() == 1 {
		return false
	}
	c.current = next
	log.Infof("🔄 Switching to new proxy: %s", next)
	return true
}

func (c *storyClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, client := range c.clients {
		client.Close()
	}
	c.clients = make(map[string]*resty.Client)
}

func (c *storyClient) get(ctx context.Context, target, accept string) (*resty.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.http().R().
		SetContext(ctx).
		SetHeader("Accept", accept).
		Get(target)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrDownloadFailed, target, err)
	}
	return resp, nil
}

func (c *storyClient) metadataURL(slug string) string {
	path := strings.ReplaceAll(c.cfg.MetadataPath, "{slug}", url.PathEscape(slug))
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

func (c *storyClient) FetchMetadata(ctx context.Context, slug string) (*domain.RemoteMetadata, []byte, error) {
	target := c.metadataURL(slug)

	body, err := c.fetchMetadataBody(ctx, target)
	if err != nil {
		return nil, nil, err
	}

	var env metadataEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, nil, fmt.Errorf("%w: metadata for %s is not JSON: %v", domain.ErrMalformed, slug, err)
	}
	if env.OK != nil && !*env.OK {
		return nil, nil, fmt.Errorf("%w: metadata for %s reported ok=false", domain.ErrNotFound, slug)
	}
	if env.Data == nil {
		return nil, nil, fmt.Errorf("%w: metadata for %s has no data", domain.ErrMalformed, slug)
	}

	log.Debugf("Fetched metadata for %s (%d links, %d variants)", slug, len(env.Data.DownloadLinks), len(env.Data.Variants))
	return env.Data, body, nil
}

// fetchMetadataBody returns a body that is neither an error status nor a challenge page.
// A challenge page gets one retry through the next proxy when proxies are configured.
func (c *storyClient) fetchMetadataBody(ctx context.Context, target string) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		resp, err := c.get(ctx, target, "application/json")
		if err != nil {
			return nil, err
		}
		if err := c.classifyStatus(target, resp, domain.ErrRemoteFailure); err != nil {
			return nil, err
		}

		body := resp.Bytes()
		if int64(len(body)) > c.cfg.MaxBodyBytes && c.cfg.MaxBodyBytes > 0 {
			return nil, fmt.Errorf("%w: metadata body of %d bytes exceeds limit", domain.ErrMalformed, len(body))
		}

		desc, challenged := detectInterstitial(body)
		if !challenged {
			return body, nil
		}

		log.Warnf("🚫 Anti-bot interstitial for %s: %s", target, desc)
		if attempt == 0 && c.rotateProxy() {
			log.Infof("🔄 Retrying with new proxy...")
			continue
		}
		return nil, fmt.Errorf("%w: %s served %q", domain.ErrAntiBot, target, desc)
	}
}

// classifyStatus maps non-2xx responses onto the error taxonomy. fallback is used for
// statuses without a dedicated class.
func (c *storyClient) classifyStatus(target string, resp *resty.Response, fallback error) error {
	code := resp.StatusCode()
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header().Get("Retry-After"), time.Now())
		c.limiter.Trip(max(retryAfter, c.cooldown))
		return &domain.RateLimitError{URL: target, RetryAfter: retryAfter}
	case fallback == domain.ErrRemoteFailure && (code == http.StatusNotFound || code == http.StatusGone):
		return fmt.Errorf("%w: %s returned %s", domain.ErrNotFound, target, resp.Status())
	default:
		return fmt.Errorf("%w: %s returned %s", fallback, target, resp.Status())
	}
}

func (c *storyClient) Download(ctx context.Context, href string) ([]byte, error) {
	target, err := c.resolve(href)
	if err != nil {
		return nil, fmt.Errorf("%w: bad download link %q: %v", domain.ErrDownloadFailed, href, err)
	}

	resp, err := c.get(ctx, target, "*/*")
	if err != nil {
		return nil, err
	}
	if err := c.classifyStatus(target, resp, domain.ErrDownloadFailed); err != nil {
		return nil, err
	}

	body := resp.Bytes()
	if c.cfg.MaxBodyBytes > 0 && int64(len(body)) > c.cfg.MaxBodyBytes {
		return nil, fmt.Errorf("%w: %s body of %d bytes exceeds limit", domain.ErrDownloadFailed, target, len(body))
	}

	log.Debugf("Downloaded %d bytes from %s", len(body), target)
	return body, nil
}

// FetchCatalog downloads a remote catalog feed
func (c *storyClient) FetchCatalog(ctx context.Context, source string) ([]byte, error) {
	resp, err := c.get(ctx, source, "application/atom+xml, application/rss+xml, application/xml;q=0.9, */*;q=0.8")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch catalog: %w", err)
	}
	if err := c.classifyStatus(source, resp, domain.ErrRemoteFailure); err != nil {
		return nil, fmt.Errorf("failed to fetch catalog: %w", err)
	}
	return resp.Bytes(), nil
}

func (c *storyClient) resolve(href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	base, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

type brotliReader struct {
	*brotli.Reader
	src io.Closer
}

func (b *brotliReader) Close() error {
	return b.src.Close()
}
