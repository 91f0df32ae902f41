package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storyweaver/harvester/internal/catalog"
	"storyweaver/harvester/internal/domain"

	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
)

// MetadataProber is the part of the story client the resolver needs
type MetadataProber interface {
	FetchMetadata(ctx context.Context, slug string) (*domain.RemoteMetadata, []byte, error)
}

// Resolver finds the API slug of catalog entries whose slug is not known yet.
// Probes are speculative, so they are paced more conservatively than regular fetches.
type Resolver struct {
	prober MetadataProber
	pacer  ratelimit.Limiter
}

func NewResolver(prober MetadataProber, probesPerMinute int) *Resolver {
	pacer := ratelimit.NewUnlimited()
	if probesPerMinute > 0 {
		pacer = ratelimit.New(probesPerMinute, ratelimit.Per(time.Minute), ratelimit.WithoutSlack)
	}
	return &Resolver{prober: prober, pacer: pacer}
}

// Candidates lists the slugs to probe for an entry, best guess first
func Candidates(remoteID, candidateSlug string) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(s string) {
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	add(candidateSlug)
	if n := catalog.NumericID(remoteID); n != "" {
		add(n)
		add(n + "-story")
		add(n + "-untitled")
		add("story-" + n)
	}
	return out
}

// Resolve returns the slug for entry. A cache hit makes no network call.
// ok is false when no pattern answered. A rate-limit response aborts the entry with an error.
// Recording the result is up to the caller.
func (r *Resolver) Resolve(ctx context.Context, entry domain.CatalogEntry, known domain.SlugCache) (string, bool, error) {
	if slug, ok := known.Lookup(entry.RemoteID); ok {
		return slug, true, nil
	}

	for _, candidate := range Candidates(entry.RemoteID, entry.CandidateSlug) {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}
		r.pacer.Take()

		_, _, err := r.prober.FetchMetadata(ctx, candidate)
		// A 2xx answer that fails to decode still proves the slug exists
		if err == nil || errors.Is(err, domain.ErrMalformed) {
			log.Infof("🔎 Resolved %s to slug %s", entry.RemoteID, candidate)
			return candidate, true, nil
		}
		if errors.Is(err, domain.ErrRateLimited) {
			return "", false, fmt.Errorf("probing %s for %s: %w", candidate, entry.RemoteID, err)
		}
		log.WithFields(log.Fields{"remote_id": entry.RemoteID, "slug": candidate}).
			Debugf("Probe failed: %v", err)
	}

	log.Warnf("⚠️ Could not resolve a slug for %s", entry.RemoteID)
	return "", false, nil
}
