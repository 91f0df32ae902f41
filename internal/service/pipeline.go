package service

import (
	"context"
	"fmt"
	"strings"

	"storyweaver/harvester/internal/domain"
	"storyweaver/harvester/internal/domain/task"
	"storyweaver/harvester/internal/locale"
	"storyweaver/harvester/internal/state"

	log "github.com/sirupsen/logrus"
)

// process runs one item through fetch, locale selection and archive extraction
func (s *Service) process(ctx context.Context, item domain.QueueItem) (state.Outcome, error) {
	logger := log.WithFields(log.Fields{"remote_id": item.RemoteID, "slug": item.Slug, "attempt": item.Attempts})

	meta, raw, err := s.client.FetchMetadata(ctx, item.Slug)
	if err != nil {
		return state.Outcome{}, fmt.Errorf("fetch metadata: %w", err)
	}

	canonical, ok := locale.SelectCanonical(meta, item.Slug, s.opts.TargetLocale)
	if !ok {
		logger.Infof("🌐 No %s edition, completing without target", s.opts.TargetLocale)
		out := state.Outcome{NoTarget: true}
		// Kept under the original slug so the missing edition can be audited
		if err := s.snapshots.SaveSnapshot(ctx, item.Slug, item.RemoteID, raw); err != nil {
			return state.Outcome{}, fmt.Errorf("%w: %v", domain.ErrPersistenceFailed, err)
		}
		out.Downloads.MetadataSaved = true
		return out, nil
	}

	if canonical != item.Slug {
		logger.Debugf("Canonical edition is %s", canonical)
		meta, raw, err = s.client.FetchMetadata(ctx, canonical)
		if err != nil {
			return state.Outcome{}, fmt.Errorf("fetch canonical metadata: %w", err)
		}
	}

	out := state.Outcome{CanonicalSlug: canonical}
	if err := s.snapshots.SaveSnapshot(ctx, canonical, item.RemoteID, raw); err != nil {
		return state.Outcome{}, fmt.Errorf("%w: %v", domain.ErrPersistenceFailed, err)
	}
	out.Downloads.MetadataSaved = true

	link, ok := pickDownload(meta.DownloadLinks, s.opts.DownloadTypes)
	if !ok {
		return state.Outcome{}, fmt.Errorf("%w: no download link of types %v", domain.ErrNotFound, s.opts.DownloadTypes)
	}

	res, err := s.fetcher.FetchAndExtract(ctx, link.Href, canonical)
	if err != nil {
		return state.Outcome{}, fmt.Errorf("fetch %s asset: %w", link.Type, err)
	}
	out.Downloads.AssetSaved = res.Asset
	out.Downloads.ContentSaved = res.Content

	if res.Content {
		s.handOff(ctx, item, canonical, res.ContentPath, res.AssetPath)
	}

	logger.Infof("✅ Stored %s (asset=%v, content=%v)", canonical, res.Asset, res.Content)
	return out, nil
}

// pickDownload returns the first link matching the preferred types, in preference order
func pickDownload(links []domain.DownloadLink, preferred []string) (domain.DownloadLink, bool) {
	for _, want := range preferred {
		want = strings.ToLower(want)
		for _, link := range links {
			if link.Href != "" && strings.Contains(strings.ToLower(link.Type), want) {
				return link, true
			}
		}
	}
	return domain.DownloadLink{}, false
}

// handOff tells the analysis service that content is ready. Failures are logged only;
// the files on disk remain the source of truth.
func (s *Service) handOff(ctx context.Context, item domain.QueueItem, slug, contentPath, assetPath string) {
	if s.publisher == nil {
		return
	}
	ready := &task.ContentReadyTask{
		RemoteID:    item.RemoteID,
		Slug:        slug,
		ContentPath: contentPath,
		AssetPath:   assetPath,
		Title:       item.Title,
		ReadyAt:     s.now().UTC(),
	}
	if _, err := s.publisher.AddTask(ctx, ready); err != nil {
		log.Errorf("❌ Failed to hand off %s: %v", slug, err)
	}
}
