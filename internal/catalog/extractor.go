package catalog

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"storyweaver/harvester/internal/domain"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	log "github.com/sirupsen/logrus"
)

var (
	linkCode  = regexp.MustCompile(`\b([A-Z]{2,5}-\d+)\b`)
	storyPath = regexp.MustCompile(`/stories/(\d+)`)
)

// Extractor turns a catalog feed into discovery seeds. Each call parses the whole
// document again, so the result is finite and can be rebuilt at will.
type Extractor struct {
	parser *gofeed.Parser
}

func NewExtractor() *Extractor {
	return &Extractor{parser: gofeed.NewParser()}
}

type rawEntry struct {
	links []string
	id    string
	title string
}

// Extract parses Atom/RSS with gofeed and falls back to a loose scan of
// entry/item blocks when the document is not a well-formed feed
func (e *Extractor) Extract(feed []byte) ([]domain.CatalogEntry, error) {
	raws, err := e.parseFeed(feed)
	if err != nil {
		log.Debugf("Feed parser rejected catalog (%v), falling back to block scan", err)
		raws, err = scanBlocks(feed)
		if err != nil {
			return nil, fmt.Errorf("failed to parse catalog: %w", err)
		}
	}

	entries := make([]domain.CatalogEntry, 0, len(raws))
	seen := make(map[string]struct{}, len(raws))
	skipped := 0

	for i, raw := range raws {
		title := strings.TrimSpace(raw.title)
		remoteID := identifier(raw)
		if remoteID == "" && title == "" {
			skipped++
			log.Warnf("⚠️ Catalog entry %d has neither id nor title, skipping", i)
			continue
		}
		if remoteID == "" {
			// Without an id the title is the only stable handle we have
			remoteID = Slugify(title)
		}
		if _, dup := seen[remoteID]; dup {
			log.Debugf("Duplicate catalog entry %s, keeping the first one", remoteID)
			continue
		}
		seen[remoteID] = struct{}{}

		entries = append(entries, domain.CatalogEntry{
			RemoteID:      remoteID,
			Title:         title,
			CandidateSlug: CandidateSlug(remoteID, title),
		})
	}

	log.Infof("📚 Extracted %d catalog entries (%d skipped)", len(entries), skipped)
	return entries, nil
}

func (e *Extractor) parseFeed(feed []byte) ([]rawEntry, error) {
	parsed, err := e.parser.Parse(bytes.NewReader(feed))
	if err != nil {
		return nil, err
	}

	raws := make([]rawEntry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		raw := rawEntry{id: item.GUID, title: item.Title}
		if item.Link != "" {
			raw.links = append(raw.links, item.Link)
		}
		raw.links = append(raw.links, item.Links...)
		raws = append(raws, raw)
	}
	return raws, nil
}

func scanBlocks(feed []byte) ([]rawEntry, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(feed))
	if err != nil {
		return nil, err
	}

	var raws []rawEntry
	doc.Find("entry, item").Each(func(_ int, s *goquery.Selection) {
		raw := rawEntry{
			title: s.Find("title").First().Text(),
			id:    strings.TrimSpace(s.Find("id, guid").First().Text()),
		}
		s.Find("link").Each(func(_ int, l *goquery.Selection) {
			if href, ok := l.Attr("href"); ok {
				raw.links = append(raw.links, href)
			}
		})
		raws = append(raws, raw)
	})
	return raws, nil
}

// identifier prefers a code embedded in a link over the generic id field
func identifier(raw rawEntry) string {
	for _, link := range raw.links {
		if m := linkCode.FindStringSubmatch(link); m != nil {
			return m[1]
		}
	}
	for _, link := range raw.links {
		if m := storyPath.FindStringSubmatch(link); m != nil {
			return m[1]
		}
	}

	id := strings.TrimSpace(raw.id)
	if id == "" {
		return ""
	}
	if m := linkCode.FindStringSubmatch(id); m != nil {
		return m[1]
	}
	if i := strings.LastIndexAny(id, ":/"); i >= 0 && i < len(id)-1 {
		return id[i+1:]
	}
	return id
}
