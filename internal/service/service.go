package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"storyweaver/harvester/internal/archive"
	"storyweaver/harvester/internal/catalog"
	"storyweaver/harvester/internal/client"
	"storyweaver/harvester/internal/domain"
	"storyweaver/harvester/internal/queue"
	"storyweaver/harvester/internal/repository"
	"storyweaver/harvester/internal/resolver"
	"storyweaver/harvester/internal/state"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	ModePool       = "pool"
	ModeSequential = "sequential"
)

// ErrNoQueue means no persisted queue exists for a command that needs one
var ErrNoQueue = errors.New("no persisted queue state")

type Options struct {
	Mode             string
	MaxWorkers       int
	MaxAttempts      int
	BackoffBase      time.Duration
	BackoffMax       time.Duration
	ProgressInterval time.Duration

	TargetLocale  string
	DownloadTypes []string // In order of preference

	CatalogSource   string
	MappingFile     string
	MaxProbes       int
	ProbesPerMinute int

	Archive archive.Options
}

// AntiBotHook lets an operator clear a challenge by hand. Returning true grants the
// item one more attempt within its budget.
type AntiBotHook func(ctx context.Context, item domain.QueueItem, cause error) bool

type Service struct {
	opts      Options
	client    client.StoryClient
	store     state.Store
	snapshots repository.SnapshotRepository
	publisher queue.Publisher

	extractor *catalog.Extractor
	resolver  *resolver.Resolver
	fetcher   *archive.Fetcher

	antiBotHook AntiBotHook
	sleep       func(ctx context.Context, d time.Duration) error
	now         func() time.Time

	tracker atomic.Pointer[state.Tracker]
}

// NewService wires the pipeline stages around one story client. publisher may be nil.
func NewService(
	opts Options,
	storyClient client.StoryClient,
	store state.Store,
	snapshots repository.SnapshotRepository,
	publisher queue.Publisher,
) *Service {
	if opts.MaxWorkers < 1 {
		opts.MaxWorkers = 1
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Service{
		opts:      opts,
		client:    storyClient,
		store:     store,
		snapshots: snapshots,
		publisher: publisher,
		extractor: catalog.NewExtractor(),
		resolver:  resolver.NewResolver(storyClient, opts.ProbesPerMinute),
		fetcher:   archive.NewFetcher(storyClient, opts.Archive),
		sleep:     sleepContext,
		now:       time.Now,
	}
}

func (s *Service) SetAntiBotHook(hook AntiBotHook) {
	s.antiBotHook = hook
}

// Run resumes the persisted queue, or builds one from the catalog, and drives it to the end
// or until ctx is cancelled. Per-item failures never fail the run.
func (s *Service) Run(ctx context.Context) (domain.Summary, error) {
	tracker, err := s.Prepare(ctx)
	if err != nil {
		return domain.Summary{}, err
	}
	s.tracker.Store(tracker)

	runErr := s.schedule(ctx, tracker)

	snapshot := tracker.Snapshot()
	logSummary(snapshot)
	if runErr != nil {
		return snapshot.Summary(), runErr
	}
	if ctx.Err() != nil {
		log.Infof("🛑 Stopped at item %d of %d; state saved, rerun to resume", snapshot.Cursor, snapshot.TotalItems)
	}
	return snapshot.Summary(), nil
}

// Prepare loads the persisted queue or initializes a fresh one
func (s *Service) Prepare(ctx context.Context) (*state.Tracker, error) {
	st, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load queue state: %w", err)
	}

	if st == nil {
		st, err = s.Initialize(ctx)
		if err != nil {
			return nil, err
		}
		return state.NewTracker(s.store, st), nil
	}

	log.Infof("🔄 Resuming run %s at item %d of %d (%d completed, %d failed)",
		st.RunID, st.Cursor, st.TotalItems, st.Completed, st.Failed)

	tracker := state.NewTracker(s.store, st)
	if _, _, err := tracker.Recover(ctx, s.opts.MaxAttempts); err != nil {
		return nil, err
	}
	return tracker, nil
}

// Initialize builds the queue from the catalog. Unknown entries are resolved speculatively
// up to the probe cap; whatever stays unresolved is excluded, not failed.
func (s *Service) Initialize(ctx context.Context) (*domain.QueueState, error) {
	feed, err := s.readCatalog(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := s.extractor.Extract(feed)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("catalog %s has no usable entries", s.opts.CatalogSource)
	}

	known, err := s.store.LoadSlugCache(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load slug cache: %w", err)
	}
	mapping, err := loadKnownMapping(s.opts.MappingFile)
	if err != nil {
		return nil, err
	}
	known.Merge(mapping)

	items := make([]domain.QueueItem, 0, len(entries))
	excluded, probed := 0, 0

	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		slug, ok := known.Lookup(entry.RemoteID)
		if !ok && probed < s.opts.MaxProbes {
			probed++
			var rerr error
			slug, ok, rerr = s.resolver.Resolve(ctx, entry, known)
			if rerr != nil {
				log.Warnf("⚠️ Resolution of %s aborted: %v", entry.RemoteID, rerr)
			}
			if ok {
				known[entry.RemoteID] = slug
				if err := s.store.RecordSlug(ctx, entry.RemoteID, slug); err != nil {
					log.Errorf("❌ Failed to record slug for %s: %v", entry.RemoteID, err)
				}
			}
		}
		if !ok {
			excluded++
			continue
		}

		items = append(items, domain.QueueItem{
			RemoteID: entry.RemoteID,
			Slug:     slug,
			Title:    entry.Title,
			Status:   domain.StatusPending,
		})
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("no catalog entry could be resolved (%d excluded)", excluded)
	}

	st := domain.NewQueueState(uuid.NewString(), items, excluded, s.now())
	if err := s.store.Save(ctx, st); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistenceFailed, err)
	}

	log.Infof("✅ Queue %s initialized with %d items (%d entries excluded, %d probed)", st.RunID, len(items), excluded, probed)
	return st, nil
}

func (s *Service) readCatalog(ctx context.Context) ([]byte, error) {
	source := s.opts.CatalogSource
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		log.Infof("📥 Fetching catalog from %s", source)
		return s.client.FetchCatalog(ctx, source)
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return data, nil
}

// loadKnownMapping reads an id -> slug document. YAML and JSON are both accepted.
func loadKnownMapping(path string) (domain.SlugCache, error) {
	if path == "" {
		return domain.SlugCache{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Warnf("⚠️ Known mapping file %s not found, continuing without it", path)
			return domain.SlugCache{}, nil
		}
		return nil, fmt.Errorf("failed to read known mapping: %w", err)
	}

	mapping := map[string]string{}
	if err := yaml.Unmarshal(data, &mapping); err != nil {
		return nil, fmt.Errorf("failed to parse known mapping %s: %w", path, err)
	}
	log.Infof("📖 Loaded %d known slugs from %s", len(mapping), path)
	return domain.SlugCache(mapping), nil
}

// Status returns the persisted queue without touching the network
func (s *Service) Status(ctx context.Context) (*domain.QueueState, error) {
	st, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, ErrNoQueue
	}
	return st, nil
}

// Reset archives the persisted queue. The slug cache is kept.
func (s *Service) Reset(ctx context.Context) (string, error) {
	return s.store.Reset(ctx)
}

func (s *Service) RequeueFailed(ctx context.Context) (int, error) {
	st, err := s.Status(ctx)
	if err != nil {
		return 0, err
	}
	return state.NewTracker(s.store, st).RequeueFailed(ctx)
}

// Snapshot exposes the live queue of the current run, nil before it starts
func (s *Service) Snapshot() *domain.QueueState {
	tracker := s.tracker.Load()
	if tracker == nil {
		return nil
	}
	return tracker.Snapshot()
}
