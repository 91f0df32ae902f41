package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"storyweaver/harvester/internal/domain"
	"storyweaver/harvester/internal/fsutil"

	log "github.com/sirupsen/logrus"
)

const (
	stateFile = "state.json"
	slugsFile = "slugs.json"
)

type fileStore struct {
	dir string
	mu  sync.Mutex // Guards the slug cache read-modify-write
}

func NewFileStore(dir string) (Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state dir %s: %w", dir, err)
	}
	return &fileStore{dir: dir}, nil
}

func (s *fileStore) statePath() string {
	return filepath.Join(s.dir, stateFile)
}

func (s *fileStore) slugsPath() string {
	return filepath.Join(s.dir, slugsFile)
}

func (s *fileStore) Load(_ context.Context) (*domain.QueueState, error) {
	data, err := os.ReadFile(s.statePath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read queue state: %w", err)
	}
	return decodeState(data, s.statePath()), nil
}

// decodeState treats corrupt or inconsistent documents as "no prior state"
func decodeState(data []byte, source string) *domain.QueueState {
	var st domain.QueueState
	if err := json.Unmarshal(data, &st); err != nil {
		log.Warnf("⚠️ Queue state at %s is corrupt, starting fresh: %v", source, err)
		return nil
	}
	if err := st.Validate(); err != nil {
		log.Warnf("⚠️ Queue state at %s is inconsistent, starting fresh: %v", source, err)
		return nil
	}
	return &st
}

func (s *fileStore) Save(_ context.Context, st *domain.QueueState) error {
	if err := fsutil.WriteJSON(s.statePath(), st); err != nil {
		return fmt.Errorf("failed to save queue state: %w", err)
	}
	return nil
}

func (s *fileStore) LoadSlugCache(_ context.Context) (domain.SlugCache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readSlugs()
}

func (s *fileStore) readSlugs() (domain.SlugCache, error) {
	cache := domain.SlugCache{}
	if err := fsutil.ReadJSON(s.slugsPath(), &cache); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.SlugCache{}, nil
		}
		log.Warnf("⚠️ Slug cache unreadable, ignoring it: %v", err)
		return domain.SlugCache{}, nil
	}
	if cache == nil {
		// A literal null decodes to a nil map
		return domain.SlugCache{}, nil
	}
	return cache, nil
}

func (s *fileStore) RecordSlug(_ context.Context, remoteID, slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cache, err := s.readSlugs()
	if err != nil {
		return err
	}
	if existing, ok := cache[remoteID]; ok && existing != "" {
		return nil
	}
	cache[remoteID] = slug
	if err := fsutil.WriteJSON(s.slugsPath(), cache); err != nil {
		return fmt.Errorf("failed to save slug cache: %w", err)
	}
	return nil
}

func (s *fileStore) Reset(_ context.Context) (string, error) {
	if _, err := os.Stat(s.statePath()); errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	archived := filepath.Join(s.dir, fmt.Sprintf("state-%s.json", archiveStamp(time.Now())))
	if err := os.Rename(s.statePath(), archived); err != nil {
		return "", fmt.Errorf("failed to archive queue state: %w", err)
	}
	return archived, nil
}

func (s *fileStore) Close() error {
	return nil
}
