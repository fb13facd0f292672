package rolepolicy

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"fintherapy-backend/internal/domain"
	"fintherapy-backend/pkg/logger"
)

// Store holds the current policy and swaps it when the file changes.
// Readers always see a complete snapshot.
type Store struct {
	path string

	mu     sync.RWMutex
	policy *Policy
}

func NewStore(path string) (*Store, error) {
	p, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, policy: p}, nil
}

func (s *Store) Current() *Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}

// Reload re-reads the file. On error the previous policy stays active; a file that
// disappeared (mid-swap or deleted) is an error here, not an empty policy.
func (s *Store) Reload() error {
	p, err := readFile(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.policy = p
	s.mu.Unlock()
	return nil
}

func (s *Store) IsEmployerAdmin(email string) bool {
	return s.Current().IsEmployerAdmin(email)
}

func (s *Store) EmployerFor(email string) (string, bool) {
	return s.Current().EmployerFor(email)
}

func (s *Store) Subsidy() domain.SubsidyDefaults {
	return s.Current().Subsidy()
}

// Watch reloads the policy whenever the file is written or replaced, until ctx is done.
// The parent directory is watched because editors and config mounts swap files by rename.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create policy watcher: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(s.path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
					continue
				}
				if err := s.Reload(); err != nil {
					logger.Log.Error("Role policy reload failed, keeping previous policy", "path", s.path, "error", err)
					continue
				}
				logger.Log.Info("Role policy reloaded", "path", s.path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Log.Warn("Role policy watcher error", "error", err)
			}
		}
	}()
	return nil
}
