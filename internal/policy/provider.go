package policy

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cexgate/cexgate/internal/pkg/logger"
	"github.com/fsnotify/fsnotify"
)

// Provider abstracts where policy snapshots come from. The gateway only
// needs the current snapshot and a change signal; whether the backing store
// is a file, a literal object, or a config service is the provider's
// business.
type Provider interface {
	Current() *Config
	Changes() <-chan struct{}
}

// StaticProvider serves a fixed snapshot. Reload is still possible through
// the embedded store (e.g. via the admin endpoint); Changes never fires.
type StaticProvider struct {
	store *Store
}

func NewStaticProvider(cfg *Config) *StaticProvider {
	return &StaticProvider{store: NewStore(cfg)}
}

func (p *StaticProvider) Current() *Config {
	return p.store.Get()
}

func (p *StaticProvider) Changes() <-chan struct{} {
	return nil
}

func (p *StaticProvider) Store() *Store {
	return p.store
}

// FileProvider watches a policy file and atomically replaces the snapshot
// whenever the file changes. A file that fails to parse or validate leaves
// the last good snapshot in effect.
type FileProvider struct {
	path    string
	store   *Store
	watcher *fsnotify.Watcher
	changes chan struct{}
	done    chan struct{}
}

func NewFileProvider(path string) (*FileProvider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return &FileProvider{
		path:    path,
		store:   NewStore(cfg),
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}, nil
}

func (p *FileProvider) Current() *Config {
	return p.store.Get()
}

func (p *FileProvider) Changes() <-chan struct{} {
	return p.changes
}

func (p *FileProvider) Store() *Store {
	return p.store
}

// Watch starts the fsnotify loop. Watching the directory instead of the
// file itself survives editors that replace the file on save.
func (p *FileProvider) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		watcher.Close()
		return err
	}
	p.watcher = watcher

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-p.done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(p.path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				p.reload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error("policy watcher error", "error", err)
			}
		}
	}()
	return nil
}

func (p *FileProvider) Close() {
	close(p.done)
}

func (p *FileProvider) reload() {
	raw, err := os.ReadFile(p.path)
	if err != nil {
		logger.Error("policy reload skipped, file unreadable", "path", p.path, "error", err)
		return
	}
	if err := p.store.Reload(raw); err != nil {
		logger.Error("policy reload rejected, keeping previous snapshot", "path", p.path, "error", err)
		return
	}
	logger.Info("policy snapshot replaced", "path", p.path)
	select {
	case p.changes <- struct{}{}:
	default:
	}
}
