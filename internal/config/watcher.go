package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// BootstrapWatcher monitors the externally produced bootstrap file and
// invokes a callback when it changes, so service/agent state can be
// reseeded without a restart.
type BootstrapWatcher struct {
	path        string
	watcher     *fsnotify.Watcher
	stopChan    chan struct{}
	stopOnce    sync.Once
	mu          sync.Mutex
	lastModTime time.Time
	onChange    func(path string)
}

// NewBootstrapWatcher creates a watcher for the given bootstrap file. The
// parent directory is watched so rewrites via rename are caught.
func NewBootstrapWatcher(path string, onChange func(path string)) (*BootstrapWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	bw := &BootstrapWatcher{
		path:     path,
		watcher:  watcher,
		stopChan: make(chan struct{}),
		onChange: onChange,
	}
	if stat, err := os.Stat(path); err == nil {
		bw.lastModTime = stat.ModTime()
	}

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}
	return bw, nil
}

// Start begins watching in a background goroutine.
func (bw *BootstrapWatcher) Start() {
	go bw.watch()
	log.Info().Str("path", bw.path).Msg("Bootstrap file watcher started")
}

func (bw *BootstrapWatcher) watch() {
	// Writers typically rewrite the full file; debounce rapid event bursts.
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-bw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(bw.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(500*time.Millisecond, bw.handleChange)

		case err, ok := <-bw.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Bootstrap watcher error")

		case <-bw.stopChan:
			return
		}
	}
}

func (bw *BootstrapWatcher) handleChange() {
	stat, err := os.Stat(bw.path)
	if err != nil {
		return
	}

	bw.mu.Lock()
	if !stat.ModTime().After(bw.lastModTime) {
		bw.mu.Unlock()
		return
	}
	bw.lastModTime = stat.ModTime()
	bw.mu.Unlock()

	log.Info().Str("path", bw.path).Msg("Bootstrap file changed, reseeding")
	if bw.onChange != nil {
		bw.onChange(bw.path)
	}
}

// Stop shuts the watcher down.
func (bw *BootstrapWatcher) Stop() {
	bw.stopOnce.Do(func() {
		close(bw.stopChan)
		bw.watcher.Close()
	})
}
