package settings

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DebounceDelay lets bursts of writes settle before a change is reported.
const DebounceDelay = 300 * time.Millisecond

// Watcher monitors the config directory for edits to watched files made by
// other processes (the CLI, an editor, the MCP server)
type Watcher struct {
	dir      string
	files    map[string]bool
	onChange func(name string)
	log      zerolog.Logger
	delay    time.Duration

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	mu      sync.Mutex
}

// NewWatcher reports changes to the named files inside dir
func NewWatcher(dir string, files []string, onChange func(name string), log zerolog.Logger) *Watcher {
	set := make(map[string]bool, len(files))
	for _, f := range files {
		set[f] = true
	}
	return &Watcher{
		dir:      dir,
		files:    set,
		onChange: onChange,
		log:      log,
		delay:    DebounceDelay,
	}
}

// Start begins watching the directory
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// the directory, not the files: atomic saves replace the inode
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return err
	}
	w.watcher = watcher
	w.stopCh = make(chan struct{})

	w.log.Info().Str("path", w.dir).Msg("Started watching config directory")

	go w.watch(watcher, w.stopCh)
	return nil
}

// Stop stops watching
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher != nil {
		close(w.stopCh)
		w.watcher.Close()
		w.watcher = nil
		w.log.Info().Msg("Stopped watching config directory")
	}
}

// watch is the main watch loop
func (w *Watcher) watch(watcher *fsnotify.Watcher, stopCh chan struct{}) {
	// Debounce per file: reset the timer on each event
	timers := make(map[string]*time.Timer)

	for {
		select {
		case <-stopCh:
			for _, t := range timers {
				t.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			name := filepath.Base(event.Name)
			if !w.files[name] {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}

			if t, ok := timers[name]; ok {
				t.Stop()
			}
			timers[name] = time.AfterFunc(w.delay, func() {
				w.log.Debug().Str("file", name).Msg("Config file changed")
				w.onChange(name)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("Watcher error")
		}
	}
}
