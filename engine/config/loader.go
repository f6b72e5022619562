package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"
)

// Load reads a TOML configuration file. Keys that are absent keep their defaults;
// unknown keys and unknown enum names are errors.
//
// Parameters:
//   - path: the file to read
//
// Returns:
//   - RenderConfiguration: the decoded configuration, not yet validated
//   - error: an error if the file cannot be read or decoded
func Load(path string) (RenderConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RenderConfiguration{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Decode(data)
}

// Decode parses TOML configuration text on top of Default().
func Decode(data []byte) (RenderConfiguration, error) {
	c := Default()
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return RenderConfiguration{}, fmt.Errorf("config: %w", err)
	}
	return c, nil
}

// Encode renders a configuration as TOML, enums spelled by name.
func Encode(c RenderConfiguration) ([]byte, error) {
	return toml.Marshal(c)
}

// Watcher reloads a configuration file whenever it changes and queues the keys it sets
// as a Patch on a Pending. Keys the file does not mention keep their live values. Decode
// errors are logged and the previous configuration stays active.
type Watcher struct {
	path    string
	pending *Pending
	fs      *fsnotify.Watcher

	done chan struct{}
	wg   sync.WaitGroup
}

// Watch starts watching path. The parent directory is watched so editors that
// replace the file on save are still observed.
//
// Parameters:
//   - path: the configuration file to watch
//   - pending: the queue reloaded configurations are pushed to
//
// Returns:
//   - *Watcher: the running watcher, stop it with Close
//   - error: an error if the watch could not be established
func Watch(path string, pending *Pending) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolving %s: %w", path, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: creating watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("config: watching %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		path:    abs,
		pending: pending,
		fs:      fsw,
		done:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			data, err := os.ReadFile(w.path)
			if err != nil {
				logger.Errorf("ignoring reload of %s: %v", w.path, err)
				continue
			}
			patch, err := DecodePatch(data)
			if err != nil {
				logger.Errorf("ignoring reload of %s: %v", w.path, err)
				continue
			}
			logger.Noticef("reloaded %s", w.path)
			w.pending.Enqueue(patch.Mutation())
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			logger.Warningf("watcher error: %v", err)
		}
	}
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.fs.Close()
	w.wg.Wait()
	return err
}
