// Package config backs the plugin.ConfigReader contract with koanf: a YAML
// file as the base layer, environment variables (P1STREAM_ prefixed) as
// overrides, and an fsnotify watch that drives live reload so a running
// pipeline can pick up edits without a process restart (only the affected
// objects restart, via FlagNeedsRestart — see §8 scenario 4).
package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/knadh/koanf/parsers/yaml"
	envprovider "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/p1stream/p1stream-go/internal/logger"
)

const envPrefix = "P1STREAM_"

// Reader implements plugin.ConfigReader over a koanf instance. The zero
// value is not usable; construct with NewReader.
type Reader struct {
	mu   sync.RWMutex
	k    *koanf.Koanf
	path string

	watcher  *fsnotify.Watcher
	onChange []func()
}

// NewReader loads path (a YAML file) plus P1STREAM_-prefixed environment
// overrides.
func NewReader(path string) (*Reader, error) {
	r := &Reader{path: path}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reader) reload() error {
	k := koanf.New(".")
	if err := k.Load(file.Provider(r.path), yaml.Parser()); err != nil {
		return fmt.Errorf("load config file %s: %w", r.path, err)
	}
	envSource := envprovider.Provider(".", envprovider.Opt{
		Prefix: envPrefix,
		TransformFunc: func(k, v string) (string, any) {
			k = strings.TrimPrefix(k, envPrefix)
			k = strings.ReplaceAll(strings.ToLower(k), "_", "-")
			return k, v
		},
	})
	if err := k.Load(envSource, nil); err != nil {
		return fmt.Errorf("load env overrides: %w", err)
	}

	r.mu.Lock()
	r.k = k
	r.mu.Unlock()
	return nil
}

// GetString implements plugin.ConfigReader.
func (r *Reader) GetString(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.k.Exists(key) {
		return "", false
	}
	return r.k.String(key), true
}

// GetInt implements plugin.ConfigReader.
func (r *Reader) GetInt(key string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.k.Exists(key) {
		return 0, false
	}
	return r.k.Int(key), true
}

// GetUint32 implements plugin.ConfigReader.
func (r *Reader) GetUint32(key string) (uint32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.k.Exists(key) {
		return 0, false
	}
	v := r.k.Int64(key)
	if v < 0 {
		return 0, false
	}
	return uint32(v), true
}

// GetFloat implements plugin.ConfigReader.
func (r *Reader) GetFloat(key string) (float32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.k.Exists(key) {
		return 0, false
	}
	return float32(r.k.Float64(key)), true
}

// GetBool implements plugin.ConfigReader.
func (r *Reader) GetBool(key string) (bool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.k.Exists(key) {
		return false, false
	}
	return r.k.Bool(key), true
}

// Strings returns a YAML sequence value as a string slice. It is not part
// of plugin.ConfigReader (no plugin config needs a list today) but the CLI
// entrypoint uses it for the relay destination list and hook assignments.
func (r *Reader) Strings(key string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.k.Exists(key) {
		return nil
	}
	return r.k.Strings(key)
}

// EachString implements plugin.ConfigReader.
func (r *Reader) EachString(prefix string, iter func(key, val string) bool) {
	r.mu.RLock()
	all := r.k.All()
	r.mu.RUnlock()
	for key, val := range all {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		s, ok := val.(string)
		if !ok {
			continue
		}
		if !iter(key, s) {
			return
		}
	}
}

// OnChange registers fn to run after every successful reload triggered by
// the filesystem watch. Order is not guaranteed across registrations.
func (r *Reader) OnChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = append(r.onChange, fn)
}

// Watch starts an fsnotify watch on the config file's directory (watching
// the directory, not the file, survives editors that replace the file via
// rename-on-save) and reloads on every write/create event that targets the
// file, invoking registered OnChange callbacks afterward. It runs until ctx
// is cancelled.
func (r *Reader) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(r.path)); err != nil {
		w.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}
	r.watcher = w
	go r.watchLoop(ctx)
	return nil
}

func (r *Reader) watchLoop(ctx context.Context) {
	defer r.watcher.Close()
	target := filepath.Clean(r.path)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := r.reload(); err != nil {
				logger.Error("config reload failed", "path", r.path, "error", err)
				continue
			}
			r.mu.RLock()
			callbacks := append([]func(){}, r.onChange...)
			r.mu.RUnlock()
			for _, cb := range callbacks {
				cb()
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			logger.Error("config watcher error", "path", r.path, "error", err)
		}
	}
}
