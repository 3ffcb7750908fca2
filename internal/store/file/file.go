// Package file implements store.KV as one file per key inside a directory.
// Writes are atomic and durable so a crash never leaves a half-written snapshot.
package file

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"worktrack/internal/store"

	"github.com/google/renameio/v2"
)

const fileSuffix = ".kv"

// KV stores each key in <dir>/<escaped key>.kv.
type KV struct {
	dir string
	mu  sync.RWMutex
}

// New creates the directory if needed.
func New(dir string) (*KV, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir %s: %w", dir, err)
	}
	return &KV{dir: dir}, nil
}

func (k *KV) path(key string) string {
	return filepath.Join(k.dir, url.PathEscape(key)+fileSuffix)
}

func (k *KV) Get(ctx context.Context, key string) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	data, err := os.ReadFile(k.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (k *KV) Set(ctx context.Context, key string, value []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	pendingFile, err := renameio.NewPendingFile(k.path(key), renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("create pending file for %s: %w", key, err)
	}
	defer pendingFile.Cleanup()

	if _, err := pendingFile.Write(value); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace %s: %w", key, err)
	}
	return nil
}

func (k *KV) Remove(ctx context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := os.Remove(k.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func (k *KV) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	entries, err := os.ReadDir(k.dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", k.dir, err)
	}

	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(name, fileSuffix))
		if err != nil {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Ping verifies the directory is still reachable.
func (k *KV) Ping(ctx context.Context) error {
	_, err := os.Stat(k.dir)
	return err
}
