package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// AudioArtifact is a synthesized reply on local disk. It is never modified
// after it is written.
type AudioArtifact struct {
	Path      string    `json:"-"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
}

// ArtifactStore writes audio artifacts and deletes them once the retention
// period has passed.
type ArtifactStore struct {
	dir    string
	cache  *cache.Cache
	logger *zap.Logger
}

// NewArtifactStore keeps artifacts under dir for retention. A retention of
// zero keeps them forever.
func NewArtifactStore(dir string, retention time.Duration, logger *zap.Logger) (*ArtifactStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audio dir: %w", err)
	}

	expiration, cleanup := cache.NoExpiration, time.Duration(0)
	if retention > 0 {
		expiration = retention
		cleanup = retention / 4
		if cleanup < time.Second {
			cleanup = time.Second
		}
	}
	c := cache.New(expiration, cleanup)

	a := &ArtifactStore{dir: dir, cache: c, logger: logger}
	c.OnEvicted(func(name string, value interface{}) {
		artifact, ok := value.(*AudioArtifact)
		if !ok {
			return
		}
		if err := os.Remove(artifact.Path); err != nil && !os.IsNotExist(err) {
			a.logger.Warn("failed to remove expired audio artifact", zap.String("filename", name), zap.Error(err))
			return
		}
		a.logger.Debug("audio artifact expired", zap.String("filename", name))
	})
	if err := a.restore(retention); err != nil {
		return nil, err
	}
	return a, nil
}

// restore registers artifacts left in dir by an earlier process with the
// time they have left, and removes those already past retention along with
// unfinished temp files.
func (a *ArtifactStore) restore(retention time.Duration) error {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return fmt.Errorf("failed to scan audio dir: %w", err)
	}

	now := time.Now()
	restored, expired := 0, 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(a.dir, name)
		if strings.HasPrefix(name, ".tmp-") {
			os.Remove(path)
			continue
		}
		if !strings.HasPrefix(name, "response_") || filepath.Ext(name) != ".mp3" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}

		ttl := cache.NoExpiration
		if retention > 0 {
			ttl = retention - now.Sub(info.ModTime())
			if ttl <= 0 {
				if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
					a.logger.Warn("failed to remove expired audio artifact", zap.String("filename", name), zap.Error(err))
				}
				expired++
				continue
			}
		}
		a.cache.Set(name, &AudioArtifact{Path: path, Filename: name, CreatedAt: info.ModTime()}, ttl)
		restored++
	}
	if restored > 0 || expired > 0 {
		a.logger.Info("audio artifacts restored", zap.Int("restored", restored), zap.Int("expired", expired))
	}
	return nil
}

// Write stores data under a unique name. The file appears atomically.
func (a *ArtifactStore) Write(data []byte) (*AudioArtifact, error) {
	now := time.Now()
	name := fmt.Sprintf("response_%d_%s.mp3", now.UnixNano(), uuid.NewString()[:8])
	path := filepath.Join(a.dir, name)

	tmp, err := os.CreateTemp(a.dir, ".tmp-"+name+"-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp audio file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to write audio file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to close audio file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to publish audio file: %w", err)
	}

	artifact := &AudioArtifact{Path: path, Filename: name, CreatedAt: now}
	a.cache.Set(name, artifact, cache.DefaultExpiration)
	return artifact, nil
}

// Open resolves a plain file name to an artifact. Names with path elements
// are rejected. Files written before a restart are still served until they
// are removed from disk.
func (a *ArtifactStore) Open(name string) (*os.File, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("%w: %q", ErrArtifactNotFound, name)
	}

	path := filepath.Join(a.dir, name)
	if v, ok := a.cache.Get(name); ok {
		path = v.(*AudioArtifact).Path
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %q", ErrArtifactNotFound, name)
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%w: %q", ErrArtifactNotFound, name)
	}
	return f, nil
}

// Remove deletes an artifact now.
func (a *ArtifactStore) Remove(name string) {
	if _, ok := a.cache.Get(name); ok {
		a.cache.Delete(name)
		return
	}
	os.Remove(filepath.Join(a.dir, name))
}
