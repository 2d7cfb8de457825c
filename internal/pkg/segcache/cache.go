package segcache

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
)

const fileExt = ".seg"

// Cache is a durable local fallback store for segments
// that could not be delivered after retry exhaustion.
// One file per (recording, index) key, writes are idempotent upserts
type Cache struct {
	dir string
}

// Entry is one cached segment
type Entry struct {
	RecordingID string
	Index       int
	Payload     []byte
	Created     time.Time
}

// NewCache creates cache dir if missing
func NewCache(dir string) (*Cache, error) {
	if dir == "" {
		return nil, fmt.Errorf("no cache dir")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("can't init cache dir: %w", err)
	}
	return &Cache{dir: dir}, nil
}

// Put upserts a segment payload by key
func (c *Cache) Put(recordingID string, index int, payload []byte) error {
	fn := c.fileName(recordingID, index)
	f, err := os.OpenFile(fn, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("can't cache segment: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(payload); err != nil {
		return fmt.Errorf("can't cache segment: %w", err)
	}
	goapp.Log.Info().Str("ID", recordingID).Int("index", index).Msg("segment cached")
	return nil
}

// Remove deletes the entry, missing key is not an error
func (c *Cache) Remove(recordingID string, index int) error {
	err := os.Remove(c.fileName(recordingID, index))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("can't remove cached segment: %w", err)
	}
	return nil
}

// List loads all cached segments
func (c *Cache) List() ([]Entry, error) {
	files, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("can't read cache dir: %w", err)
	}
	res := []Entry{}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), fileExt) {
			continue
		}
		id, index, err := parseKey(strings.TrimSuffix(f.Name(), fileExt))
		if err != nil {
			goapp.Log.Warn().Str("file", f.Name()).Msg("skip unknown cache file")
			continue
		}
		data, err := os.ReadFile(filepath.Join(c.dir, f.Name()))
		if err != nil {
			return nil, fmt.Errorf("can't read cached segment: %w", err)
		}
		e := Entry{RecordingID: id, Index: index, Payload: data}
		if fi, err := f.Info(); err == nil {
			e.Created = fi.ModTime()
		}
		res = append(res, e)
	}
	return res, nil
}

func (c *Cache) fileName(recordingID string, index int) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s-%d%s", recordingID, index, fileExt))
}

func parseKey(name string) (string, int, error) {
	i := strings.LastIndexByte(name, '-')
	if i <= 0 {
		return "", 0, fmt.Errorf("wrong cache key '%s'", name)
	}
	index, err := strconv.Atoi(name[i+1:])
	if err != nil || index < 0 {
		return "", 0, fmt.Errorf("wrong cache key '%s'", name)
	}
	return name[:i], index, nil
}
