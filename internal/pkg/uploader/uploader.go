package uploader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/cenkalti/backoff/v4"
	"github.com/meowmeet/recpipe/internal/pkg/segcache"
	"go.uber.org/multierr"
)

// ErrRetryExhausted indicates the segment was not delivered and got cached locally
var ErrRetryExhausted = fmt.Errorf("upload retries exhausted")

// FileSaver saves a segment payload into remote storage
type FileSaver interface {
	SaveFile(ctx context.Context, name string, r io.Reader, fileSize int64) error
}

// Cache keeps undelivered segments on disk
type Cache interface {
	Put(recordingID string, index int, payload []byte) error
	Remove(recordingID string, index int) error
	List() ([]segcache.Entry, error)
}

// Data is uploader configuration
type Data struct {
	SessionID string
	Saver     FileSaver
	Cache     Cache
}

// Uploader delivers segments to storage, retrying transient failures.
// When retries run out the payload lands in the local cache for a later flush
type Uploader struct {
	sessionID string
	saver     FileSaver
	cache     Cache
	backoff   func() backoff.BackOff
}

// NewUploader creates uploader instance
func NewUploader(data *Data) (*Uploader, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	return &Uploader{sessionID: data.SessionID, saver: data.Saver, cache: data.Cache,
		backoff: newSimpleBackoff}, nil
}

func validate(data *Data) error {
	if data == nil {
		return fmt.Errorf("no data")
	}
	if data.SessionID == "" {
		return fmt.Errorf("no session ID")
	}
	if data.Saver == nil {
		return fmt.Errorf("no file saver")
	}
	if data.Cache == nil {
		return fmt.Errorf("no cache")
	}
	return nil
}

// Upload saves one segment, returns the storage path.
// On retry exhaustion the payload is cached and ErrRetryExhausted returned
func (u *Uploader) Upload(ctx context.Context, recordingID string, index int, payload []byte, mime string) (string, error) {
	path := StoragePath(u.sessionID, recordingID, index, mime)
	if err := u.trySave(ctx, path, payload); err != nil {
		goapp.Log.Error().Err(err).Str("ID", recordingID).Int("index", index).Msg("upload failed, caching")
		if cErr := u.cache.Put(recordingID, index, payload); cErr != nil {
			return "", multierr.Combine(fmt.Errorf("%w: %w", ErrRetryExhausted, err), cErr)
		}
		return "", fmt.Errorf("%w: %w", ErrRetryExhausted, err)
	}
	if err := u.cache.Remove(recordingID, index); err != nil {
		goapp.Log.Warn().Err(err).Str("ID", recordingID).Int("index", index).Msg("can't drop cache entry")
	}
	return path, nil
}

// FlushCache retries all cached segments, dropping the ones delivered.
// Returns the number delivered and the combined failures
func (u *Uploader) FlushCache(ctx context.Context, recordingID string, mime string) (int, error) {
	entries, err := u.cache.List()
	if err != nil {
		return 0, fmt.Errorf("can't list cache: %w", err)
	}
	sent, errAll := 0, error(nil)
	for _, e := range entries {
		if recordingID != "" && e.RecordingID != recordingID {
			continue
		}
		path := StoragePath(u.sessionID, e.RecordingID, e.Index, mime)
		if err := u.trySave(ctx, path, e.Payload); err != nil {
			errAll = multierr.Append(errAll, fmt.Errorf("can't flush segment %s-%d: %w", e.RecordingID, e.Index, err))
			continue
		}
		if err := u.cache.Remove(e.RecordingID, e.Index); err != nil {
			errAll = multierr.Append(errAll, err)
		}
		sent++
	}
	goapp.Log.Info().Int("sent", sent).Msg("cache flush done")
	return sent, errAll
}

func (u *Uploader) trySave(ctx context.Context, path string, payload []byte) error {
	_, err := goapp.InvokeWithBackoff(ctx, func() (interface{}, bool, error) {
		err := u.saver.SaveFile(ctx, path, bytes.NewReader(payload), int64(len(payload)))
		if err != nil {
			return nil, true, fmt.Errorf("can't save '%s': %w", path, err)
		}
		return nil, false, nil
	}, u.backoff())
	return err
}

// StoragePath builds the object name for a segment
func StoragePath(sessionID, recordingID string, index int, mime string) string {
	return fmt.Sprintf("%s/%s/segment_%d%s", sessionID, recordingID, index, extFor(mime))
}

func extFor(mime string) string {
	s := strings.ToLower(mime)
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = s[:i]
	}
	switch s {
	case "audio/l16":
		return ".pcm"
	case "audio/webm":
		return ".webm"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	}
	return ".bin"
}

func newSimpleBackoff() backoff.BackOff {
	res := backoff.NewExponentialBackOff()
	res.InitialInterval = time.Second
	return backoff.WithMaxRetries(res, 2)
}
