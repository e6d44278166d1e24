package resume

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/extua/itchy-crawler/internal/metrics"
)

// DefaultKey is the blob key the cursor is stored under.
const DefaultKey = "state"

// ErrCursorRegression is returned by Save when the new cursor is lower than
// the last one loaded or saved.
var ErrCursorRegression = errors.New("resume: cursor cannot move backwards")

// ErrInvalidCursor is returned by Load when the stored value is not a
// non-negative integer.
var ErrInvalidCursor = errors.New("resume: invalid cursor")

// Tracker loads and saves the progress cursor. It is not safe for concurrent
// use.
type Tracker struct {
	bucket *blob.Bucket
	key    string
	last   int
}

// NewTracker creates a Tracker storing the cursor under key in bucket.
func NewTracker(bucket *blob.Bucket, key string) *Tracker {
	if key == "" {
		key = DefaultKey
	}
	return &Tracker{bucket: bucket, key: key}
}

// Key returns the blob key holding the cursor.
func (t *Tracker) Key() string {
	return t.key
}

// Load reads the persisted cursor. A missing key loads as 0.
func (t *Tracker) Load(ctx context.Context) (int, error) {
	data, err := t.bucket.ReadAll(ctx, t.key)
	if err != nil {
		if isNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("resume: read %s: %w", t.key, err)
	}

	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q in %s", ErrInvalidCursor, raw, t.key)
	}

	if n > t.last {
		t.last = n
	}
	return n, nil
}

// Save persists n as the new cursor.
func (t *Tracker) Save(ctx context.Context, n int) error {
	if n < 0 || n < t.last {
		return fmt.Errorf("%w: %d < %d", ErrCursorRegression, n, t.last)
	}
	if err := t.bucket.WriteAll(ctx, t.key, []byte(strconv.Itoa(n)), &blob.WriterOptions{
		ContentType: "text/plain",
	}); err != nil {
		return fmt.Errorf("resume: write %s: %w", t.key, err)
	}
	t.last = n
	metrics.Cursor.Set(float64(n))
	return nil
}

// Reset deletes the persisted cursor so the next run starts from line 0.
func (t *Tracker) Reset(ctx context.Context) error {
	if err := t.bucket.Delete(ctx, t.key); err != nil && !isNotExist(err) {
		return fmt.Errorf("resume: delete %s: %w", t.key, err)
	}
	t.last = 0
	metrics.Cursor.Set(0)
	return nil
}

// Set overwrites the cursor with n, including moving it backwards.
func (t *Tracker) Set(ctx context.Context, n int) error {
	if n < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCursor, n)
	}
	t.last = 0
	return t.Save(ctx, n)
}

func isNotExist(err error) bool {
	return gcerrors.Code(err) == gcerrors.NotFound
}
