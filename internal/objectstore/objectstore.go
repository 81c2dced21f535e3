// Package objectstore abstracts the image blob store. A configured store is
// S3 (or any S3-compatible endpoint); an unconfigured one is the Disabled
// null object, which the HTTP layer surfaces as 503 rather than a crash.
package objectstore

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Upload constraints.
const (
	MaxUploadSize = 5 << 20 // 5 MiB
	imagePrefix   = "image/"
)

var (
	// ErrDisabled is returned by every operation when no store is configured.
	ErrDisabled = errors.New("object storage is not enabled or configured")
	// ErrEmptyFile rejects zero-length uploads.
	ErrEmptyFile = errors.New("file is empty")
	// ErrNotImage rejects uploads whose content type is not image/*.
	ErrNotImage = errors.New("only image files are allowed")
)

// Upload describes one incoming file.
type Upload struct {
	Data        []byte
	ContentType string
	// Filename is the client-supplied name; only its extension survives into
	// the stored key.
	Filename string
	// Folder is the key prefix, e.g. "products".
	Folder string
}

// Store defines the consumed object-storage interface.
type Store interface {
	// Enabled reports whether a real backend is configured. Callers check it
	// before use and treat false as a recoverable, user-visible condition.
	Enabled() bool
	// Put stores the upload under a server-generated collision-free key and
	// returns the object's public URL.
	Put(ctx context.Context, up Upload) (string, error)
	// Get returns the raw bytes of the object at key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes the object identified by its public URL. Best-effort:
	// unrecognized URLs are ignored.
	Delete(ctx context.Context, url string) error
	// Presign returns a temporary credential-free GET URL for key.
	Presign(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// Disabled is the null-object Store used when object storage is not
// configured.
type Disabled struct{}

var _ Store = Disabled{}

func (Disabled) Enabled() bool { return false }

func (Disabled) Put(context.Context, Upload) (string, error) { return "", ErrDisabled }

func (Disabled) Get(context.Context, string) ([]byte, error) { return nil, ErrDisabled }

func (Disabled) Delete(context.Context, string) error { return ErrDisabled }

func (Disabled) Presign(context.Context, string, time.Duration) (string, error) {
	return "", ErrDisabled
}
