// Package photo stores member photos and tracks their versions for cache-busted URLs.
package photo

import (
	"bytes"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/pgri-okutimur/anggota/core"
)

const (
	MaxSize  = 2 << 20 // 2 MiB
	photoDir = "photos"
)

var (
	ErrTooLarge        = errors.New("photo must not be larger than 2 MiB")
	ErrUnsupportedType = errors.New("photo must be a JPEG or PNG image")

	extensions = map[string]string{
		"image/jpeg": ".jpg",
		"image/png":  ".png",
	}
)

// Store persists photo files. Paths are relative to the store root.
type Store interface {
	Save(r io.Reader) (string, error)
	Delete(p string) error
	URL(p string) string
}

type fileStore struct {
	root    string
	baseURL string
}

var _ Store = (*fileStore)(nil)

// NewFileStore returns a Store writing under conf.MediaDir and serving from conf.MediaBaseURL.
func NewFileStore(conf *core.Config) Store {
	return &fileStore{root: conf.MediaDir, baseURL: strings.TrimSuffix(conf.MediaBaseURL, "/")}
}

// Save writes the photo read from r under a random name. Only JPEG and PNG up to MaxSize are accepted.
func (fs *fileStore) Save(r io.Reader) (string, error) {
	content, err := io.ReadAll(io.LimitReader(r, MaxSize+1))
	if err != nil {
		return "", errors.Wrap(err, "reading photo")
	}
	if len(content) > MaxSize {
		return "", core.NewValidationError(ErrTooLarge, core.FieldError{Field: "photo", Error: ErrTooLarge.Error()})
	}
	ext, ok := extensions[http.DetectContentType(content)]
	if !ok {
		return "", core.NewValidationError(ErrUnsupportedType, core.FieldError{Field: "photo", Error: ErrUnsupportedType.Error()})
	}

	dir := filepath.Join(fs.root, photoDir)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "creating photo directory")
	}
	name := uuid.New().String() + ext
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", errors.Wrap(err, "creating photo file")
	}
	defer f.Close()
	if _, err = io.Copy(f, bytes.NewReader(content)); err != nil {
		return "", errors.Wrap(err, "writing photo file")
	}
	return path.Join(photoDir, name), nil
}

func (fs *fileStore) Delete(p string) error {
	if p == "" {
		return nil
	}
	err := os.Remove(filepath.Join(fs.root, filepath.FromSlash(p)))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "deleting photo file")
	}
	return nil
}

func (fs *fileStore) URL(p string) string {
	if p == "" {
		return ""
	}
	return fs.baseURL + "/" + p
}

// VersionCache keeps the current photo version of each member. A version changes only when a
// new photo is stored, so URLs built from it stay cacheable until the next upload.
type VersionCache struct {
	c *cache.Cache
}

func NewVersionCache() *VersionCache {
	return &VersionCache{c: cache.New(cache.NoExpiration, 0)}
}

func versionKey(memberID int) string { return "photo:" + strconv.Itoa(memberID) }

// Version returns the member's photo version, seeding it from since when unknown.
func (vc *VersionCache) Version(memberID int, since time.Time) int64 {
	if v, ok := vc.c.Get(versionKey(memberID)); ok {
		return v.(int64)
	}
	v := since.Unix()
	vc.c.SetDefault(versionKey(memberID), v)
	return v
}

// Bump invalidates the member's photo URL.
func (vc *VersionCache) Bump(memberID int) int64 {
	v := time.Now().UnixNano()
	if cur, ok := vc.c.Get(versionKey(memberID)); ok && cur.(int64) >= v {
		v = cur.(int64) + 1
	}
	vc.c.SetDefault(versionKey(memberID), v)
	return v
}

func (vc *VersionCache) Forget(memberID int) {
	vc.c.Delete(versionKey(memberID))
}

// VersionedURL appends the version to url.
func VersionedURL(url string, version int64) string {
	if url == "" {
		return ""
	}
	return url + "?v=" + strconv.FormatInt(version, 10)
}
