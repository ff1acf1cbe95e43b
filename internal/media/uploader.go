package media

import (
	"context"
	"io"

	"github.com/anonto42/questlog/backend/internal/models"
	"github.com/anonto42/questlog/backend/pkg/metrics"
	"github.com/rs/zerolog/log"
)

// Uploader runs the image pipeline: validate the extension, pick a random
// name, scale into the target box, persist, and drop the replaced file.
type Uploader struct {
	storage    Storage
	webp       bool
	defaultURL string
}

type UploaderOption func(*Uploader)

// WithWebPSidecar also stores a .webp rendition next to every image.
func WithWebPSidecar(enabled bool) UploaderOption {
	return func(u *Uploader) { u.webp = enabled }
}

// WithDefaultURL sets the URL returned for the default profile picture.
func WithDefaultURL(url string) UploaderOption {
	return func(u *Uploader) { u.defaultURL = url }
}

func NewUploader(storage Storage, opts ...UploaderOption) *Uploader {
	u := &Uploader{storage: storage, defaultURL: "/static/" + models.DefaultProfilePic}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Save stores the image read from r and returns its key ("folder/name.ext").
func (u *Uploader) Save(ctx context.Context, target Target, filename string, r io.Reader) (key string, err error) {
	defer func() {
		metrics.ImagesProcessed.WithLabelValues(target.Folder, metrics.Outcome(err)).Inc()
	}()

	ext, err := Extension(filename)
	if err != nil {
		return "", err
	}
	name, err := RandomName(ext)
	if err != nil {
		return "", err
	}
	img, err := Decode(r)
	if err != nil {
		return "", err
	}
	img = Fit(img, target.Box)

	data, err := Encode(img, ext)
	if err != nil {
		return "", err
	}

	key = target.Folder + "/" + name
	if err := u.storage.Put(ctx, key, data, contentType(ext)); err != nil {
		return "", err
	}

	if u.webp {
		if side, err := EncodeWebP(img, 80); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("webp sidecar encoding failed")
		} else if err := u.storage.Put(ctx, SidecarKey(key), side, contentType("webp")); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("webp sidecar write failed")
		}
	}
	return key, nil
}

// Replace saves the new image and hands its key to commit, which records it.
// previous is deleted only after commit succeeds; when commit fails the new
// file is removed and previous is left in place. The default profile picture
// is never deleted.
func (u *Uploader) Replace(ctx context.Context, target Target, filename string, r io.Reader, previous string, commit func(key string) error) (string, error) {
	key, err := u.Save(ctx, target, filename, r)
	if err != nil {
		return "", err
	}
	if err := commit(key); err != nil {
		u.Delete(ctx, key)
		return "", err
	}
	u.Delete(ctx, previous)
	return key, nil
}

// Delete removes key and its sidecar, logging failures.
func (u *Uploader) Delete(ctx context.Context, key string) {
	if key == "" || key == models.DefaultProfilePic {
		return
	}
	if err := u.storage.Delete(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to delete replaced image")
	}
	if u.webp {
		if err := u.storage.Delete(ctx, SidecarKey(key)); err != nil {
			log.Warn().Err(err).Str("key", SidecarKey(key)).Msg("failed to delete replaced webp sidecar")
		}
	}
}

// URL resolves a stored key for clients. Empty keys resolve to "".
func (u *Uploader) URL(key string) string {
	switch key {
	case "":
		return ""
	case models.DefaultProfilePic:
		return u.defaultURL
	}
	return u.storage.URL(key)
}
