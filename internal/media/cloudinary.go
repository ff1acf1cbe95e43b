package media

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// CloudinaryStorage stores images as Cloudinary assets. The public id is the key without its extension.
type CloudinaryStorage struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewCloudinaryStorage(url, folder string) (*CloudinaryStorage, error) {
	cld, err := cloudinary.NewFromURL(url)
	if err != nil {
		return nil, fmt.Errorf("cloudinary configuration error: %w", err)
	}
	return &CloudinaryStorage{cld: cld, folder: strings.Trim(folder, "/")}, nil
}

func (s *CloudinaryStorage) publicID(key string) string {
	id := strings.TrimSuffix(key, path.Ext(key))
	if s.folder == "" {
		return id
	}
	return s.folder + "/" + id
}

func (s *CloudinaryStorage) Put(ctx context.Context, key string, data []byte, _ string) error {
	_, err := s.cld.Upload.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		PublicID: s.publicID(key),
	})
	if err != nil {
		return fmt.Errorf("cloudinary upload: %w", err)
	}
	return nil
}

func (s *CloudinaryStorage) Delete(ctx context.Context, key string) error {
	_, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: s.publicID(key)})
	if err != nil {
		return fmt.Errorf("cloudinary destroy: %w", err)
	}
	return nil
}

func (s *CloudinaryStorage) URL(key string) string {
	img, err := s.cld.Image(s.publicID(key))
	if err != nil {
		return ""
	}
	u, err := img.String()
	if err != nil {
		return ""
	}
	return u
}
