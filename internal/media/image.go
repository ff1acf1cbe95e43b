// Package media validates, resizes and stores uploaded images.
package media

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
)

var (
	ErrFileTypeNotAllowed = errors.New("file type not allowed")
	ErrInvalidImage       = errors.New("invalid image")
)

// Box is the bounding box an uploaded image is scaled down into.
type Box struct {
	Width  int
	Height int
}

// Target names a destination folder and its bounding box.
type Target struct {
	Folder string
	Box    Box
}

var (
	ProfilePics = Target{Folder: "profile_pics", Box: Box{256, 256}}
	PostPics    = Target{Folder: "post_pics", Box: Box{400, 400}}
	QuestPics   = Target{Folder: "quest_pics", Box: Box{400, 400}}
)

var allowedExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"gif":  true,
}

// Extension returns the lowercased extension of filename without the dot,
// or ErrFileTypeNotAllowed.
func Extension(filename string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if !allowedExtensions[ext] {
		return "", ErrFileTypeNotAllowed
	}
	return ext, nil
}

// RandomName is 8 random bytes in hex plus the extension.
func RandomName(ext string) (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b) + "." + ext, nil
}

// MaxPixels caps the decoded size of an upload. The byte limit alone does not
// bound memory since a small file can declare huge dimensions.
const MaxPixels = 40_000_000

// Decode reads any registered image format. The header is checked against
// MaxPixels before any pixel data is decoded.
func Decode(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalidImage, cfg.Width, cfg.Height, MaxPixels)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return img, nil
}

// Fit scales src down to fit within box, preserving aspect ratio. Smaller images are returned unchanged.
func Fit(src image.Image, box Box) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 || (w <= box.Width && h <= box.Height) {
		return src
	}

	scale := float64(box.Width) / float64(w)
	if s := float64(box.Height) / float64(h); s < scale {
		scale = s
	}
	newW := max(int(math.Round(float64(w)*scale)), 1)
	newH := max(int(math.Round(float64(h)*scale)), 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

// Encode writes img in the format implied by ext.
func Encode(img image.Image, ext string) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	var err error
	switch ext {
	case "jpg", "jpeg":
		err = jpeg.Encode(buf, img, &jpeg.Options{Quality: 90})
	case "png":
		err = png.Encode(buf, img)
	case "gif":
		err = gif.Encode(buf, img, nil)
	default:
		return nil, ErrFileTypeNotAllowed
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func EncodeWebP(img image.Image, quality float32) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := webp.Encode(buf, img, &webp.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func contentType(ext string) string {
	switch ext {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	}
	return "application/octet-stream"
}

// SidecarKey is the WebP companion of a stored key.
func SidecarKey(key string) string {
	return strings.TrimSuffix(key, filepath.Ext(key)) + ".webp"
}
