package blog

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	imageDir     = "post_images"
	maxImageSize = 5 << 20
)

var ErrInvalidImage = errors.New("not a supported image")

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// saveImage stores the "image" upload of r under mediaDir and returns its path
// relative to mediaDir, or "" when nothing was uploaded.
func saveImage(r *http.Request, mediaDir string) (string, error) {
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer file.Close()
	// Browsers send an empty part for an untouched file input.
	if header.Filename == "" && header.Size == 0 {
		return "", nil
	}
	if header.Size > maxImageSize {
		return "", ErrInvalidImage
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if n == 0 || (err != nil && !errors.Is(err, io.ErrUnexpectedEOF)) {
		return "", ErrInvalidImage
	}
	ext, ok := imageExtensions[http.DetectContentType(head[:n])]
	if !ok {
		return "", ErrInvalidImage
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	dir := filepath.Join(mediaDir, imageDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create media directory: %w", err)
	}
	name := uuid.NewString() + ext
	path := filepath.Join(dir, name)
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create image file: %w", err)
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write image file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write image file: %w", err)
	}
	return imageDir + "/" + name, nil
}

// mediaFiles serves uploaded files from dir. Directory listings are hidden.
func (h *Handlers) mediaFiles(dir string) http.Handler {
	files := http.StripPrefix("/media/", http.FileServer(http.Dir(dir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			h.pageNotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}
