package browser

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
}

// IsImageFile reports whether name has a recognised image extension.
func IsImageFile(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// NewestImage returns the most recently modified image file directly inside
// dir. ok is false when the directory holds no images.
func NewestImage(dir string) (path string, ok bool, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false, err
	}

	var newest time.Time
	for _, e := range entries {
		if e.IsDir() || !IsImageFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // removed between ReadDir and Info
		}
		if !ok || info.ModTime().After(newest) {
			newest = info.ModTime()
			path = filepath.Join(dir, e.Name())
			ok = true
		}
	}
	return path, ok, nil
}
