package storage

import (
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// MaxPhotoBytes bounds a single stored photo.
const MaxPhotoBytes = 20 << 20

var (
	imageTypes = map[string]string{
		".png":  "image/png",
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".gif":  "image/gif",
		".webp": "image/webp",
	}

	mimeToExt = map[string]string{
		"image/png":  ".png",
		"image/jpeg": ".jpg",
		"image/gif":  ".gif",
		"image/webp": ".webp",
	}

	safeNameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

// IsImage reports whether name has a supported image extension.
func IsImage(name string) bool {
	_, ok := imageTypes[strings.ToLower(filepath.Ext(name))]
	return ok
}

// ExtForMIME returns the file extension for an image media type, or "".
func ExtForMIME(mime string) string {
	return mimeToExt[strings.TrimSpace(strings.Split(mime, ";")[0])]
}

// SanitizeName strips path separators and unsafe characters. An empty name
// is replaced by a random one with fallbackExt.
func SanitizeName(name, fallbackExt string) string {
	name = filepath.Base(name)
	name = safeNameRe.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == "_" || strings.HasPrefix(name, ".") {
		if fallbackExt == "" {
			fallbackExt = ".jpg"
		}
		name = uuid.NewString() + fallbackExt
	}
	return name
}

// CheckImage verifies that data is an image matching the extension of name.
func CheckImage(name string, data []byte) error {
	ext := strings.ToLower(filepath.Ext(name))
	if !IsImage(name) {
		return fmt.Errorf("unsupported file extension: %q (allowed: png, jpg, jpeg, gif, webp)", ext)
	}
	if len(data) > MaxPhotoBytes {
		return fmt.Errorf("file too large: %d bytes (max %d)", len(data), MaxPhotoBytes)
	}
	detected := http.DetectContentType(data)
	got := ExtForMIME(detected)
	switch ext {
	case ".jpg", ".jpeg":
		if got != ".jpg" {
			return fmt.Errorf("content does not match extension %s (detected: %s)", ext, detected)
		}
	default:
		if got != ext {
			return fmt.Errorf("content does not match extension %s (detected: %s)", ext, detected)
		}
	}
	return nil
}
