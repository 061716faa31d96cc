package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/starford/lookout/internal/apperr"
	"github.com/starford/lookout/internal/storage"
)

// Photo is a stored photo ready to be attached to a form.
type Photo struct {
	Name     string `json:"name"`
	URI      string `json:"photo_uri"`
	Size     int    `json:"size"`
	Checksum string `json:"checksum,omitempty"`
}

// AddPhoto stores an uploaded photo. An existing photo with the same name
// is kept and the new one gets a unique prefix.
func (s *Service) AddPhoto(_ context.Context, name string, data []byte) (Photo, error) {
	if s.photos == nil {
		return Photo{}, fmt.Errorf("service: photo storage: %w", apperr.ErrUnsupported)
	}
	name = storage.SanitizeName(name, storage.ExtForMIME(http.DetectContentType(data)))
	if err := storage.CheckImage(name, data); err != nil {
		return Photo{}, apperr.NewValidationError("file", err.Error())
	}
	if _, err := s.photos.Read(name); err == nil {
		name = uuid.NewString()[:8] + "-" + name
	}
	if err := s.photos.Write(name, data); err != nil {
		return Photo{}, fmt.Errorf("service: store photo: %w", err)
	}
	abs, err := s.photos.Path(name)
	if err != nil {
		return Photo{}, fmt.Errorf("service: store photo: %w", err)
	}
	return Photo{Name: name, URI: fileURI(abs), Size: len(data), Checksum: storage.Digest(data)}, nil
}

// ListPhotos returns the stored photos, newest first.
func (s *Service) ListPhotos(_ context.Context) ([]Photo, error) {
	if s.photos == nil {
		return nil, fmt.Errorf("service: photo storage: %w", apperr.ErrUnsupported)
	}
	metas, err := s.photos.List()
	if err != nil {
		return nil, fmt.Errorf("service: list photos: %w", err)
	}
	out := make([]Photo, 0, len(metas))
	for _, m := range metas {
		abs, err := s.photos.Path(m.Name)
		if err != nil {
			continue
		}
		out = append(out, Photo{Name: m.Name, URI: fileURI(abs), Size: int(m.Size), Checksum: m.Checksum})
	}
	return out, nil
}

// DeletePhoto removes a stored photo.
func (s *Service) DeletePhoto(_ context.Context, name string) error {
	if s.photos == nil {
		return fmt.Errorf("service: photo storage: %w", apperr.ErrUnsupported)
	}
	if err := s.photos.Delete(name); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return apperr.NewValidationError("name", err.Error())
	}
	return nil
}

func fileURI(abs string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}
