// Package storage is the local photo store.
package storage

import "time"

// PhotoMeta describes one stored photo.
type PhotoMeta struct {
	Name     string    `json:"name"`
	Checksum string    `json:"checksum"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
}

// Provider is the interface for photo file operations. Names are relative
// to the store root.
type Provider interface {
	// List returns metadata for every image under the root, newest first.
	List() ([]PhotoMeta, error)
	// Read returns the raw bytes of the photo.
	Read(name string) ([]byte, error)
	// Write atomically writes content to name.
	Write(name string, content []byte) error
	// Delete removes the photo.
	Delete(name string) error
	// Path resolves name to an absolute local path.
	Path(name string) (string, error)
}
