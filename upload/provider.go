/*
Package upload stores reader and admin files in object storage.

PURPOSE:
  The engine never holds file bytes. It hands a File to a Provider, keeps
  the opaque key it gets back, and asks for a time-limited URL whenever a
  record is shown.

KEYS:
  <namespace>/<uuid><ext>, e.g. reader-profiles/0b6f...c1.png

BACKENDS:
  S3:    AWS S3 or any S3-compatible endpoint (presigned GET URLs)
  Local: a directory on disk, URLs signed with HMAC and served by Handler

SEE ALSO:
  - library/readers.go: Main consumer
*/
package upload

import (
	"context"
	"errors"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Namespaces used by the engine.
const (
	NamespaceReaderProfiles  = "reader-profiles"
	NamespaceReaderDocuments = "reader-documents"
	NamespaceUserProfiles    = "user-profiles"
)

// ErrInvalidKey is returned for keys that could not have come from Store.
var ErrInvalidKey = errors.New("invalid storage key")

// File is an incoming upload.
type File struct {
	Name        string // client file name, only the extension is kept
	ContentType string
	Size        int64
	Body        io.Reader
}

// Provider stores files and hands out retrieval URLs.
type Provider interface {
	// Store writes f under namespace and returns its key.
	Store(ctx context.Context, f File, namespace string) (string, error)

	// SignedURL returns a time-limited URL for key.
	SignedURL(ctx context.Context, key string) (string, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// NewKey builds a fresh key for a file name in namespace.
func NewKey(namespace, name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	return path.Join(namespace, uuid.NewString()+ext)
}

// CleanKey rejects empty, absolute and escaping keys.
func CleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned != key || cleaned == "." || strings.HasPrefix(cleaned, "../") || cleaned == ".." {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
