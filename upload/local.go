package upload

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LocalOptions configures the filesystem backend.
type LocalOptions struct {
	Dir        string        // root directory for stored files
	BaseURL    string        // public origin, e.g. http://localhost:8080
	SigningKey string        // HMAC key for URLs
	URLTTL     time.Duration // lifetime of signed URLs
}

// Local stores files on disk. Its URLs point at Handler and carry an
// expiry and an HMAC signature over key and expiry.
type Local struct {
	dir     string
	baseURL string
	key     []byte
	ttl     time.Duration

	// Now is the clock used to sign and verify.
	Now func() time.Time
}

var _ Provider = (*Local)(nil)

// NewLocal creates the root directory if needed.
func NewLocal(opts LocalOptions) (*Local, error) {
	if opts.Dir == "" {
		return nil, errors.New("local storage dir is required")
	}
	if opts.SigningKey == "" {
		return nil, errors.New("local storage signing key is required")
	}
	if opts.URLTTL <= 0 {
		opts.URLTTL = time.Hour
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &Local{
		dir:     opts.Dir,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		key:     []byte(opts.SigningKey),
		ttl:     opts.URLTTL,
		Now:     time.Now,
	}, nil
}

func (l *Local) path(key string) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.dir, filepath.FromSlash(cleaned)), nil
}

// Store writes to a temp file and renames it into place, so a reader never
// sees a partial file.
func (l *Local) Store(_ context.Context, f File, namespace string) (string, error) {
	key := NewKey(namespace, f.Name)
	dst, err := l.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("failed to create namespace dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, f.Body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", key, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return "", fmt.Errorf("failed to move %s into place: %w", key, err)
	}
	return key, nil
}

func (l *Local) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, l.key)
	mac.Write([]byte(key))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignedURL returns base_url/files/<key>?expires=<unix>&sig=<hmac>.
func (l *Local) SignedURL(_ context.Context, key string) (string, error) {
	if _, err := CleanKey(key); err != nil {
		return "", err
	}
	expires := l.Now().Add(l.ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", l.sign(key, expires))
	return l.baseURL + "/files/" + key + "?" + q.Encode(), nil
}

// Delete removes key; a missing file is not an error.
func (l *Local) Delete(_ context.Context, key string) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Verify checks a signature for key.
func (l *Local) Verify(key, expiresParam, sig string) bool {
	expires, err := strconv.ParseInt(expiresParam, 10, 64)
	if err != nil || l.Now().Unix() > expires {
		return false
	}
	want := l.sign(key, expires)
	return hmac.Equal([]byte(want), []byte(sig))
}

// Handler serves signed files. It expects the request path to be the key,
// so mount it behind http.StripPrefix("/files/", ...).
func (l *Local) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		key := strings.TrimPrefix(r.URL.Path, "/")
		q := r.URL.Query()
		if !l.Verify(key, q.Get("expires"), q.Get("sig")) {
			http.Error(w, "invalid or expired signature", http.StatusForbidden)
			return
		}

		p, err := l.path(key)
		if err != nil {
			http.Error(w, "invalid or expired signature", http.StatusForbidden)
			return
		}
		f, err := os.Open(p)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	})
}
