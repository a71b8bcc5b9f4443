package emailtemplates

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// File suffixes inside a templates directory. A key "contact.confirmation" is
// stored as contact.confirmation.html, with an optional .subject next to it
// and a .disabled marker when the override is switched off.
const (
	htmlSuffix     = ".html"
	subjectSuffix  = ".subject"
	disabledSuffix = ".disabled"
)

// FileStore keeps template overrides as plain files in a directory so they
// can be edited and versioned alongside the site.
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

// NewFileStore returns a store rooted at dir. The directory is created on
// the first write.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path(key, suffix string) string {
	return filepath.Join(s.dir, key+suffix)
}

// Upsert writes the override files for key after validating both templates.
func (s *FileStore) Upsert(ctx context.Context, key, subjectTpl, htmlTpl string) (*Template, error) {
	if err := checkTemplate(key, subjectTpl, htmlTpl); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating templates dir: %w", err)
	}
	if err := os.WriteFile(s.path(key, htmlSuffix), []byte(htmlTpl), 0o644); err != nil {
		return nil, fmt.Errorf("writing template %q: %w", key, err)
	}
	if err := os.WriteFile(s.path(key, subjectSuffix), []byte(subjectTpl), 0o644); err != nil {
		return nil, fmt.Errorf("writing template %q: %w", key, err)
	}
	return s.load(key)
}

// Get returns the override for key, or ErrNotFound.
func (s *FileStore) Get(ctx context.Context, key string) (*Template, error) {
	if err := ValidateKey(key); err != nil {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load(key)
}

func (s *FileStore) load(key string) (*Template, error) {
	htmlPath := s.path(key, htmlSuffix)
	info, err := os.Stat(htmlPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting template %q: %w", key, err)
	}
	if info.Size() > MaxHTMLLen {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, htmlPath)
	}
	htmlTpl, err := os.ReadFile(htmlPath)
	if err != nil {
		return nil, fmt.Errorf("getting template %q: %w", key, err)
	}

	var subject string
	if b, err := os.ReadFile(s.path(key, subjectSuffix)); err == nil {
		subject = strings.TrimSpace(string(b))
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("getting template %q subject: %w", key, err)
	}

	_, err = os.Stat(s.path(key, disabledSuffix))
	return &Template{
		TemplateKey:     key,
		SubjectTemplate: subject,
		HTMLTemplate:    string(htmlTpl),
		Enabled:         errors.Is(err, fs.ErrNotExist),
		UpdatedAt:       info.ModTime(),
	}, nil
}

// List returns all overrides in key order. A missing directory is empty.
func (s *FileStore) List(ctx context.Context) ([]*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}

	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, htmlSuffix) {
			continue
		}
		key := strings.TrimSuffix(name, htmlSuffix)
		if ValidateKey(key) == nil {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	templates := make([]*Template, 0, len(keys))
	for _, key := range keys {
		t, err := s.load(key)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, nil
}

// Delete removes the override files for key.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(key, htmlSuffix))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("deleting template %q: %w", key, err)
	}
	for _, suffix := range []string{subjectSuffix, disabledSuffix} {
		if err := os.Remove(s.path(key, suffix)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("deleting template %q: %w", key, err)
		}
	}
	return nil
}

// SetEnabled toggles the .disabled marker for an existing override.
func (s *FileStore) SetEnabled(ctx context.Context, key string, enabled bool) error {
	if err := ValidateKey(key); err != nil {
		return ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path(key, htmlSuffix)); errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	marker := s.path(key, disabledSuffix)
	if enabled {
		if err := os.Remove(marker); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("toggling template %q enabled: %w", key, err)
		}
		return nil
	}
	if err := os.WriteFile(marker, nil, 0o644); err != nil {
		return fmt.Errorf("toggling template %q enabled: %w", key, err)
	}
	return nil
}
