package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"

	domain "github.com/bryanwahyu/defect-tracker/internal/domain/uploads"
)

// FileStore keeps upload metadata in a single JSON document. Every Save rewrites the
// whole file; there is no locking, so concurrent writers race and the last one wins.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load returns (nil, nil) when the file does not exist yet.
func (s *FileStore) Load() (*domain.Metadata, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}

	var m domain.Metadata
	for key, dst := range map[string]any{
		"image_dir":   &m.ImageDir,
		"images":      &m.Images,
		"assignments": &m.Assignments,
	} {
		if raw, ok := all[key]; ok {
			if err := json.Unmarshal(raw, dst); err != nil {
				return nil, fmt.Errorf("decode metadata %s: %w", key, err)
			}
		}
	}
	// Bookkeeping keys are best effort: a value of the wrong shape stays in Extra
	// untouched instead of making the whole document unreadable.
	optional := map[string]func(json.RawMessage) bool{
		"upload_id":       func(r json.RawMessage) bool { return decodeInto(r, &m.UploadID) },
		"uploaded_at":     func(r json.RawMessage) bool { return decodeInto(r, &m.UploadedAt) },
		"scan_file":       func(r json.RawMessage) bool { return decodeInto(r, &m.ScanFile) },
		"documents":       func(r json.RawMessage) bool { return decodeInto(r, &m.Documents) },
		"classifications": func(r json.RawMessage) bool { return decodeInto(r, &m.Classifications) },
	}
	for key, decode := range optional {
		if raw, ok := all[key]; ok && decode(raw) {
			delete(all, key)
		}
	}
	for _, k := range []string{"image_dir", "images", "assignments"} {
		delete(all, k)
	}
	if len(all) > 0 {
		m.Extra = all
	}
	return &m, nil
}

// decodeInto sets *dst only when raw decodes cleanly.
func decodeInto[T any](raw json.RawMessage, dst *T) bool {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	*dst = v
	return true
}

// Save writes m, keeping the unknown top-level keys it was loaded with.
func (s *FileStore) Save(m *domain.Metadata) error {
	out, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	for k, v := range m.Extra {
		out, err = sjson.SetRawBytes(out, escapeKey(k), v)
		if err != nil {
			return fmt.Errorf("encode metadata key %q: %w", k, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path, pretty.Pretty(out), 0o644)
}

var pathEscaper = strings.NewReplacer(
	`\`, `\\`, `.`, `\.`, `*`, `\*`, `?`, `\?`, `|`, `\|`,
	`#`, `\#`, `@`, `\@`, `!`, `\!`, `:`, `\:`,
)

// escapeKey turns a literal key into an sjson path.
func escapeKey(k string) string { return pathEscaper.Replace(k) }
