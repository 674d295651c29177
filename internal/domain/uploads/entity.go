package uploads

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/bryanwahyu/defect-tracker/internal/domain/defects"
)

// ImageID accepts both JSON strings and numbers; ids are always compared as strings.
type ImageID string

func (id *ImageID) UnmarshalJSON(b []byte) error {
	r := gjson.ParseBytes(b)
	switch r.Type {
	case gjson.Null:
		*id = ""
	case gjson.String:
		*id = ImageID(r.Str)
	default:
		*id = ImageID(r.Raw)
	}
	return nil
}

// Image is an extracted or uploaded picture that can be paired with a defect.
// Page, Width and Height are kept as raw JSON so foreign metadata files round-trip untouched.
type Image struct {
	ID     ImageID         `json:"id"`
	File   string          `json:"file"`
	Page   json.RawMessage `json:"page"`
	Width  json.RawMessage `json:"width"`
	Height json.RawMessage `json:"height"`
}

// Assignments pairs defects with images.
type Assignments struct {
	DefectToImage map[string]ImageID `json:"defect_to_image"`
}

// Metadata is the upload bookkeeping document (latest_upload.json).
type Metadata struct {
	UploadID        string                            `json:"upload_id,omitempty"`
	UploadedAt      *time.Time                        `json:"uploaded_at,omitempty"`
	ImageDir        string                            `json:"image_dir,omitempty"`
	ScanFile        string                            `json:"scan_file,omitempty"`
	Images          []Image                           `json:"images"`
	Documents       []string                          `json:"documents,omitempty"`
	Assignments     Assignments                       `json:"assignments"`
	Classifications map[string]defects.Classification `json:"classifications,omitempty"`

	// Extra holds top-level keys this service does not know about or could not decode.
	Extra map[string]json.RawMessage `json:"-"`
}

// ImageEntry is an image as presented to clients.
type ImageEntry struct {
	ID             string          `json:"id"`
	File           string          `json:"file"`
	Page           json.RawMessage `json:"page"`
	Width          json.RawMessage `json:"width"`
	Height         json.RawMessage `json:"height"`
	AssignedDefect *string         `json:"assigned_defect"`
	URL            string          `json:"url,omitempty"`
}

// FileKind classifies an uploaded file by name.
type FileKind string

const (
	KindScan     FileKind = "scan"
	KindImage    FileKind = "image"
	KindDocument FileKind = "document"
	KindDefects  FileKind = "defects"
	KindUnknown  FileKind = "unknown"
)

// KindOf decides what an uploaded file is from its extension.
func KindOf(name string) FileKind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".glb", ".gltf":
		return KindScan
	case ".png", ".jpg", ".jpeg", ".gif":
		return KindImage
	case ".pdf":
		return KindDocument
	case ".json":
		return KindDefects
	default:
		return KindUnknown
	}
}
