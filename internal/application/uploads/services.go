package uploads

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/bryanwahyu/defect-tracker/internal/application"
	domain "github.com/bryanwahyu/defect-tracker/internal/domain/uploads"
)

// Service implements the upload bookkeeping use-cases. Artifacts is optional.
type Service struct {
	Store     domain.MetadataStore
	Artifacts domain.ArtifactStore
	Layout    application.Layout
	Clock     application.Clock
	Logger    *slog.Logger
}

// Action is what the assign form asks for.
type Action string

const (
	ActionAssign   Action = "assign"
	ActionUnassign Action = "unassign"
)

// ParseAction treats anything other than "unassign" as an assignment.
func ParseAction(s string) Action {
	if strings.TrimSpace(s) == string(ActionUnassign) {
		return ActionUnassign
	}
	return ActionAssign
}

// AssignCommand is the assign-image form.
type AssignCommand struct {
	Action   Action
	ImageID  string
	DefectID string
}

// AssignResult tells the caller what changed.
type AssignResult struct {
	Action   Action
	DefectID string
	ImageID  string
	// Removed is only meaningful for unassign.
	Removed bool
}

// Latest returns the current metadata, or nil when there is none or it cannot be read.
func (s *Service) Latest() *domain.Metadata {
	m, err := s.Store.Load()
	if err != nil {
		s.logger().Error("unable to load upload metadata", "err", err)
		return nil
	}
	return m
}

// Assign applies an assign/unassign command and writes the whole document back.
func (s *Service) Assign(ctx context.Context, cmd AssignCommand) (AssignResult, error) {
	meta := s.Latest()
	if meta == nil {
		return AssignResult{}, domain.ErrNoMetadata
	}
	if cmd.ImageID == "" {
		return AssignResult{}, domain.ErrImageRequired
	}
	if _, _, ok := meta.ResolveImage(cmd.ImageID); !ok {
		return AssignResult{}, domain.ErrImageUnavailable
	}

	res := AssignResult{Action: cmd.Action, ImageID: cmd.ImageID, DefectID: cmd.DefectID}
	switch cmd.Action {
	case ActionUnassign:
		res.Removed = meta.Unassign(cmd.ImageID)
	default:
		if cmd.DefectID == "" {
			return AssignResult{}, domain.ErrDefectRequired
		}
		meta.Assign(cmd.DefectID, cmd.ImageID)
	}

	if err := s.Store.Save(meta); err != nil {
		return AssignResult{}, fmt.Errorf("save metadata: %w", err)
	}
	s.logger().Info("assignment updated", "action", res.Action, "image_id", res.ImageID, "defect_id", res.DefectID)
	return res, nil
}

// ImagePath resolves imageID to a file inside the metadata image directory.
func (s *Service) ImagePath(imageID string) (string, error) {
	meta := s.Latest()
	if meta == nil {
		return "", domain.ErrImageNotFound
	}
	dir, file, ok := meta.ResolveImage(imageID)
	if !ok {
		return "", domain.ErrImageNotFound
	}

	dir = s.Layout.Abs(dir)
	full := filepath.Clean(filepath.Join(dir, file))
	rel, err := filepath.Rel(dir, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s escapes image directory", domain.ErrImageNotFound, file)
	}
	if fi, err := os.Stat(full); err != nil || fi.IsDir() {
		return "", fmt.Errorf("%w: %s", domain.ErrImageNotFound, file)
	}
	return full, nil
}

// IncomingFile is one uploaded file.
type IncomingFile struct {
	Name string
	Body io.Reader
}

// Upload stores the files of a new upload and replaces the upload metadata.
// Scans go to the upload root, images to a per-upload directory, documents are
// recorded, and a .json file becomes the fallback defects file.
func (s *Service) Upload(ctx context.Context, files []IncomingFile) (*domain.Metadata, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files", domain.ErrInvalidUpload)
	}
	for _, f := range files {
		if domain.KindOf(f.Name) == domain.KindUnknown {
			return nil, fmt.Errorf("%w: unsupported file type %q", domain.ErrInvalidUpload, f.Name)
		}
	}

	uploadID := uuid.New().String()
	now := s.clock().Now().UTC()
	imageDir := filepath.Join(s.Layout.ImagesRoot(), uploadID)
	meta := &domain.Metadata{
		UploadID:    uploadID,
		UploadedAt:  &now,
		ImageDir:    imageDir,
		Images:      []domain.Image{},
		Assignments: domain.Assignments{DefectToImage: map[string]domain.ImageID{}},
	}

	var saved []string
	for _, f := range files {
		name := filepath.Base(f.Name)
		var dest string
		switch domain.KindOf(name) {
		case domain.KindScan:
			dest = filepath.Join(s.Layout.UploadRoot(), name)
			meta.ScanFile = name
		case domain.KindImage:
			id := uuid.New().String()[:8]
			stored := id + strings.ToLower(filepath.Ext(name))
			dest = filepath.Join(imageDir, stored)
			meta.Images = append(meta.Images, domain.Image{
				ID:   domain.ImageID(id),
				File: stored,
				Page: rawInt(len(meta.Images) + 1),
			})
		case domain.KindDocument:
			dest = filepath.Join(s.Layout.UploadRoot(), "documents", name)
			meta.Documents = append(meta.Documents, name)
		case domain.KindDefects:
			dest = s.Layout.DefectsFile()
		}

		if err := writeFile(dest, f.Body); err != nil {
			return nil, fmt.Errorf("store %s: %w", name, err)
		}
		saved = append(saved, dest)
		s.logger().Info("upload stored", "upload_id", uploadID, "file", name, "path", dest)
	}

	for i := range meta.Images {
		w, h, err := imageDimensions(filepath.Join(imageDir, meta.Images[i].File))
		if err != nil {
			s.logger().Warn("failed to get image dimensions", "file", meta.Images[i].File, "err", err)
		}
		meta.Images[i].Width, meta.Images[i].Height = rawInt(w), rawInt(h)
	}

	if err := s.Store.Save(meta); err != nil {
		return nil, fmt.Errorf("save metadata: %w", err)
	}
	s.mirror(ctx, uploadID, saved)
	return meta, nil
}

// mirror copies stored files to the artifact store; failures are only logged.
func (s *Service) mirror(ctx context.Context, uploadID string, paths []string) {
	if s.Artifacts == nil {
		return
	}
	for _, p := range paths {
		key := uploadID + "/" + filepath.Base(p)
		url, err := s.Artifacts.Upload(ctx, p, key)
		if err != nil {
			s.logger().Warn("artifact mirror failed", "path", p, "err", err)
			continue
		}
		s.logger().Debug("artifact mirrored", "path", p, "url", url)
	}
}

func (s *Service) clock() application.Clock {
	if s.Clock == nil {
		return application.SystemClock{}
	}
	return s.Clock
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func writeFile(path string, body io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func imageDimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

func rawInt(n int) json.RawMessage {
	return json.RawMessage(strconv.Itoa(n))
}
