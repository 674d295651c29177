package defects

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/bryanwahyu/defect-tracker/internal/application"
	domai "github.com/bryanwahyu/defect-tracker/internal/domain/ai"
	domain "github.com/bryanwahyu/defect-tracker/internal/domain/defects"
	"github.com/bryanwahyu/defect-tracker/internal/domain/snapshots"
	"github.com/bryanwahyu/defect-tracker/internal/domain/uploads"
)

// Service implements the defect use-cases: loading, persisting and classifying.
// Repo and Classifier are optional.
type Service struct {
	Snapshots  snapshots.Source
	Metadata   uploads.MetadataStore
	Repo       domain.Repository
	Classifier domai.Classifier
	Layout     application.Layout
	Logger     *slog.Logger
}

var scanPatterns = []string{"*.glb", "*.gltf"}

// Load applies the selection policy: newest scan with snapshots, then the JSON
// fallback file, then an empty result with a reason.
func (s *Service) Load(ctx context.Context) domain.LoadResult {
	log := s.logger()

	scan := s.latestScanFile()
	if scan != "" {
		log.Info("using scan file for defect extraction", "path", scan)
		list, err := s.parseScan(scan)
		switch {
		case err != nil:
			log.Error("failed to parse scan defects", "path", scan, "err", err)
		case len(list) > 0:
			return domain.LoadResult{Defects: list, SourcePath: scan, Kind: domain.SourceGLB}
		default:
			log.Warn("no snapshot metadata found", "path", scan)
		}
	}

	if jsonFile := s.defectsFile(); jsonFile != "" {
		list, err := s.parseDefectsFile(jsonFile)
		if err == nil {
			return domain.LoadResult{Defects: list, SourcePath: jsonFile, Kind: domain.SourceJSON}
		}
		log.Error("failed to parse JSON defects", "path", jsonFile, "err", err)
	}

	if scan != "" {
		return domain.LoadResult{Defects: []domain.Defect{}, SourcePath: scan, Kind: domain.SourceGLB, Reason: domain.ReasonNoSnapshots}
	}
	return domain.LoadResult{Defects: []domain.Defect{}, Kind: domain.SourceNone, Reason: domain.ReasonNoFile}
}

// latestScanFile returns the most recently modified scan across the search directories.
func (s *Service) latestScanFile() string {
	var (
		latest  string
		latestT int64
	)
	for _, dir := range s.Layout.ScanSearchDirs() {
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			continue
		}
		for _, pattern := range scanPatterns {
			matches, err := filepath.Glob(filepath.Join(dir, pattern))
			if err != nil {
				continue
			}
			for _, m := range matches {
				fi, err := os.Stat(m)
				if err != nil || fi.IsDir() {
					continue
				}
				if t := fi.ModTime().UnixNano(); latest == "" || t > latestT {
					latest, latestT = m, t
				}
			}
		}
	}
	return latest
}

func (s *Service) defectsFile() string {
	path := s.Layout.DefectsFile()
	if _, err := os.Stat(path); err != nil {
		s.logger().Warn("defect JSON not found", "path", path)
		return ""
	}
	return path
}

func (s *Service) parseScan(path string) ([]domain.Defect, error) {
	snaps, err := s.Snapshots.ExtractFile(path)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Defect, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, domain.FromSnapshot(snap, path))
	}
	return out, nil
}

// parseDefectsFile reads {source_file, defects: [{id, description, coordinates}]}.
// Entries with unparseable coordinates are logged and dropped.
func (s *Service) parseDefectsFile(path string) ([]domain.Defect, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid JSON in %s", path)
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%s: top-level value must be an object", path)
	}

	source := filepath.Base(path)
	if v := doc.Get("source_file"); v.Exists() {
		source = v.String()
	}

	out := []domain.Defect{}
	for _, entry := range doc.Get("defects").Array() {
		d, err := defectFromEntry(entry, source)
		if err != nil {
			s.logger().Warn("skipping defect with invalid coordinates", "entry", entry.Raw, "err", err)
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

var errBadCoordinate = errors.New("invalid coordinate")

func defectFromEntry(entry gjson.Result, source string) (domain.Defect, error) {
	if !entry.IsObject() {
		return domain.Defect{}, fmt.Errorf("%w: entry is not an object", errBadCoordinate)
	}
	coords := entry.Get("coordinates")
	if coords.Exists() && !coords.IsObject() {
		return domain.Defect{}, fmt.Errorf("%w: coordinates is not an object", errBadCoordinate)
	}
	var xyz [3]float64
	for i, axis := range []string{"x", "y", "z"} {
		v := coords.Get(axis)
		if !v.Exists() {
			continue
		}
		f, ok := parseFloat(v)
		if !ok {
			return domain.Defect{}, fmt.Errorf("%w: %s=%s", errBadCoordinate, axis, v.Raw)
		}
		xyz[i] = f
	}
	return domain.Defect{
		ID:          entry.Get("id").String(),
		Description: entry.Get("description").String(),
		X:           xyz[0],
		Y:           xyz[1],
		Z:           xyz[2],
		SourceFile:  source,
	}, nil
}

// Persist upserts the prepared records together with their image assignment and classification.
func (s *Service) Persist(ctx context.Context) (int, error) {
	if s.Repo == nil {
		return 0, domain.ErrRepositoryUnavailable
	}
	res := s.Load(ctx)
	if !res.Found() {
		return 0, fmt.Errorf("%w: %s", domain.ErrNoSource, res.Reason)
	}

	meta := s.latestMetadata()
	rows := make([]domain.Row, 0, len(res.Defects))
	for _, rec := range domain.Prepare(res.Defects) {
		row := domain.Row{
			PreparedRecord: rec,
			Element:        rec.Description,
			DefectType:     domain.DefaultType,
			Severity:       domain.DefaultSeverity,
			Status:         domain.DefaultStatus,
		}
		if meta != nil {
			if c, ok := meta.Classifications[rec.DefectID]; ok {
				row.DefectType, row.Severity = c.DefectType, c.Severity
			}
			if img, _, ok := meta.AssignedImage(rec.DefectID); ok {
				row.ImagePath = filepath.Join(meta.ImageDir, img.File)
			}
		}
		rows = append(rows, row)
	}

	n, err := s.Repo.SaveBatch(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("save defects: %w", err)
	}
	log := s.logger().With("count", n, "source", res.SourcePath)
	if len(rows) > 0 {
		if total, err := s.Repo.CountBySource(ctx, rows[0].SourceFile); err == nil {
			log = log.With("stored_for_source", total)
		}
	}
	log.Info("defects persisted")
	return n, nil
}

// Classify asks the classifier about every loaded defect and stores the answers
// in the upload metadata. Individual failures are logged; quota errors abort.
func (s *Service) Classify(ctx context.Context) (map[string]domain.Classification, error) {
	if s.Classifier == nil {
		return nil, domai.ErrNotConfigured
	}
	res := s.Load(ctx)

	// An unreadable file must not be replaced by an empty document.
	meta, err := s.Metadata.Load()
	if err != nil {
		return nil, fmt.Errorf("load metadata: %w", err)
	}
	if meta == nil {
		meta = &uploads.Metadata{}
	}
	if meta.Classifications == nil {
		meta.Classifications = map[string]domain.Classification{}
	}

	out := map[string]domain.Classification{}
	for _, d := range res.Defects {
		c, err := s.Classifier.Classify(ctx, d.Description)
		if err != nil {
			if errors.Is(err, domai.ErrQuotaExceeded) || ctx.Err() != nil {
				return nil, err
			}
			s.logger().Warn("classification failed", "defect", d.ID, "err", err)
			continue
		}
		c = c.Normalize()
		out[d.ID] = c
		meta.Classifications[d.ID] = c
	}

	if err := s.Metadata.Save(meta); err != nil {
		return nil, fmt.Errorf("save classifications: %w", err)
	}
	return out, nil
}

// LatestMetadata returns the upload metadata, or nil when it is missing or unreadable.
func (s *Service) LatestMetadata() *uploads.Metadata { return s.latestMetadata() }

func (s *Service) latestMetadata() *uploads.Metadata {
	m, err := s.Metadata.Load()
	if err != nil {
		s.logger().Error("unable to load upload metadata", "err", err)
		return nil
	}
	return m
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func parseFloat(r gjson.Result) (float64, bool) {
	var f float64
	switch r.Type {
	case gjson.Number:
		f = r.Num
	case gjson.String:
		v, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
		if err != nil {
			return 0, false
		}
		f = v
	case gjson.True:
		f = 1
	case gjson.False:
		f = 0
	default:
		return 0, false
	}
	// NaN and Inf cannot be encoded as JSON.
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
