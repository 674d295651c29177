package application

import "path/filepath"

// Layout is the on-disk structure under the instance directory.
type Layout struct {
	Instance string
}

func NewLayout(instance string) Layout {
	return Layout{Instance: instance}
}

// ProcessedRoot holds processed scans and the fallback defects.json.
func (l Layout) ProcessedRoot() string {
	return filepath.Join(l.Instance, "processed", "module1")
}

// UploadRoot holds uploaded scans and the upload metadata file.
func (l Layout) UploadRoot() string {
	return filepath.Join(l.Instance, "uploads", "upload_data")
}

func (l Layout) MetadataFile() string {
	return filepath.Join(l.UploadRoot(), "latest_upload.json")
}

func (l Layout) DefectsFile() string {
	return filepath.Join(l.ProcessedRoot(), "defects.json")
}

// ImagesRoot holds one sub directory of images per upload.
func (l Layout) ImagesRoot() string {
	return filepath.Join(l.UploadRoot(), "images")
}

// ScanSearchDirs lists where scan files are looked up, in order.
func (l Layout) ScanSearchDirs() []string {
	return []string{l.ProcessedRoot(), l.UploadRoot()}
}

// Abs resolves p against the instance directory when it is relative.
func (l Layout) Abs(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	abs, err := filepath.Abs(filepath.Join(l.Instance, p))
	if err != nil {
		return filepath.Join(l.Instance, p)
	}
	return abs
}
