package uploads

import "context"

// MetadataStore port. Load returns (nil, nil) when no metadata has been written yet.
type MetadataStore interface {
	Load() (*Metadata, error)
	Save(m *Metadata) error
}

// ArtifactStore port (mirror of uploaded files)
type ArtifactStore interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
}
