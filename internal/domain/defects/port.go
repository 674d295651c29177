package defects

import "context"

// Row is a persisted defect.
type Row struct {
	PreparedRecord
	Element    string
	DefectType string
	Severity   string
	Status     string
	ImagePath  string
}

// Repository port (persistence of prepared records)
type Repository interface {
	// SaveBatch upserts rows keyed by (source_file, defect_id) and returns how many were written.
	SaveBatch(ctx context.Context, rows []Row) (int, error)
	CountBySource(ctx context.Context, sourceFile string) (int, error)
}
