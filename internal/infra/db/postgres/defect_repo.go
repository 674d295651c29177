package postgres

import (
	"context"
	"database/sql"
	"fmt"

	domain "github.com/bryanwahyu/defect-tracker/internal/domain/defects"
)

type DefectRepository struct{ db *sql.DB }

func NewDefectRepository(db *sql.DB) *DefectRepository { return &DefectRepository{db: db} }

const upsertDefect = `
INSERT INTO defects
(defect_id, source_file, description, element, defect_type, severity, status,
 image_path, x, y, z, wkt_point, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW())
ON CONFLICT (source_file, defect_id) DO UPDATE SET
 description = EXCLUDED.description,
 element = EXCLUDED.element,
 defect_type = EXCLUDED.defect_type,
 severity = EXCLUDED.severity,
 image_path = EXCLUDED.image_path,
 x = EXCLUDED.x,
 y = EXCLUDED.y,
 z = EXCLUDED.z,
 wkt_point = EXCLUDED.wkt_point,
 updated_at = NOW();`

// SaveBatch upserts rows in one transaction. status is only set on insert so
// workflow changes made elsewhere survive a re-import.
func (r *DefectRepository) SaveBatch(ctx context.Context, rows []domain.Row) (n int, err error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			n = 0
		} else {
			err = tx.Commit()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, upsertDefect)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err = stmt.ExecContext(ctx,
			stringOrDash(row.DefectID), stringOrDash(row.SourceFile), row.Description, row.Element,
			stringOrDash(row.DefectType), stringOrDash(row.Severity), stringOrDash(row.Status),
			nullIfEmpty(row.ImagePath), row.X, row.Y, row.Z, row.WKTPoint,
		); err != nil {
			return 0, fmt.Errorf("upsert defect %s: %w", row.DefectID, err)
		}
		n++
	}
	return n, nil
}

// CountBySource counts stored defects for one source file.
func (r *DefectRepository) CountBySource(ctx context.Context, sourceFile string) (int, error) {
	const q = `SELECT COUNT(*) FROM defects WHERE source_file=$1;`
	var n int
	if err := r.db.QueryRowContext(ctx, q, sourceFile).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
