package defects

import "errors"

var (
	// ErrRepositoryUnavailable is returned when persistence is requested without a database.
	ErrRepositoryUnavailable = errors.New("defect repository not configured")
	// ErrNoSource means neither a scan nor a defects file could be found.
	ErrNoSource = errors.New("no defect source found")
)
