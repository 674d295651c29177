package ai

import (
	"context"

	"github.com/bryanwahyu/defect-tracker/internal/domain/defects"
)

type Classifier interface {
	Classify(ctx context.Context, description string) (defects.Classification, error)
}
