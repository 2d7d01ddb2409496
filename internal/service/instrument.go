package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/unityvault/ticketflow/internal/observability"
	"github.com/unityvault/ticketflow/internal/repository"
	apperrors "github.com/unityvault/ticketflow/pkg/errorutil"
)

// instrumentation wraps every operation in a span, a storage deadline and an
// outcome counter.
type instrumentation struct {
	logger  *zap.Logger
	metrics *observability.Metrics
	timeout time.Duration
}

func (in instrumentation) run(ctx context.Context, op string, attrs []attribute.KeyValue, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, op, attrs...)
	if in.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.timeout)
		defer cancel()
	}

	err := fn(ctx)

	outcome := observability.OutcomeOK
	if err != nil {
		de := apperrors.ToDomainError(err)
		outcome = de.Code
		if de.HTTPStatus >= 500 {
			in.logger.Error("operation failed", zap.String("operation", op), zap.Error(err))
		}
	}
	in.metrics.RecordOperation(op, outcome, time.Since(start))
	observability.EndSpan(span, err)
	return err
}

// mapStoreError turns repository errors into caller-facing domain errors.
func mapStoreError(err error, resource string) error {
	if err == nil {
		return nil
	}
	var de *apperrors.DomainError
	switch {
	case errors.As(err, &de):
		return de
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(resource, nil)
	case errors.Is(err, repository.ErrStatusChanged):
		return apperrors.NewConflict(fmt.Sprintf("The %s changed state; please retry.", resource), nil)
	default:
		return apperrors.NewStorageError(err)
	}
}
