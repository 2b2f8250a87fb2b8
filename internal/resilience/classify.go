package resilience

import (
	"context"
	"errors"
	"net"

	"github.com/custodia-labs/keepsake/internal/core/domain"
)

// Classify maps any error into the domain taxonomy and suggests an action.
// Classification relies on the domain sentinels, so adapters must wrap
// driver errors before they reach the core.
func Classify(err error) domain.Classification {
	if err == nil {
		return domain.Classification{}
	}

	switch {
	case errors.Is(err, domain.ErrCircuitOpen):
		return domain.Classification{Class: domain.ClassTransient, Action: domain.ActionFallback}
	case errors.Is(err, domain.ErrConfiguration):
		return domain.Classification{Class: domain.ClassConfiguration, Action: domain.ActionEscalate}
	case errors.Is(err, domain.ErrPermission):
		return domain.Classification{Class: domain.ClassPermission, Action: domain.ActionUserAction}
	case errors.Is(err, domain.ErrValidation):
		return domain.Classification{Class: domain.ClassValidation, Action: domain.ActionUserAction}
	case errors.Is(err, domain.ErrStorage):
		if domain.IsLockTimeout(err) {
			return domain.Classification{Class: domain.ClassStorage, Action: domain.ActionRetry, Retryable: true}
		}
		return domain.Classification{Class: domain.ClassStorage, Action: domain.ActionEscalate}
	case errors.Is(err, domain.ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return domain.Classification{Class: domain.ClassTransient, Action: domain.ActionRetry, Retryable: true}
	case errors.Is(err, context.Canceled):
		return domain.Classification{Class: domain.ClassUnknown, Action: domain.ActionEscalate}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.Classification{Class: domain.ClassTransient, Action: domain.ActionRetry, Retryable: true}
	}

	return domain.Classification{Class: domain.ClassUnknown, Action: domain.ActionEscalate}
}

// IsRetryable is the default RetryPolicy predicate.
func IsRetryable(err error) bool {
	return Classify(err).Retryable
}
