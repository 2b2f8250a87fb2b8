package domain

// ErrorClass is the taxonomy every error is mapped into.
type ErrorClass string

// Error classes.
const (
	ClassValidation    ErrorClass = "validation"
	ClassTransient     ErrorClass = "transient"
	ClassStorage       ErrorClass = "storage"
	ClassPermission    ErrorClass = "permission"
	ClassConfiguration ErrorClass = "configuration"
	ClassUnknown       ErrorClass = "unknown"
)

// SuggestedAction tells the caller how to react to a classified error.
type SuggestedAction string

// Suggested actions.
const (
	ActionRetry      SuggestedAction = "retry"
	ActionFallback   SuggestedAction = "fallback"
	ActionUserAction SuggestedAction = "user-action"
	ActionEscalate   SuggestedAction = "escalate"
)

// Classification is the result of classifying an error.
type Classification struct {
	Class     ErrorClass      `json:"class"`
	Action    SuggestedAction `json:"action"`
	Retryable bool            `json:"retryable"`
}
