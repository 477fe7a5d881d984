package domain

import "errors"

var (
	ErrInvalidTask         = errors.New("invalid notification task")
	ErrUnknownTemplate     = errors.New("unknown notification template")
	ErrRender              = errors.New("notification render failed")
	ErrProviderUnavailable = errors.New("notification provider unavailable")
	ErrNoSender            = errors.New("no sender configured for channel")
	ErrClaimLost           = errors.New("notification claim lost")
	ErrInvalidBatch        = errors.New("maxBatch must be positive")
	ErrTaskNotFound        = errors.New("notification task not found")
	ErrAbandoned           = errors.New("notification abandoned: dispatch never completed")
)
