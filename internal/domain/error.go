package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Access and quota
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrPackAccessDenied = errors.New("no access to requested pack")
	ErrQuotaExceeded    = errors.New("monthly document limit reached")
	ErrRateLimited      = errors.New("too many requests")
	ErrBusy             = errors.New("another generation is in progress")

	// Catalog
	ErrUnknownIndustry    = errors.New("unknown industry")
	ErrUnknownPack        = errors.New("unknown pack")
	ErrUnknownDocument    = errors.New("unknown document")
	ErrDocumentNotInPack  = errors.New("document not included in pack")
	ErrFormatNotAvailable = errors.New("format not available for pack")

	// Generation and billing
	ErrContentTooShort     = errors.New("generated content too short")
	ErrInvalidPrice        = errors.New("invalid price id")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrUnknownBillingOwner = errors.New("cannot resolve user for billing event")
)
