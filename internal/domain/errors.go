package domain

import "errors"

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidKind         = errors.New("invalid notification kind")
	ErrInvalidRecipient    = errors.New("recipient id must be a valid uuid")
	ErrUnknownRecipient    = errors.New("recipient does not exist")
	ErrInvalidTemplateData = errors.New("template data must be a JSON object")
	ErrInvalidAttachment   = errors.New("attachment requires content type, file name and data")
	ErrAlreadyProcessed    = errors.New("notification is already processed")
	ErrInvalidBaseURL      = errors.New("base url must be an absolute http(s) url")
)
