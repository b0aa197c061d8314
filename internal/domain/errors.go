package domain

import "errors"

var (
	ErrNotFound            = errors.New("resource not found")
	ErrDocumentNotFound    = errors.New("document not found")
	ErrAlreadyInFlight     = errors.New("document is already being processed")
	ErrMissingDocumentID   = errors.New("document id is required")
	ErrEmptyDocument       = errors.New("document has no content")
	ErrFileTooLarge        = errors.New("file exceeds maximum allowed size")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrUploadFailed        = errors.New("file upload to storage failed")
	ErrDocumentDecided     = errors.New("document already has a verification decision")
)
