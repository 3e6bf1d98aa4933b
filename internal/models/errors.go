package models

import "errors"

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrDocumentNotFound   = errors.New("PDF not found")
	ErrDocumentCorrupt    = errors.New("document record is unreadable")
	ErrBackendUnavailable = errors.New("model backend unavailable")
)
