package service

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")

	ErrSessionNotFound  = errors.New("upload session not found")
	ErrSessionForbidden = errors.New("upload session belongs to another user")
	ErrChunkIndexRange  = errors.New("chunk index out of range")
	ErrChunkMissing     = errors.New("chunk missing")
	ErrUploadBusy       = errors.New("upload is being finalized")

	ErrFileNotFound      = errors.New("file not found")
	ErrThumbnailNotFound = errors.New("thumbnail not found")

	ErrUserExists         = errors.New("username or email already registered")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserInactive       = errors.New("account not activated")
	ErrActivationInvalid  = errors.New("activation link invalid or expired")
	ErrUserNotFound       = errors.New("user not found")

	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
)
