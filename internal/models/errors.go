package models

import "errors"

// Error kinds surfaced by the core. Handlers translate these to HTTP status
// codes; the runner attaches the transcoder-specific kinds to failed tasks.
var (
	// ErrNotFound indicates an asset or task is absent.
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates an operation on another user's resource.
	ErrForbidden = errors.New("forbidden")

	// ErrBadRequest indicates an unusable request (unknown asset id, wrong
	// owner, unparseable file id).
	ErrBadRequest = errors.New("bad request")

	// ErrTranscoderMissing indicates the transcoder binary is not on PATH.
	// Fatal for the specific task, recoverable for the service.
	ErrTranscoderMissing = errors.New("transcoder binary not found")

	// ErrTranscoderStalled indicates the transcoder produced no output
	// within the stall timeout.
	ErrTranscoderStalled = errors.New("transcoder stalled")

	// ErrTranscoderFailed indicates a non-zero transcoder exit.
	ErrTranscoderFailed = errors.New("transcoder failed")

	// ErrCancelled indicates explicit task cancellation.
	ErrCancelled = errors.New("task cancelled")

	// ErrPostProcess indicates the rename or asset registration failed after
	// a successful transcoder exit.
	ErrPostProcess = errors.New("post-processing failed")

	// ErrTooLarge indicates an upload exceeding the configured size bound.
	ErrTooLarge = errors.New("file too large")

	// ErrUnsupportedFormat indicates an upload whose extension is outside the
	// allowlist or whose content does not match the claimed extension.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrInvalidCredentials indicates a failed login. Deliberately does not
	// reveal whether the username exists.
	ErrInvalidCredentials = errors.New("incorrect username or password")

	// ErrUsernameTaken indicates a registration with an existing username.
	ErrUsernameTaken = errors.New("username already registered")

	// ErrUsernameRequired indicates an empty username on registration.
	ErrUsernameRequired = errors.New("username is required")

	// ErrPasswordRequired indicates an empty password on registration.
	ErrPasswordRequired = errors.New("password is required")
)
