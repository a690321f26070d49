package qrstream

import (
	"github.com/pkg/errors"

	"github.com/sharediffs/qrstream/fec"
	"github.com/sharediffs/qrstream/internal/fecwire"
)

var (
	// ErrConfig reports invalid encoder options.
	ErrConfig = fec.ErrConfig
	// ErrFrameCorrupt marks a frame that could not be parsed. It is dropped
	// and never affects the session in progress.
	ErrFrameCorrupt = fecwire.ErrFrameCorrupt
	// ErrSessionMismatch is logged when a frame of another session arrives;
	// the receiver resets to the new session.
	ErrSessionMismatch = errors.New("qrstream: frame belongs to another session")
	// ErrIntegrity means the reconstructed payload does not match the
	// session length or hash. The bytes are discarded.
	ErrIntegrity = errors.New("qrstream: payload integrity check failed")
	// ErrCapacityExceeded is returned at encode time when a frame does not
	// fit the configured QR version.
	ErrCapacityExceeded = errors.New("qrstream: frame exceeds QR capacity")
)
