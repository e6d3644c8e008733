package transfer

import (
	"errors"
	"fmt"
)

var (
	ErrChannelClosed     = errors.New("channel closed")
	ErrChecksumMismatch  = errors.New("checksum mismatch")
	ErrUnexpectedMessage = errors.New("unexpected message")
	ErrInvalidMetadata   = errors.New("invalid metadata")
	ErrMalformedChunk    = errors.New("malformed chunk")
	ErrDrainTimeout      = errors.New("buffer drain timeout")
	ErrInvalidFile       = errors.New("invalid file")
)

type TransferError struct {
	Op      string
	File    string
	Err     error
	Details string
}

func (e *TransferError) Error() string {
	if e.File != "" {
		if e.Details != "" {
			return fmt.Sprintf("%s %s: %v (%s)", e.Op, e.File, e.Err, e.Details)
		}
		return fmt.Sprintf("%s %s: %v", e.Op, e.File, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *TransferError {
	return &TransferError{Op: op, Err: err}
}

func NewFileError(op, file string, err error) *TransferError {
	return &TransferError{Op: op, File: file, Err: err}
}

func WrapError(op string, err error, details string) *TransferError {
	return &TransferError{Op: op, Err: err, Details: details}
}
