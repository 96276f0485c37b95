package transform

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingDataBlock marks a payload without one of its required container keys.
	ErrMissingDataBlock = errors.New("missing data block")
	// ErrMalformedPayload marks a payload that is not a JSON object of the expected shape.
	ErrMalformedPayload = errors.New("malformed payload")
)

// MissingDataBlockError identifies the domain and the required key a payload lacked.
type MissingDataBlockError struct {
	Domain Domain
	Key    string
	// Detail carries the provider's explanation when it sent one instead of data.
	Detail string
}

func (e *MissingDataBlockError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s payload: missing %q block (provider said: %s)", e.Domain, e.Key, e.Detail)
	}
	return fmt.Sprintf("%s payload: missing %q block", e.Domain, e.Key)
}

// Is lets errors.Is match ErrMissingDataBlock.
func (e *MissingDataBlockError) Is(target error) bool {
	return target == ErrMissingDataBlock
}

// FileError ties a transform failure to the input file that caused it.
type FileError struct {
	Domain Domain
	Path   string
	Entity string
	Err    error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("transform %s file %s (entity %s): %v", e.Domain, e.Path, e.Entity, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}
