package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidQuery          = errors.New("invalid query")
	ErrRetrieverUnavailable  = errors.New("retriever unavailable")
	ErrGenerationUnavailable = errors.New("generation unavailable")
	ErrGenerationFormat      = errors.New("malformed generation response")
	ErrDeadlineExceeded      = errors.New("request deadline exceeded")
	ErrInvalidFormatTarget   = errors.New("invalid format target")
	ErrOCRFailed             = errors.New("ocr extraction failed")
	ErrTemporary             = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
