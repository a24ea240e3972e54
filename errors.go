package cssdecode

import (
	"fmt"

	"go.uber.org/multierr"
)

func (e *DecodeError) Error() string {
	return fmt.Sprintf(
		"neither declared nor sniffed nor fallback %s decoding succeeded: %s",
		e.Encoding,
		e.Err,
	)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Attempts returns the failures of the tiers that were tried before the
// fallback, in the order they were tried. Rejected @charset decodes
// are not failures and do not show up here.
func (e *DecodeError) Attempts() []error {
	return multierr.Errors(e.attempts)
}

func (s Source) String() string {
	switch s {
	case SourceProtocol:
		return "protocol"
	case SourceSniffed:
		return "sniffed"
	case SourceLinking:
		return "linking"
	case SourceDocument:
		return "document"
	case SourceFallback:
		return "fallback"
	}
	return fmt.Sprintf("Source(%d)", int(s))
}
