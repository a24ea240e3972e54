// Package cssdecode determines the character encoding of a stylesheet
// and decodes it to text, following
// http://www.w3.org/TR/CSS21/syndata.html#charset
//
// The encoding is taken from, in order of priority:
//
//  1. The protocol (e.g. the charset parameter of the Content-Type header)
//  2. The BOM and/or the @charset rule at the very start of the stylesheet
//  3. The linking mechanism (e.g. <link charset="">)
//  4. The referring style sheet or document
//  5. UTF-8
//
// The first candidate that decodes the stylesheet wins. Only the
// UTF-8 fallback is allowed to fail the whole operation.
package cssdecode

import (
	"context"
	"log/slog"
	"strings"

	"github.com/lestrrat-go/cssdecode/encoding"
	"github.com/lestrrat-go/pdebug"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

const fallbackEncoding = "UTF-8"

// Decode decodes css, a stylesheet as raw bytes, to text. Any BOM is
// removed from the result.
//
// The encoding metadata known to the caller is passed via
// WithProtocolEncoding, WithLinkingEncoding and WithDocumentEncoding.
// If none of the candidate encodings work and css is not valid UTF-8
// either, a *DecodeError is returned.
func Decode(ctx context.Context, css []byte, options ...DecodeOption) (string, error) {
	res, err := DecodeResult(ctx, css, options...)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// DecodeResult works like Decode, but also reports which encoding
// was used and which tier it came from.
func DecodeResult(ctx context.Context, css []byte, options ...DecodeOption) (*Result, error) {
	var r resolver
	for _, option := range options {
		switch option.Ident() {
		case identProtocolEncoding{}:
			r.protocol = option.Value().(string)
		case identLinkingEncoding{}:
			r.linking = option.Value().(string)
		case identDocumentEncoding{}:
			r.document = option.Value().(string)
		}
	}
	r.tlog = getTraceLogFromContext(ctx)

	return r.resolve(css)
}

type resolver struct {
	protocol string
	linking  string
	document string
	tlog     *slog.Logger
	attempts error
}

func (r *resolver) resolve(css []byte) (*Result, error) {
	if pdebug.Enabled {
		pdebug.Printf("START resolve (%d bytes)", len(css))
		defer pdebug.Printf("END   resolve")
	}

	if r.protocol != "" {
		if s, ok := r.try(css, r.protocol, SourceProtocol); ok {
			return &Result{Text: s, Encoding: r.protocol, Source: SourceProtocol}, nil
		}
	}

	if res, ok := r.sniff(css); ok {
		return res, nil
	}

	for _, candidate := range []struct {
		name   string
		source Source
	}{
		{r.linking, SourceLinking},
		{r.document, SourceDocument},
	} {
		if candidate.name == "" {
			continue
		}
		if s, ok := r.try(css, candidate.name, candidate.source); ok {
			return &Result{Text: s, Encoding: candidate.name, Source: candidate.source}, nil
		}
	}

	s, err := tryEncoding(css, fallbackEncoding)
	if err != nil {
		r.tlog.Debug("fallback decode failed",
			slog.String("tier", SourceFallback.String()),
			slog.String("encoding", fallbackEncoding),
			slog.Any("error", err),
		)
		derr := &DecodeError{
			Encoding: fallbackEncoding,
			Offset:   -1,
			Err:      err,
			attempts: r.attempts,
		}
		var ierr *encoding.InvalidByteSequenceError
		if errors.As(err, &ierr) {
			derr.Offset = ierr.Offset
		}
		return nil, derr
	}

	r.tlog.Debug("decoded",
		slog.String("tier", SourceFallback.String()),
		slog.String("encoding", fallbackEncoding),
	)
	return &Result{Text: s, Encoding: fallbackEncoding, Source: SourceFallback}, nil
}

// sniff looks for a BOM and/or @charset rule. At most one signature
// is tried: if its encoding does not work out, sniffing gives up.
func (r *resolver) sniff(css []byte) (*Result, bool) {
	sig, capture, ok := sniff(css)
	if !ok {
		return nil, false
	}

	name, declared := sig.encodingName(capture)
	s, ok := r.try(css, name, SourceSniffed)
	if !ok {
		return nil, false
	}

	// A declared encoding must decode the stylesheet into something
	// that still starts with the @charset rule it was read from.
	if declared && !strings.HasPrefix(s, charsetRule) {
		r.tlog.Debug("rejected sniffed encoding",
			slog.String("tier", SourceSniffed.String()),
			slog.String("encoding", name),
			slog.Bool("declared", declared),
		)
		return nil, false
	}
	return &Result{Text: s, Encoding: name, Source: SourceSniffed}, true
}

// try is a trial decode: failures are recorded, never returned
func (r *resolver) try(css []byte, name string, source Source) (string, bool) {
	s, err := tryEncoding(css, name)
	if err != nil {
		r.tlog.Debug("trial decode failed",
			slog.String("tier", source.String()),
			slog.String("encoding", name),
			slog.Any("error", err),
		)
		r.attempts = multierr.Append(r.attempts, errors.Wrapf(err, `%s encoding`, source))
		return "", false
	}

	r.tlog.Debug("decoded",
		slog.String("tier", source.String()),
		slog.String("encoding", name),
	)
	return s, true
}

func tryEncoding(css []byte, name string) (string, error) {
	s, err := encoding.Decode(css, name)
	if err != nil {
		return "", err
	}
	return encoding.StripBOM(s), nil
}
