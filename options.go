package cssdecode

import "github.com/lestrrat-go/option"

type Option = option.Interface

type identProtocolEncoding struct{}
type identLinkingEncoding struct{}
type identDocumentEncoding struct{}

type DecodeOption interface {
	Option
	decodeOption()
}

type decodeOption struct{ Option }

func (*decodeOption) decodeOption() {}

// WithProtocolEncoding specifies the "charset" parameter of a
// Content-Type HTTP header, or similar metadata for other protocols.
// When it decodes the stylesheet, it is used without looking at the
// stylesheet's own @charset rule.
func WithProtocolEncoding(v string) DecodeOption {
	return &decodeOption{option.New(identProtocolEncoding{}, v)}
}

// WithLinkingEncoding specifies the encoding given by the linking
// mechanism, such as <link charset="">
func WithLinkingEncoding(v string) DecodeOption {
	return &decodeOption{option.New(identLinkingEncoding{}, v)}
}

// WithDocumentEncoding specifies the encoding of the referring style
// sheet or document
func WithDocumentEncoding(v string) DecodeOption {
	return &decodeOption{option.New(identDocumentEncoding{}, v)}
}
