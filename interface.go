package cssdecode

// Version of the library
const Version = "v0.1.0"

// Source identifies the resolution tier that produced the decoded text
type Source int

const (
	SourceProtocol Source = iota + 1
	SourceSniffed
	SourceLinking
	SourceDocument
	SourceFallback
)

// Result is what DecodeResult returns: the text, along with the
// encoding that was used to decode it and where that encoding came from.
type Result struct {
	Text     string
	Encoding string
	Source   Source
}

// DecodeError is returned when every tier, including the final
// UTF-8 fallback, failed to decode the stylesheet.
type DecodeError struct {
	// Encoding is the encoding of the final attempt (always UTF-8)
	Encoding string
	// Offset of the first invalid byte, or -1
	Offset   int
	Err      error
	attempts error
}

// charsetUnit describes how ASCII is laid out in one code unit:
// size bytes wide, with the ASCII byte at pos and zeros elsewhere.
type charsetUnit struct {
	size int
	pos  int
}

// encodingSpec is either a fixedEncoding or a declaredEncoding
type encodingSpec interface {
	encodingSpec()
}

// fixedEncoding names the encoding outright (BOM-only signatures)
type fixedEncoding struct {
	name string
}

// declaredEncoding takes the name from the @charset rule. The name
// is made of every step'th byte of the captured text starting at
// start; suffix disambiguates endianness for the bare "UTF-16" and
// "UTF-32" names.
type declaredEncoding struct {
	start  int
	step   int
	suffix string
}

func (fixedEncoding) encodingSpec()    {}
func (declaredEncoding) encodingSpec() {}

type signature struct {
	bomLength int
	spec      encodingSpec
	prefix    []byte
	unit      charsetUnit
}
