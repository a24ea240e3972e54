package cssdecode

import (
	"bytes"
	"strings"

	"github.com/lestrrat-go/pdebug"
)

// code unit layouts of the `@charset "...";` preamble
var (
	unitASCII   = charsetUnit{size: 1, pos: 0}
	unitUTF16BE = charsetUnit{size: 2, pos: 1}
	unitUTF16LE = charsetUnit{size: 2, pos: 0}
	unitUTF32BE = charsetUnit{size: 4, pos: 3}
	unitUTF32LE = charsetUnit{size: 4, pos: 0}
)

// BOM patterns
var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16BE = []byte{0xFE, 0xFF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF32BE = []byte{0x00, 0x00, 0xFE, 0xFF}
	bomUTF32LE = []byte{0xFF, 0xFE, 0x00, 0x00}
)

const charsetRule = `@charset "`

// signatures is the ordered list of recognized preambles. The first
// entry whose pattern matches wins, so longer (BOM + @charset) forms
// must come before the bare BOMs they start with.
//
// Not recognized: the UCS-4 2143 and 3412 byte orders (BOMs
// 00 00 FF FE and FE FF 00 00), and @charset rules written in
// EBCDIC, IBM1026 or GSM 03.38. There is no decoder for any of
// these in golang.org/x/text.
var signatures = []signature{
	declaredSignature(bomUTF8, unitASCII, ""),
	fixedSignature(bomUTF8, "UTF-8"),
	declaredSignature(nil, unitASCII, ""),
	declaredSignature(bomUTF16BE, unitUTF16BE, "-BE"),
	declaredSignature(nil, unitUTF16BE, "-BE"),
	declaredSignature(bomUTF16LE, unitUTF16LE, "-LE"),
	declaredSignature(nil, unitUTF16LE, "-LE"),
	declaredSignature(bomUTF32BE, unitUTF32BE, "-BE"),
	declaredSignature(nil, unitUTF32BE, "-BE"),
	declaredSignature(bomUTF32LE, unitUTF32LE, "-LE"),
	declaredSignature(nil, unitUTF32LE, "-LE"),
	fixedSignature(bomUTF32BE, "UTF-32-BE"),
	fixedSignature(bomUTF32LE, "UTF-32-LE"),
	fixedSignature(bomUTF16BE, "UTF-16-BE"),
	fixedSignature(bomUTF16LE, "UTF-16-LE"),
}

func fixedSignature(bom []byte, name string) signature {
	return signature{
		bomLength: len(bom),
		spec:      fixedEncoding{name: name},
		prefix:    bom,
	}
}

func declaredSignature(bom []byte, unit charsetUnit, suffix string) signature {
	prefix := make([]byte, 0, len(bom)+len(charsetRule)*unit.size)
	prefix = append(prefix, bom...)
	prefix = append(prefix, unit.encode(charsetRule)...)
	return signature{
		bomLength: len(bom),
		spec: declaredEncoding{
			start:  unit.pos,
			step:   unit.size,
			suffix: suffix,
		},
		prefix: prefix,
		unit:   unit,
	}
}

// encode lays out ASCII text in this code unit layout
func (u charsetUnit) encode(s string) []byte {
	b := make([]byte, len(s)*u.size)
	for i := 0; i < len(s); i++ {
		b[i*u.size+u.pos] = s[i]
	}
	return b
}

// char returns the ASCII byte of the code unit at the head of b. It
// fails if b is too short or any of the padding bytes is non-zero
func (u charsetUnit) char(b []byte) (byte, bool) {
	if len(b) < u.size {
		return 0, false
	}
	for i := 0; i < u.size; i++ {
		if i != u.pos && b[i] != 0x00 {
			return 0, false
		}
	}
	return b[u.pos], true
}

// match reports whether b starts with this signature. For @charset
// signatures the bytes between the quotes are returned as well.
func (s *signature) match(b []byte) ([]byte, bool) {
	if !bytes.HasPrefix(b, s.prefix) {
		return nil, false
	}

	if s.unit.size == 0 {
		return nil, true
	}

	rest := b[len(s.prefix):]
	for i := 0; i < len(rest); i += s.unit.size {
		c, ok := s.unit.char(rest[i:])
		if !ok {
			return nil, false
		}
		if c != '"' {
			continue
		}

		// the closing quote must be followed by ';'
		if c, ok := s.unit.char(rest[i+s.unit.size:]); !ok || c != ';' {
			return nil, false
		}
		return rest[:i], true
	}
	return nil, false
}

// sniff returns the first signature that matches the head of b.
// Only one signature ever applies.
func sniff(b []byte) (*signature, []byte, bool) {
	for i := range signatures {
		sig := &signatures[i]
		if capture, ok := sig.match(b); ok {
			if pdebug.Enabled {
				pdebug.Printf("sniff: signature #%d matched (bom=%d)", i+1, sig.bomLength)
			}
			return sig, capture, true
		}
	}
	return nil, nil, false
}

// encodingName resolves the encoding named by this signature. declared
// is true when the name was taken from an @charset rule.
func (s *signature) encodingName(capture []byte) (name string, declared bool) {
	switch spec := s.spec.(type) {
	case fixedEncoding:
		return spec.name, false
	case declaredEncoding:
		name = asciiReplace(pick(capture, spec.start, spec.step))
		switch strings.ToLower(strings.NewReplacer("-", "", "_", "").Replace(name)) {
		case "utf16", "utf32":
			name += spec.suffix
		}
		return name, true
	}
	panic("unreachable")
}

// pick selects every step'th byte of b, starting at start
func pick(b []byte, start, step int) []byte {
	out := make([]byte, 0, len(b)/step+1)
	for i := start; i < len(b); i += step {
		out = append(out, b[i])
	}
	return out
}

// asciiReplace decodes b as ASCII, substituting U+FFFD for
// anything outside of it
func asciiReplace(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		if c >= 0x80 {
			sb.WriteRune('\uFFFD')
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}
