// Package encoding wraps around the various encoding stuff in
// golang.org/x/text/encoding. Part of the reason this exists is that
// the package names such as "unicode" clash with the stdlib, and
// it's rather easier if we just hide it from cssdecode.
//
// On top of the lookup, this package provides the strict "trial decode"
// primitive: a decode either yields the complete text, or it fails. The
// x/text decoders silently substitute U+FFFD for bad input, which is
// not good enough when the caller needs to move on to the next candidate
// encoding.
package encoding

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	enc "golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
)

var (
	ErrUnknownEncoding     = errors.New("unknown encoding")
	ErrInvalidByteSequence = errors.New("invalid byte sequence")
)

// BOM is the byte-order mark code point
const BOM = '\uFEFF'

// InvalidByteSequenceError is returned by Decode when the input is not
// valid under the named encoding. Offset is the byte offset of the first
// offending byte, or -1 if the decoder cannot tell.
type InvalidByteSequenceError struct {
	Encoding string
	Offset   int
}

func (e *InvalidByteSequenceError) Error() string {
	if e.Offset < 0 {
		return fmt.Sprintf("'%s' codec can't decode input: %s", e.Encoding, ErrInvalidByteSequence)
	}
	return fmt.Sprintf("'%s' codec can't decode byte at position %d: %s", e.Encoding, e.Offset, ErrInvalidByteSequence)
}

func (e *InvalidByteSequenceError) Unwrap() error {
	return ErrInvalidByteSequence
}

// Normalize lowercases name and drops '-', '_' and blanks, so that
// "UTF-16-BE", "utf_16be" and "utf16BE" all compare equal.
func Normalize(name string) string {
	var sb strings.Builder
	sb.Grow(len(name))
	for _, c := range strings.ToLower(name) {
		switch c {
		case '-', '_', ' ', '\t', '\n', '\r', '\f':
			continue
		}
		sb.WriteRune(c)
	}
	return sb.String()
}

// IsUTF8 returns true if name is one of the aliases of UTF-8
func IsUTF8(name string) bool {
	switch Normalize(name) {
	case "utf8", "u8", "utf", "cp65001":
		return true
	}
	return false
}

// Load returns the encoding registered under name. Names are matched
// after normalization (see Normalize); names that are not in the
// built-in alias list are looked up in the IANA index.
func Load(name string) (enc.Encoding, error) {
	if e := lookup(Normalize(name)); e != nil {
		return e, nil
	}

	e, err := ianaindex.IANA.Encoding(strings.TrimSpace(name))
	if err != nil || e == nil {
		return nil, errors.Wrapf(ErrUnknownEncoding, `encoding '%s'`, name)
	}
	return e, nil
}

func lookup(name string) enc.Encoding {
	switch name {
	case "utf8", "u8", "utf", "cp65001":
		return unicode.UTF8
	case "ascii", "usascii", "646", "us":
		// the IANA index carries the only strict 7-bit decoder in x/text
		e, _ := ianaindex.IANA.Encoding("US-ASCII")
		return e
	case "utf16", "u16":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
	case "utf16be", "unicodebigunmarked":
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	case "utf16le", "unicodelittleunmarked":
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	case "utf32", "u32":
		return utf32.UTF32(utf32.LittleEndian, utf32.UseBOM)
	case "utf32be":
		return utf32.UTF32(utf32.BigEndian, utf32.IgnoreBOM)
	case "utf32le":
		return utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM)
	case "eucjp", "ujis":
		return japanese.EUCJP
	case "shiftjis", "sjis", "cp932", "ms932", "mskanji":
		return japanese.ShiftJIS
	case "jis", "iso2022jp", "csiso2022jp":
		return japanese.ISO2022JP
	case "big5", "big5tw", "csbig5":
		return traditionalchinese.Big5
	case "euckr", "cp949", "ksc5601":
		return korean.EUCKR
	case "gbk", "cp936", "ms936":
		return simplifiedchinese.GBK
	case "gb18030":
		return simplifiedchinese.GB18030
	case "hz", "hzgb2312", "hzgb":
		return simplifiedchinese.HZGB2312
	case "cp437", "ibm437", "437":
		return charmap.CodePage437
	case "cp850", "ibm850", "850":
		return charmap.CodePage850
	case "cp852", "ibm852", "852":
		return charmap.CodePage852
	case "cp855", "ibm855", "855":
		return charmap.CodePage855
	case "cp858", "ibm858", "858":
		return charmap.CodePage858
	case "cp860", "ibm860", "860":
		return charmap.CodePage860
	case "cp862", "ibm862", "862":
		return charmap.CodePage862
	case "cp863", "ibm863", "863":
		return charmap.CodePage863
	case "cp865", "ibm865", "865":
		return charmap.CodePage865
	case "cp866", "ibm866", "866":
		return charmap.CodePage866
	case "latin1", "latin", "l1", "iso88591", "iso8859", "8859", "cp819":
		return charmap.ISO8859_1
	case "latin2", "l2", "iso88592":
		return charmap.ISO8859_2
	case "latin3", "l3", "iso88593":
		return charmap.ISO8859_3
	case "latin4", "l4", "iso88594":
		return charmap.ISO8859_4
	case "cyrillic", "iso88595":
		return charmap.ISO8859_5
	case "arabic", "iso88596":
		return charmap.ISO8859_6
	case "greek", "greek8", "iso88597":
		return charmap.ISO8859_7
	case "hebrew", "iso88598":
		return charmap.ISO8859_8
	case "latin5", "l5", "iso88599":
		return charmap.ISO8859_9
	case "latin6", "l6", "iso885910":
		return charmap.ISO8859_10
	case "iso885913", "l7", "latin7":
		return charmap.ISO8859_13
	case "iso885914", "l8", "latin8":
		return charmap.ISO8859_14
	case "iso885915", "l9", "latin9":
		return charmap.ISO8859_15
	case "iso885916", "l10", "latin10":
		return charmap.ISO8859_16
	case "koi8r":
		return charmap.KOI8R
	case "koi8u":
		return charmap.KOI8U
	case "macintosh", "macroman", "mac":
		return charmap.Macintosh
	case "maccyrillic", "macintoshcyrillic":
		return charmap.MacintoshCyrillic
	case "windows1250", "cp1250":
		return charmap.Windows1250
	case "windows1251", "cp1251":
		return charmap.Windows1251
	case "windows1252", "cp1252":
		return charmap.Windows1252
	case "windows1253", "cp1253":
		return charmap.Windows1253
	case "windows1254", "cp1254":
		return charmap.Windows1254
	case "windows1255", "cp1255":
		return charmap.Windows1255
	case "windows1256", "cp1256":
		return charmap.Windows1256
	case "windows1257", "cp1257":
		return charmap.Windows1257
	case "windows1258", "cp1258":
		return charmap.Windows1258
	case "windows874", "cp874":
		return charmap.Windows874
	case "xuserdefined":
		return charmap.XUserDefined
	}
	return nil
}

// Decode performs a strict decode of b under the named encoding.
// The returned text is complete: a leading BOM, if the encoding
// leaves one in place, is NOT removed (see StripBOM).
//
// An unknown name results in an error wrapping ErrUnknownEncoding, and
// input that cannot be represented under the encoding results in an
// *InvalidByteSequenceError.
func Decode(b []byte, name string) (string, error) {
	if IsUTF8(name) {
		return decodeUTF8(b, name)
	}

	e, err := Load(name)
	if err != nil {
		return "", err
	}

	out, err := e.NewDecoder().Bytes(b)
	if err != nil {
		return "", &InvalidByteSequenceError{Encoding: name, Offset: -1}
	}

	// x/text decoders replace what they can't decode with U+FFFD.
	// A replacement character that was really in the source survives
	// a round trip; one that was made up by the decoder does not.
	if bytes.ContainsRune(out, utf8.RuneError) && !roundTrips(e, b, out) {
		return "", &InvalidByteSequenceError{Encoding: name, Offset: -1}
	}
	return string(out), nil
}

func roundTrips(e enc.Encoding, src, decoded []byte) bool {
	re, err := e.NewEncoder().Bytes(decoded)
	if err != nil {
		return false
	}
	return bytes.Equal(re, src)
}

func decodeUTF8(b []byte, name string) (string, error) {
	if utf8.Valid(b) {
		return string(b), nil
	}

	for i := 0; i < len(b); {
		r, n := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && n <= 1 {
			return "", &InvalidByteSequenceError{Encoding: name, Offset: i}
		}
		i += n
	}
	return "", &InvalidByteSequenceError{Encoding: name, Offset: -1}
}

// StripBOM removes exactly one leading U+FEFF from s, if present
func StripBOM(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if r == BOM {
		return s[n:]
	}
	return s
}
