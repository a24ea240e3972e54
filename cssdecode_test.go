package cssdecode_test

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/lestrrat-go/cssdecode"
	"github.com/lestrrat-go/cssdecode/encoding"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	xencoding "golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16BE = []byte{0xFE, 0xFF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF32BE = []byte{0x00, 0x00, 0xFE, 0xFF}
	bomUTF32LE = []byte{0xFF, 0xFE, 0x00, 0x00}
)

var (
	utf16BE = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	utf32BE = utf32.UTF32(utf32.BigEndian, utf32.IgnoreBOM)
	utf32LE = utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM)
)

func encodeWith(t *testing.T, bom []byte, e xencoding.Encoding, s string) []byte {
	t.Helper()
	b, err := e.NewEncoder().Bytes([]byte(s))
	require.NoError(t, err, "encoding test fixture should succeed")
	return append(append([]byte{}, bom...), b...)
}

func decode(t *testing.T, css []byte, options ...cssdecode.DecodeOption) *cssdecode.Result {
	t.Helper()
	res, err := cssdecode.DecodeResult(context.Background(), css, options...)
	require.NoError(t, err, "DecodeResult should succeed")
	return res
}

func TestDecodeRoundTrip(t *testing.T) {
	const body = `;p:before{content:"caf` + "é ☃" + `"}`
	const latin1Body = `;p:before{content:"caf` + "é" + `"}`

	data := []struct {
		name     string
		bom      []byte
		enc      xencoding.Encoding
		text     string
		encoding string
	}{
		{"UTF-8", nil, unicode.UTF8, `@charset "UTF-8"` + body, "UTF-8"},
		{"UTF-8 with BOM", bomUTF8, unicode.UTF8, `@charset "utf-8"` + body, "utf-8"},
		{"ISO-8859-1", nil, charmap.ISO8859_1, `@charset "ISO-8859-1"` + latin1Body, "ISO-8859-1"},
		{"KOI8-R", nil, charmap.KOI8R, `@charset "KOI8-R";p{content:"` + "привет" + `"}`, "KOI8-R"},
		{"UTF-16BE with BOM", bomUTF16BE, utf16BE, `@charset "UTF-16"` + body, "UTF-16-BE"},
		{"UTF-16BE", nil, utf16BE, `@charset "UTF-16"` + body, "UTF-16-BE"},
		{"UTF-16BE, explicit", nil, utf16BE, `@charset "UTF-16BE"` + body, "UTF-16BE"},
		{"UTF-16LE with BOM", bomUTF16LE, utf16LE, `@charset "utf-16"` + body, "utf-16-LE"},
		{"UTF-16LE", nil, utf16LE, `@charset "UTF-16LE"` + body, "UTF-16LE"},
		{"UTF-32BE with BOM", bomUTF32BE, utf32BE, `@charset "UTF-32"` + body, "UTF-32-BE"},
		{"UTF-32BE", nil, utf32BE, `@charset "UTF-32"` + body, "UTF-32-BE"},
		{"UTF-32LE with BOM", bomUTF32LE, utf32LE, `@charset "UTF-32"` + body, "UTF-32-LE"},
		{"UTF-32LE", nil, utf32LE, `@charset "UTF_32LE"` + body, "UTF_32LE"},
	}

	for _, tc := range data {
		t.Run(tc.name, func(t *testing.T) {
			css := encodeWith(t, tc.bom, tc.enc, tc.text)

			res := decode(t, css)
			require.Equal(t, tc.text, res.Text, "text should survive the round trip")
			require.Equal(t, tc.encoding, res.Encoding, "encoding matches")
			require.Equal(t, cssdecode.SourceSniffed, res.Source, "encoding should be sniffed")

			s, err := cssdecode.Decode(context.Background(), css)
			require.NoError(t, err, "Decode should succeed")
			require.Equal(t, tc.text, s, "Decode and DecodeResult agree")
		})
	}
}

func TestDecodeProtocolEncoding(t *testing.T) {
	const text = `@charset "ISO-8859-1";p{content:"caf` + "é" + `"}`
	css := []byte(text) // UTF-8, despite what the @charset rule says

	t.Run("protocol encoding wins", func(t *testing.T) {
		res := decode(t, css, cssdecode.WithProtocolEncoding("UTF-8"))
		require.Equal(t, text, res.Text)
		require.Equal(t, cssdecode.SourceProtocol, res.Source)
		require.Equal(t, "UTF-8", res.Encoding)
	})
	t.Run("without it, @charset wins", func(t *testing.T) {
		res := decode(t, css)
		require.Equal(t, `@charset "ISO-8859-1";p{content:"caf`+"\u00c3\u00a9"+`"}`, res.Text)
		require.Equal(t, cssdecode.SourceSniffed, res.Source)
	})
	t.Run("over linking and document encodings", func(t *testing.T) {
		res := decode(t, css,
			cssdecode.WithLinkingEncoding("KOI8-R"),
			cssdecode.WithDocumentEncoding("windows-1251"),
			cssdecode.WithProtocolEncoding("utf8"),
		)
		require.Equal(t, text, res.Text)
		require.Equal(t, cssdecode.SourceProtocol, res.Source)
	})
	t.Run("BOM is stripped", func(t *testing.T) {
		res := decode(t, append(append([]byte{}, bomUTF8...), css...), cssdecode.WithProtocolEncoding("UTF-8"))
		require.Equal(t, text, res.Text)
		require.Equal(t, cssdecode.SourceProtocol, res.Source)
	})

	latin1 := encodeWith(t, nil, charmap.ISO8859_1, text)
	for _, name := range []string{"UTF-8", "bogus", "UTF-32"} {
		t.Run("unusable protocol encoding "+name, func(t *testing.T) {
			res := decode(t, latin1, cssdecode.WithProtocolEncoding(name))
			require.Equal(t, text, res.Text)
			require.Equal(t, cssdecode.SourceSniffed, res.Source)
			require.Equal(t, "ISO-8859-1", res.Encoding)
		})
	}
}

func TestDecodeSniffing(t *testing.T) {
	t.Run("UTF-8 BOM without @charset", func(t *testing.T) {
		res := decode(t, []byte("\xef\xbb\xbfp{content:\"\xe2\x98\x83\"}"))
		require.Equal(t, "p{content:\"☃\"}", res.Text)
		require.Equal(t, "UTF-8", res.Encoding)
		require.Equal(t, cssdecode.SourceSniffed, res.Source)
	})
	t.Run("UTF-16LE BOM without @charset", func(t *testing.T) {
		res := decode(t, encodeWith(t, bomUTF16LE, utf16LE, "a{}"))
		require.Equal(t, "a{}", res.Text)
		require.Equal(t, "UTF-16-LE", res.Encoding)
	})
	t.Run("UTF-32BE BOM without @charset", func(t *testing.T) {
		res := decode(t, encodeWith(t, bomUTF32BE, utf32BE, "a{}"))
		require.Equal(t, "a{}", res.Text)
		require.Equal(t, "UTF-32-BE", res.Encoding)
	})
	t.Run("@charset must survive the decode", func(t *testing.T) {
		// decoding the UTF-8 BOM as ISO-8859-1 yields "ï»¿" in front of the rule
		const text = `@charset "ISO-8859-1";a{}`
		res := decode(t, append(append([]byte{}, bomUTF8...), text...))
		require.Equal(t, text, res.Text)
		require.Equal(t, cssdecode.SourceFallback, res.Source)
	})
	t.Run("only one signature is tried", func(t *testing.T) {
		// matches UTF-8 BOM + @charset, whose UTF-16 decode is garbage.
		// The bare UTF-8 BOM signature must not be tried after that.
		const text = `@charset "UTF-16";a{}`
		css := append(append([]byte{}, bomUTF8...), text...)
		res := decode(t, css, cssdecode.WithLinkingEncoding("ISO-8859-1"))
		require.Equal(t, "\u00ef\u00bb\u00bf"+text, res.Text)
		require.Equal(t, cssdecode.SourceLinking, res.Source)
	})
	t.Run("unknown declared encoding", func(t *testing.T) {
		const text = `@charset "bogus";a{}`
		res := decode(t, []byte(text))
		require.Equal(t, text, res.Text)
		require.Equal(t, cssdecode.SourceFallback, res.Source)

		res = decode(t, []byte(text), cssdecode.WithDocumentEncoding("KOI8-R"))
		require.Equal(t, text, res.Text)
		require.Equal(t, cssdecode.SourceDocument, res.Source)
	})
	t.Run("ASCII @charset", func(t *testing.T) {
		const text = `@charset "ascii";a{}`
		res := decode(t, []byte(text))
		require.Equal(t, text, res.Text)
		require.Equal(t, "ascii", res.Encoding)
		require.Equal(t, cssdecode.SourceSniffed, res.Source)

		// a non-ASCII byte rules the declared encoding out
		const latin = `@charset "US-ASCII";p{content:"caf` + "\u00e9" + `"}`
		res = decode(t, []byte(latin))
		require.Equal(t, latin, res.Text)
		require.Equal(t, cssdecode.SourceFallback, res.Source)
	})
	t.Run("BOM only", func(t *testing.T) {
		res := decode(t, bomUTF8)
		require.Equal(t, "", res.Text)
		require.Equal(t, "UTF-8", res.Encoding)
		require.Equal(t, cssdecode.SourceSniffed, res.Source)

		res = decode(t, bomUTF16LE)
		require.Equal(t, "", res.Text)
		require.Equal(t, "UTF-16-LE", res.Encoding)
		require.Equal(t, cssdecode.SourceSniffed, res.Source)
	})
}

func TestDecodeLinkingAndDocument(t *testing.T) {
	css := []byte("a{}\xc1") // not UTF-8

	res := decode(t, css, cssdecode.WithLinkingEncoding("KOI8-R"), cssdecode.WithDocumentEncoding("ISO-8859-1"))
	require.Equal(t, "a{}\u0430", res.Text)
	require.Equal(t, cssdecode.SourceLinking, res.Source)

	res = decode(t, css, cssdecode.WithLinkingEncoding("bogus"), cssdecode.WithDocumentEncoding("ISO-8859-1"))
	require.Equal(t, "a{}\u00c1", res.Text)
	require.Equal(t, cssdecode.SourceDocument, res.Source)
	require.Equal(t, "ISO-8859-1", res.Encoding)

	res = decode(t, css, cssdecode.WithLinkingEncoding(""), cssdecode.WithDocumentEncoding("KOI8-R"))
	require.Equal(t, "a{}\u0430", res.Text)
	require.Equal(t, cssdecode.SourceDocument, res.Source)
}

func TestDecodeFallback(t *testing.T) {
	t.Run("plain ASCII", func(t *testing.T) {
		const text = "a{color:red}\n"
		res := decode(t, []byte(text))
		require.Equal(t, text, res.Text)
		require.Equal(t, "UTF-8", res.Encoding)
		require.Equal(t, cssdecode.SourceFallback, res.Source)
	})
	t.Run("empty input", func(t *testing.T) {
		res := decode(t, nil)
		require.Equal(t, "", res.Text)
		require.Equal(t, cssdecode.SourceFallback, res.Source)
	})
	t.Run("invalid UTF-8", func(t *testing.T) {
		s, err := cssdecode.Decode(context.Background(), []byte("a{}\xff"))
		require.Error(t, err, "Decode should fail")
		require.Empty(t, s)
		require.Contains(t, err.Error(), "neither declared nor sniffed nor fallback UTF-8 decoding succeeded")
		require.True(t, errors.Is(err, encoding.ErrInvalidByteSequence), "error should be ErrInvalidByteSequence")

		var derr *cssdecode.DecodeError
		require.True(t, errors.As(err, &derr), "error should be *DecodeError")
		require.Equal(t, "UTF-8", derr.Encoding)
		require.Equal(t, 3, derr.Offset)
		require.Empty(t, derr.Attempts())
	})
	t.Run("failed attempts are reported", func(t *testing.T) {
		_, err := cssdecode.Decode(context.Background(), []byte("a{}\xff"),
			cssdecode.WithProtocolEncoding("bogus"),
			cssdecode.WithLinkingEncoding("UTF-32"),
			cssdecode.WithDocumentEncoding("utf-8"),
		)
		var derr *cssdecode.DecodeError
		require.True(t, errors.As(err, &derr), "error should be *DecodeError")

		attempts := derr.Attempts()
		require.Len(t, attempts, 3)
		require.True(t, errors.Is(attempts[0], encoding.ErrUnknownEncoding), "protocol encoding is unknown")
		require.True(t, errors.Is(attempts[1], encoding.ErrInvalidByteSequence), "linking encoding does not fit")
		require.True(t, errors.Is(attempts[2], encoding.ErrInvalidByteSequence), "document encoding does not fit")
	})
}

func TestDecodeConcurrent(t *testing.T) {
	css := encodeWith(t, bomUTF16BE, utf16BE, `@charset "UTF-16";a{}`)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := cssdecode.Decode(context.Background(), css)
			if err != nil || s != `@charset "UTF-16";a{}` {
				t.Errorf("unexpected result %q (%v)", s, err)
			}
		}()
	}
	wg.Wait()
}

func TestDecodeTraceLogger(t *testing.T) {
	if !cssdecode.TracingEnabled {
		t.Skip("Tracing disabled - skipping trace logger test")
		return
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := cssdecode.WithTraceLogger(context.Background(), logger)

	_, err := cssdecode.Decode(ctx, []byte("a{}"), cssdecode.WithProtocolEncoding("bogus"))
	require.NoError(t, err)

	output := buf.String()
	require.Contains(t, output, "trial decode failed")
	require.Contains(t, output, `"tier":"protocol"`)
	require.Contains(t, output, `"encoding":"bogus"`)
	require.Contains(t, output, `"tier":"fallback"`)
}
