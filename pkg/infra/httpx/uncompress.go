package httpx

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// ErrBodyTooLarge is returned when a decoded body would exceed the limit.
var ErrBodyTooLarge = errors.New("decoded body exceeds limit")

// DecodeChain undoes a Content-Encoding chain (e.g. "gzip, br"), last
// applied first. Supported: br, gzip, zstd, deflate (zlib-wrapped or raw).
// Every stage is capped at limit bytes so a small compressed payload cannot
// expand without bound; limit <= 0 disables the cap.
func DecodeChain(contentEncoding string, body []byte, limit int) ([]byte, bool, error) {
	if strings.TrimSpace(contentEncoding) == "" {
		return body, false, nil
	}
	encodings := strings.Split(contentEncoding, ",")
	changed := false
	for i := len(encodings) - 1; i >= 0; i-- {
		enc := strings.TrimSpace(strings.ToLower(encodings[i]))
		var (
			out []byte
			err error
		)
		switch enc {
		case "br":
			out, err = readLimited(brotli.NewReader(bytes.NewReader(body)), limit)
		case "gzip", "x-gzip":
			out, err = decodeGzip(body, limit)
		case "zstd":
			out, err = decodeZstd(body, limit)
		case "deflate":
			out, err = decodeDeflate(body, limit)
		case "identity", "":
			continue
		default:
			return nil, false, fmt.Errorf("unsupported content-encoding: %q", enc)
		}
		if err != nil {
			return nil, false, fmt.Errorf("%s: %w", enc, err)
		}
		body = out
		changed = true
	}
	return body, changed, nil
}

func readLimited(r io.Reader, limit int) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	out, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, err
	}
	if len(out) > limit {
		return nil, ErrBodyTooLarge
	}
	return out, nil
}

func decodeGzip(body []byte, limit int) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer gr.Close()
	return readLimited(gr, limit)
}

func decodeZstd(body []byte, limit int) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return readLimited(dec, limit)
}

func decodeDeflate(body []byte, limit int) ([]byte, error) {
	if zr, err := zlib.NewReader(bytes.NewReader(body)); err == nil {
		defer zr.Close()
		return readLimited(zr, limit)
	}
	fr := flate.NewReader(bytes.NewReader(body))
	defer fr.Close()
	return readLimited(fr, limit)
}
