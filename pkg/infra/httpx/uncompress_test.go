package httpx

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipCompress(data []byte) []byte {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, _ = gz.Write(data)
	_ = gz.Close()
	return buf.Bytes()
}

func brCompress(data []byte) []byte {
	var buf bytes.Buffer
	br := brotli.NewWriter(&buf)
	_, _ = br.Write(data)
	_ = br.Close()
	return buf.Bytes()
}

func zstdCompress(data []byte) []byte {
	var buf bytes.Buffer
	zw, _ := zstd.NewWriter(&buf)
	_, _ = zw.Write(data)
	_ = zw.Close()
	return buf.Bytes()
}

func zlibCompress(data []byte) []byte {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, _ = zw.Write(data)
	_ = zw.Close()
	return buf.Bytes()
}

func rawDeflateCompress(data []byte) []byte {
	var buf bytes.Buffer
	dw, _ := flate.NewWriter(&buf, flate.DefaultCompression)
	_, _ = dw.Write(data)
	_ = dw.Close()
	return buf.Bytes()
}

func TestDecodeChain(t *testing.T) {
	plain := []byte("id=1 UNION SELECT password FROM users")

	tests := []struct {
		name     string
		encoding string
		body     []byte
		changed  bool
	}{
		{name: "no encoding", encoding: "", body: plain},
		{name: "identity", encoding: "identity", body: plain},
		{name: "gzip", encoding: "gzip", body: gzipCompress(plain), changed: true},
		{name: "brotli", encoding: "br", body: brCompress(plain), changed: true},
		{name: "zstd", encoding: "zstd", body: zstdCompress(plain), changed: true},
		{name: "deflate zlib", encoding: "deflate", body: zlibCompress(plain), changed: true},
		{name: "deflate raw", encoding: "deflate", body: rawDeflateCompress(plain), changed: true},
		{name: "chained", encoding: "gzip, br", body: brCompress(gzipCompress(plain)), changed: true},
		{name: "case and spaces", encoding: "  GZip ", body: gzipCompress(plain), changed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, changed, err := DecodeChain(tt.encoding, tt.body, 1024)
			require.NoError(t, err)
			assert.Equal(t, tt.changed, changed)
			assert.Equal(t, plain, decoded)
		})
	}
}

func TestDecodeChain_UnknownEncoding(t *testing.T) {
	_, _, err := DecodeChain("compress", []byte("abc"), 0)
	assert.ErrorContains(t, err, "unsupported content-encoding")
}

func TestDecodeChain_CorruptBody(t *testing.T) {
	_, _, err := DecodeChain("gzip", []byte("not gzip"), 0)
	assert.Error(t, err)
}

func TestDecodeChain_ExpansionLimit(t *testing.T) {
	bomb := gzipCompress(bytes.Repeat([]byte("A"), 64*1024))

	_, _, err := DecodeChain("gzip", bomb, 4096)
	assert.True(t, errors.Is(err, ErrBodyTooLarge))

	decoded, _, err := DecodeChain("gzip", bomb, 0)
	require.NoError(t, err)
	assert.Len(t, decoded, 64*1024)
}
