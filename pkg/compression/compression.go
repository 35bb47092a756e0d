// Package compression wraps the stream compressors used for job config blobs
// and output files.
//
// # Algorithms
//
//   - Zstd: best ratio, used for encoded job configurations
//   - Gzip: widest compatibility for output files
//   - LZ4, Snappy, S2: fast, for large extractions
//
// # Basic Usage
//
//	c, err := compression.NewCompressor(compression.Zstd, compression.Default)
//	blob, err := c.Compress(data)
//	data, err = c.Decompress(blob)
//
//	w, err := c.NewWriter(file)
//	defer w.Close()
package compression

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm names a compression format.
type Algorithm string

const (
	None   Algorithm = "none"
	Gzip   Algorithm = "gzip"
	Snappy Algorithm = "snappy"
	LZ4    Algorithm = "lz4"
	Zstd   Algorithm = "zstd"
	S2     Algorithm = "s2"
)

// Level trades speed for ratio.
type Level int

const (
	Fastest Level = 1
	Default Level = 5
	Better  Level = 7
	Best    Level = 9
)

// Algorithms lists every supported algorithm.
func Algorithms() []Algorithm {
	return []Algorithm{None, Gzip, Snappy, LZ4, Zstd, S2}
}

// ParseAlgorithm resolves a configured name. The empty string means None.
func ParseAlgorithm(name string) (Algorithm, error) {
	if name == "" {
		return None, nil
	}
	a := Algorithm(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Algorithms() {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("unsupported compression algorithm: %s", name)
}

// Extension returns the conventional file suffix, including the dot.
func (a Algorithm) Extension() string {
	switch a {
	case Gzip:
		return ".gz"
	case Snappy:
		return ".sz"
	case LZ4:
		return ".lz4"
	case Zstd:
		return ".zst"
	case S2:
		return ".s2"
	default:
		return ""
	}
}

// Compressor compresses whole buffers or streams. Implementations are safe
// for concurrent use.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	// NewWriter returns a writer compressing into dst. Close flushes the
	// frame but does not close dst.
	NewWriter(dst io.Writer) (io.WriteCloser, error)
	NewReader(src io.Reader) (io.ReadCloser, error)
	Algorithm() Algorithm
}

// NewCompressor creates a compressor for algorithm at level.
func NewCompressor(algorithm Algorithm, level Level) (Compressor, error) {
	switch algorithm {
	case None, "":
		return noneCompressor{}, nil
	case Gzip:
		return &streamCompressor{
			algorithm: Gzip,
			newWriter: func(dst io.Writer) (io.WriteCloser, error) {
				return gzip.NewWriterLevel(dst, gzipLevel(level))
			},
			newReader: func(src io.Reader) (io.ReadCloser, error) {
				return gzip.NewReader(src)
			},
		}, nil
	case Snappy:
		return &streamCompressor{
			algorithm: Snappy,
			newWriter: func(dst io.Writer) (io.WriteCloser, error) {
				return snappy.NewBufferedWriter(dst), nil
			},
			newReader: func(src io.Reader) (io.ReadCloser, error) {
				return io.NopCloser(snappy.NewReader(src)), nil
			},
		}, nil
	case S2:
		return &streamCompressor{
			algorithm: S2,
			newWriter: func(dst io.Writer) (io.WriteCloser, error) {
				return s2.NewWriter(dst), nil
			},
			newReader: func(src io.Reader) (io.ReadCloser, error) {
				return io.NopCloser(s2.NewReader(src)), nil
			},
		}, nil
	case LZ4:
		return &streamCompressor{
			algorithm: LZ4,
			newWriter: func(dst io.Writer) (io.WriteCloser, error) {
				w := lz4.NewWriter(dst)
				if err := w.Apply(lz4.CompressionLevelOption(lz4Level(level))); err != nil {
					return nil, err
				}
				return w, nil
			},
			newReader: func(src io.Reader) (io.ReadCloser, error) {
				return io.NopCloser(lz4.NewReader(src)), nil
			},
		}, nil
	case Zstd:
		return newZstdCompressor(level), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
	}
}

type noneCompressor struct{}

func (noneCompressor) Compress(data []byte) ([]byte, error)   { return data, nil }
func (noneCompressor) Decompress(data []byte) ([]byte, error) { return data, nil }
func (noneCompressor) Algorithm() Algorithm                   { return None }

func (noneCompressor) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{dst}, nil
}

func (noneCompressor) NewReader(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(src), nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// streamCompressor implements buffer compression on top of a framed
// stream format.
type streamCompressor struct {
	algorithm Algorithm
	newWriter func(io.Writer) (io.WriteCloser, error)
	newReader func(io.Reader) (io.ReadCloser, error)
}

func (c *streamCompressor) Algorithm() Algorithm { return c.algorithm }

func (c *streamCompressor) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	return c.newWriter(dst)
}

func (c *streamCompressor) NewReader(src io.Reader) (io.ReadCloser, error) {
	return c.newReader(src)
}

func (c *streamCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := c.newWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *streamCompressor) Decompress(data []byte) ([]byte, error) {
	r, err := c.newReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// zstdCompressor keeps pooled encoders and decoders since their setup is
// expensive.
type zstdCompressor struct {
	level    zstd.EncoderLevel
	encoders sync.Pool
	decoders sync.Pool
}

func newZstdCompressor(level Level) *zstdCompressor {
	zc := &zstdCompressor{level: zstdLevel(level)}
	zc.encoders.New = func() interface{} {
		enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zc.level))
		return enc
	}
	zc.decoders.New = func() interface{} {
		dec, _ := zstd.NewReader(nil)
		return dec
	}
	return zc
}

func (zc *zstdCompressor) Algorithm() Algorithm { return Zstd }

func (zc *zstdCompressor) Compress(data []byte) ([]byte, error) {
	enc := zc.encoders.Get().(*zstd.Encoder)
	defer zc.encoders.Put(enc)
	return enc.EncodeAll(data, nil), nil
}

func (zc *zstdCompressor) Decompress(data []byte) ([]byte, error) {
	dec := zc.decoders.Get().(*zstd.Decoder)
	defer zc.decoders.Put(dec)
	return dec.DecodeAll(data, nil)
}

func (zc *zstdCompressor) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(dst, zstd.WithEncoderLevel(zc.level))
}

func (zc *zstdCompressor) NewReader(src io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(src)
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

func gzipLevel(level Level) int {
	switch level {
	case Fastest:
		return gzip.BestSpeed
	case Best:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

func lz4Level(level Level) lz4.CompressionLevel {
	switch level {
	case Fastest:
		return lz4.Fast
	case Best:
		return lz4.Level9
	default:
		return lz4.Level5
	}
}

func zstdLevel(level Level) zstd.EncoderLevel {
	switch level {
	case Fastest:
		return zstd.SpeedFastest
	case Better:
		return zstd.SpeedBetterCompression
	case Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}
