// Package json provides JSON serialization backed by goccy/go-json with
// pooled buffers.
package json

import (
	"bytes"
	"io"
	"sync"

	gojson "github.com/goccy/go-json"

	"github.com/ajitpratap0/multisql/pkg/models"
)

const maxPooledBuffer = 1 << 20

var bufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

// GetBuffer returns an empty buffer from the pool.
func GetBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns buf to the pool. Very large buffers are dropped.
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > maxPooledBuffer {
		return
	}
	bufferPool.Put(buf)
}

// Marshal is a drop-in replacement for encoding/json.Marshal.
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal is a drop-in replacement for encoding/json.Unmarshal.
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// LineWriter writes one JSON document per line. It is not safe for
// concurrent use.
type LineWriter struct {
	w   io.Writer
	buf *bytes.Buffer
	enc *gojson.Encoder
}

// NewLineWriter creates a JSON lines writer on w.
func NewLineWriter(w io.Writer) *LineWriter {
	buf := GetBuffer()
	enc := gojson.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return &LineWriter{w: w, buf: buf, enc: enc}
}

// Write encodes v followed by a newline.
func (lw *LineWriter) Write(v interface{}) error {
	lw.buf.Reset()
	if err := lw.enc.Encode(v); err != nil {
		return err
	}
	_, err := lw.w.Write(lw.buf.Bytes())
	return err
}

// Close releases the writer's buffer. It does not close the underlying
// writer.
func (lw *LineWriter) Close() error {
	if lw.buf != nil {
		PutBuffer(lw.buf)
		lw.buf = nil
	}
	return nil
}

// MarshalRecordLines encodes records as JSON lines.
func MarshalRecordLines(records []*models.TaggedRecord) ([]byte, error) {
	var out bytes.Buffer
	lw := NewLineWriter(&out)
	defer lw.Close()

	for _, r := range records {
		if err := lw.Write(r); err != nil {
			return nil, err
		}
	}
	return out.Bytes(), nil
}
