package jsonl

import (
	"bufio"
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/multisql/pkg/compression"
	"github.com/ajitpratap0/multisql/pkg/config"
	"github.com/ajitpratap0/multisql/pkg/connector/core"
	"github.com/ajitpratap0/multisql/pkg/connector/registry"
	"github.com/ajitpratap0/multisql/pkg/errors"
	jsonpool "github.com/ajitpratap0/multisql/pkg/json"
	"github.com/ajitpratap0/multisql/pkg/models"
	"github.com/ajitpratap0/multisql/pkg/testutil"
)

func streamOf(records []*models.TaggedRecord, streamErr error) *core.RecordStream {
	recordChan := make(chan *models.TaggedRecord, len(records))
	errorChan := make(chan error, 1)
	for _, r := range records {
		recordChan <- r
	}
	if streamErr != nil {
		errorChan <- streamErr
	}
	close(recordChan)
	close(errorChan)
	return &core.RecordStream{Records: recordChan, Errors: errorChan}
}

func sampleRecords() []*models.TaggedRecord {
	return []*models.TaggedRecord{
		models.NewRow("Statement #1", map[string]interface{}{"id": 1, "tablename": "Statement #1"}),
		models.NewRow("Statement #1", map[string]interface{}{"id": 2, "tablename": "Statement #1"}),
		models.NewError("Statement #2", "orders", "no such table: missing", "execution"),
	}
}

func decodeLines(t *testing.T, data []byte) []models.TaggedRecord {
	t.Helper()
	var out []models.TaggedRecord
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		var rec models.TaggedRecord
		require.NoError(t, jsonpool.Unmarshal(scanner.Bytes(), &rec))
		out = append(out, rec)
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestDestination_WriteToWriter(t *testing.T) {
	var buf bytes.Buffer
	d := New(WithWriter(&buf), WithLogger(testutil.TestLogger(t)))
	require.NoError(t, d.Initialize(context.Background(), config.NewJobConfig("job")))
	require.NoError(t, d.Health(context.Background()))

	require.NoError(t, d.Write(context.Background(), streamOf(sampleRecords(), nil)))
	require.NoError(t, d.Close(context.Background()))

	lines := decodeLines(t, buf.Bytes())
	require.Len(t, lines, 3)
	assert.Equal(t, models.KindRow, lines[0].Kind)
	assert.Equal(t, float64(2), lines[1].Fields["id"])
	assert.Equal(t, models.KindError, lines[2].Kind)
	assert.Equal(t, "execution", lines[2].FailureClass)
	assert.Equal(t, "orders", lines[2].ReferenceName)

	m := d.Metrics()
	assert.Equal(t, int64(2), m["rows_written"])
	assert.Equal(t, int64(1), m["errors_written"])
	assert.Empty(t, d.Path())
}

func TestDestination_CompressedFile(t *testing.T) {
	for _, algorithm := range []compression.Algorithm{compression.Gzip, compression.Zstd, compression.LZ4, compression.Snappy, compression.S2} {
		t.Run(string(algorithm), func(t *testing.T) {
			cfg := config.NewJobConfig("job")
			cfg.Output.Path = filepath.Join(t.TempDir(), "out", "records.jsonl")
			cfg.Output.Compression = string(algorithm)

			d := New(WithLogger(testutil.TestLogger(t)))
			require.NoError(t, d.Initialize(context.Background(), cfg))
			require.NoError(t, d.Write(context.Background(), streamOf(sampleRecords(), nil)))
			require.NoError(t, d.Close(context.Background()))

			assert.Equal(t, cfg.Output.Path+algorithm.Extension(), d.Path())
			raw, err := os.ReadFile(d.Path())
			require.NoError(t, err)

			c, err := compression.NewCompressor(algorithm, compression.Default)
			require.NoError(t, err)
			data, err := c.Decompress(raw)
			require.NoError(t, err)
			assert.Len(t, decodeLines(t, data), 3)
		})
	}
}

func TestDestination_StreamError(t *testing.T) {
	var buf bytes.Buffer
	d := New(WithWriter(&buf))
	require.NoError(t, d.Initialize(context.Background(), config.NewJobConfig("job")))

	streamErr := stderrors.New("source failed")
	err := d.Write(context.Background(), streamOf(sampleRecords()[:1], streamErr))
	assert.ErrorIs(t, err, streamErr)
	require.NoError(t, d.Close(context.Background()))
}

func TestDestination_NotInitialized(t *testing.T) {
	d := New()
	err := d.Write(context.Background(), streamOf(nil, nil))
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	assert.Error(t, d.Health(context.Background()))
	assert.NoError(t, d.Close(context.Background()))
}

func TestDestination_InvalidCompression(t *testing.T) {
	cfg := config.NewJobConfig("job")
	cfg.Output.Compression = "brotli"
	err := New().Initialize(context.Background(), cfg)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestDestination_Registered(t *testing.T) {
	dst, err := registry.CreateDestination(Name, config.NewJobConfig("job"))
	require.NoError(t, err)
	assert.IsType(t, &Destination{}, dst)
	assert.Contains(t, registry.ListDestinations(), Name)
}
