package json

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/multisql/pkg/models"
)

func TestMarshalRecordLines(t *testing.T) {
	records := []*models.TaggedRecord{
		models.NewRow("Statement #1", map[string]interface{}{"id": 1, "name": "<a&b>"}),
		models.NewError("Statement #2", "orders", "execution: failed", "execution"),
	}

	data, err := MarshalRecordLines(records)
	require.NoError(t, err)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	var decoded []models.TaggedRecord
	for scanner.Scan() {
		var rec models.TaggedRecord
		require.NoError(t, Unmarshal(scanner.Bytes(), &rec))
		decoded = append(decoded, rec)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, decoded, 2)

	assert.Equal(t, models.KindRow, decoded[0].Kind)
	assert.Equal(t, "<a&b>", decoded[0].Fields["name"])
	assert.Contains(t, string(data), "<a&b>", "html is not escaped")

	assert.Equal(t, models.KindError, decoded[1].Kind)
	assert.Equal(t, "execution", decoded[1].FailureClass)
	assert.Equal(t, "orders", decoded[1].ReferenceName)
}

func TestLineWriter(t *testing.T) {
	var out bytes.Buffer
	lw := NewLineWriter(&out)

	require.NoError(t, lw.Write(map[string]int{"a": 1}))
	require.NoError(t, lw.Write(map[string]int{"b": 2}))
	require.NoError(t, lw.Close())
	require.NoError(t, lw.Close())

	assert.Equal(t, "{\"a\":1}\n{\"b\":2}\n", out.String())
}

func TestBufferPool(t *testing.T) {
	buf := GetBuffer()
	buf.WriteString("leftover")
	PutBuffer(buf)

	assert.Zero(t, GetBuffer().Len())
}
