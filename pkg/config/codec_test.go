package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/multisql/pkg/errors"
	"github.com/ajitpratap0/multisql/pkg/split"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	cfg := validConfig()
	cfg.Connection.Username = "etl"
	cfg.Connection.Password = "s3cret"
	cfg.Connection.Properties = map[string]string{"sslmode": "disable", "application_name": "multisql"}
	cfg.Statements = append(cfg.Statements, "SELECT 'ünïcode', '\"quoted\"'")
	cfg.Timeouts.Query = 90 * time.Second
	cfg.Output.Compression = "gzip"
	cfg.FailOnError = true

	blob, err := Encode(cfg)
	require.NoError(t, err)
	assert.Equal(t, blobVersion, blob[0])

	decoded, err := Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, cfg, decoded)
}

func TestEncodeDecode_PreservesEmptyStatements(t *testing.T) {
	cfg := validConfig()
	cfg.Statements = nil

	blob, err := Encode(cfg)
	require.NoError(t, err)

	decoded, err := Decode(blob)
	require.NoError(t, err)
	assert.Nil(t, decoded.Statements)
	assert.Empty(t, split.Partition(decoded.Statements, decoded.Reference()))
}

func TestDecode_Failures(t *testing.T) {
	valid, err := Encode(validConfig())
	require.NoError(t, err)

	invalidCfg := validConfig()
	invalidCfg.Driver = ""
	invalid, err := Encode(invalidCfg)
	require.NoError(t, err)

	tests := []struct {
		name string
		blob []byte
	}{
		{name: "empty", blob: nil},
		{name: "unknown version", blob: append([]byte{9}, valid[1:]...)},
		{name: "corrupt payload", blob: []byte{blobVersion, 0xde, 0xad, 0xbe, 0xef}},
		{name: "truncated", blob: valid[:len(valid)/2]},
		{name: "fails validation", blob: invalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Decode(tt.blob)
			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig), err.Error())
		})
	}

	_, err = Encode(nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestEncodeDecodeUnit(t *testing.T) {
	units := split.Partition([]string{"SELECT 1"}, "orders")
	units = append(units, split.NewPreFailed("Statement #2", "orders",
		errors.New(errors.ErrorTypeDriverLoad, "unknown driver")))

	for _, u := range units {
		blob, err := EncodeUnit(u)
		require.NoError(t, err)

		decoded, err := DecodeUnit(blob)
		require.NoError(t, err)
		assert.Equal(t, u, decoded)
	}

	_, err := EncodeUnit(split.UnitDescriptor{ID: "Statement #1"})
	assert.Error(t, err)

	_, err = DecodeUnit([]byte{blobVersion})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	bad, err := encode(split.UnitDescriptor{ID: "Statement #1"})
	require.NoError(t, err)
	_, err = DecodeUnit(bad)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
