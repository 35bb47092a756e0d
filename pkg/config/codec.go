package config

import (
	"github.com/ajitpratap0/multisql/pkg/compression"
	"github.com/ajitpratap0/multisql/pkg/errors"
	"github.com/ajitpratap0/multisql/pkg/json"
	"github.com/ajitpratap0/multisql/pkg/split"
)

// Blob layout: one version byte followed by zstd-compressed JSON.
const blobVersion byte = 1

var blobCompressor = mustCompressor(compression.Zstd)

func mustCompressor(a compression.Algorithm) compression.Compressor {
	c, err := compression.NewCompressor(a, compression.Default)
	if err != nil {
		panic(err)
	}
	return c
}

// Encode serializes cfg into an opaque blob that Decode restores exactly.
// Workers receive the blob instead of re-reading the YAML file.
func Encode(cfg *JobConfig) ([]byte, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "cannot encode nil job config")
	}
	return encode(cfg)
}

// Decode restores and validates a job configuration. Any failure is a
// config error and must abort the job.
func Decode(blob []byte) (*JobConfig, error) {
	var cfg JobConfig
	if err := decode(blob, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// EncodeUnit serializes one unit descriptor for shipping to a worker.
func EncodeUnit(u split.UnitDescriptor) ([]byte, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return encode(u)
}

// DecodeUnit restores a unit descriptor produced by EncodeUnit.
func DecodeUnit(blob []byte) (split.UnitDescriptor, error) {
	var u split.UnitDescriptor
	if err := decode(blob, &u); err != nil {
		return split.UnitDescriptor{}, err
	}
	if err := u.Validate(); err != nil {
		return split.UnitDescriptor{}, errors.Wrap(err, errors.ErrorTypeConfig, "invalid unit descriptor")
	}
	return u, nil
}

func encode(v interface{}) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to marshal")
	}
	compressed, err := blobCompressor.Compress(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to compress")
	}

	blob := make([]byte, 0, len(compressed)+1)
	blob = append(blob, blobVersion)
	return append(blob, compressed...), nil
}

func decode(blob []byte, v interface{}) error {
	if len(blob) == 0 {
		return errors.New(errors.ErrorTypeConfig, "empty config blob")
	}
	if blob[0] != blobVersion {
		return errors.Newf(errors.ErrorTypeConfig, "unsupported config blob version %d", blob[0])
	}

	payload, err := blobCompressor.Decompress(blob[1:])
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to decompress config blob")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to unmarshal config blob")
	}
	return nil
}
