// Package testutil provides testing utilities for multisql
package testutil

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/multisql/pkg/connector/core"
	"github.com/ajitpratap0/multisql/pkg/models"
)

// TestLogger creates a test logger that writes to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout that is
// cancelled when the test completes.
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// Drain reads stream until its record channel is closed and returns the
// records together with the first stream error, if any.
func Drain(stream *core.RecordStream) ([]*models.TaggedRecord, error) {
	var records []*models.TaggedRecord
	for rec := range stream.Records {
		records = append(records, rec)
	}
	for err := range stream.Errors {
		if err != nil {
			return records, err
		}
	}
	return records, nil
}

// BySource groups records by unit id, keeping their order.
func BySource(records []*models.TaggedRecord) map[string][]*models.TaggedRecord {
	out := make(map[string][]*models.TaggedRecord)
	for _, rec := range records {
		out[rec.SourceID] = append(out[rec.SourceID], rec)
	}
	return out
}

// AssertUnitShape checks that every unit has at most one error record and
// that it is the unit's last record.
func AssertUnitShape(t *testing.T, records []*models.TaggedRecord) {
	t.Helper()
	for id, recs := range BySource(records) {
		for i, rec := range recs {
			if rec.IsError() && i != len(recs)-1 {
				t.Errorf("unit %s: error record at %d of %d", id, i, len(recs))
			}
		}
	}
}
