package reader

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/multisql/pkg/errors"
	"github.com/ajitpratap0/multisql/pkg/models"
	"github.com/ajitpratap0/multisql/pkg/split"
)

// scriptedSource returns rows, then err (or io.EOF when err is nil).
type scriptedSource struct {
	rows   []RawRow
	err    error
	pos    int
	closes int
}

func (s *scriptedSource) Next() (RawRow, error) {
	if s.pos < len(s.rows) {
		row := s.rows[s.pos]
		s.pos++
		return row, nil
	}
	if s.err != nil {
		err := s.err
		s.err = nil
		return nil, err
	}
	return nil, io.EOF
}

func (s *scriptedSource) Close() error {
	s.closes++
	return nil
}

func rowsOf(n int) []RawRow {
	rows := make([]RawRow, n)
	for i := range rows {
		rows[i] = RawRow{"id": i + 1}
	}
	return rows
}

func openerFor(source *scriptedSource, opens *int) Opener {
	return func(context.Context, split.UnitDescriptor) (RowSource, error) {
		*opens++
		return source, nil
	}
}

func collect(ctx context.Context, r *FaultIsolatingReader) []*models.TaggedRecord {
	var out []*models.TaggedRecord
	for rec := range r.Records(ctx) {
		out = append(out, rec)
	}
	return out
}

// assertStreamShape checks that at most one error record exists and that
// it is the last record.
func assertStreamShape(t *testing.T, records []*models.TaggedRecord) {
	t.Helper()
	for i, rec := range records {
		if rec.IsError() {
			assert.Equal(t, len(records)-1, i, "error record must be last")
		}
	}
}

func TestFaultIsolatingReader_Rows(t *testing.T) {
	source := &scriptedSource{rows: rowsOf(4)}
	opens := 0
	r := NewFaultIsolatingReader(unit(1, "SELECT * FROM t1"), openerFor(source, &opens),
		WithLogger(zaptest.NewLogger(t)))
	assert.Equal(t, StateUnopened, r.State())
	assert.Zero(t, opens, "open is lazy")

	records := collect(context.Background(), r)
	require.Len(t, records, 4)
	for i, rec := range records {
		assert.True(t, rec.IsRow())
		assert.Equal(t, "Statement #1", rec.SourceID)
		assert.Equal(t, i+1, rec.Fields["id"])
	}

	assert.Equal(t, StateClosed, r.State())
	assert.Equal(t, int64(4), r.RowsEmitted())
	assert.Equal(t, 1, opens)
	assert.Equal(t, 1, source.closes)
}

func TestFaultIsolatingReader_ZeroRows(t *testing.T) {
	source := &scriptedSource{}
	opens := 0
	r := NewFaultIsolatingReader(unit(1, "SELECT * FROM empty"), openerFor(source, &opens))

	records := collect(context.Background(), r)
	assert.Empty(t, records)
	assert.Equal(t, StateClosed, r.State())
	assert.Equal(t, 1, source.closes)
}

func TestFaultIsolatingReader_MidStreamFailure(t *testing.T) {
	source := &scriptedSource{
		rows: rowsOf(3),
		err:  errors.Wrap(stderrors.New("connection reset"), errors.ErrorTypeRowRead, "failed to read next row"),
	}
	opens := 0
	r := NewFaultIsolatingReader(unit(3, "SELECT * FROM t1"), openerFor(source, &opens))

	records := collect(context.Background(), r)
	require.Len(t, records, 4)
	assertStreamShape(t, records)

	for _, rec := range records[:3] {
		assert.True(t, rec.IsRow())
	}
	last := records[3]
	assert.True(t, last.IsError())
	assert.Equal(t, "Statement #3", last.SourceID)
	assert.Equal(t, "row_read", last.FailureClass)
	assert.Equal(t, "orders", last.ReferenceName)
	assert.Contains(t, last.Message, "connection reset")

	assert.Equal(t, 1, source.closes, "connection closed exactly once")

	rec, ok := r.Next(context.Background())
	assert.Nil(t, rec)
	assert.False(t, ok)
}

func TestFaultIsolatingReader_UnclassifiedStreamErrorIsRowRead(t *testing.T) {
	source := &scriptedSource{rows: rowsOf(1), err: stderrors.New("boom")}
	opens := 0
	r := NewFaultIsolatingReader(unit(1, "SELECT 1"), openerFor(source, &opens))

	records := collect(context.Background(), r)
	require.Len(t, records, 2)
	assert.Equal(t, "row_read", records[1].FailureClass)
	assert.Equal(t, "boom", records[1].Message)
}

func TestFaultIsolatingReader_OpenFailure(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantClass string
	}{
		{
			name:      "execution error",
			err:       errors.New(errors.ErrorTypeExecution, "no such table: missing_table"),
			wantClass: "execution",
		},
		{
			name:      "registration error keeps class",
			err:       errors.New(errors.ErrorTypeDriverRegistration, "malformed dsn"),
			wantClass: "driver_registration",
		},
		{
			name:      "foreign error",
			err:       stderrors.New("dial tcp: connection refused"),
			wantClass: "execution",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opens := 0
			r := NewFaultIsolatingReader(unit(2, "SELECT * FROM missing_table"),
				func(context.Context, split.UnitDescriptor) (RowSource, error) {
					opens++
					return nil, tt.err
				})

			records := collect(context.Background(), r)
			require.Len(t, records, 1)
			assert.True(t, records[0].IsError())
			assert.Equal(t, "Statement #2", records[0].SourceID)
			assert.Equal(t, tt.wantClass, records[0].FailureClass)
			assert.Equal(t, tt.err.Error(), records[0].Message)

			// closed, no retry
			_, ok := r.Next(context.Background())
			assert.False(t, ok)
			assert.Equal(t, 1, opens)
			assert.Equal(t, StateClosed, r.State())
		})
	}
}

func TestFaultIsolatingReader_PreFailed(t *testing.T) {
	cause := errors.New(errors.ErrorTypeDriverLoad, `unknown driver "oracle"`)
	u := split.NewPreFailed("Statement #1", "orders", cause)

	r := NewFaultIsolatingReader(u, func(context.Context, split.UnitDescriptor) (RowSource, error) {
		t.Fatal("pre-failed units must not open")
		return nil, nil
	})
	assert.Equal(t, StatePreFailed, r.State())

	records := collect(context.Background(), r)
	require.Len(t, records, 1)
	assert.Equal(t, models.KindError, records[0].Kind)
	assert.Equal(t, "driver_load", records[0].FailureClass)
	assert.Equal(t, cause.Error(), records[0].Message)
	assert.Equal(t, "orders", records[0].ReferenceName)
	assert.Equal(t, StateClosed, r.State())

	_, ok := r.Next(context.Background())
	assert.False(t, ok)
}

func TestFaultIsolatingReader_Cancellation(t *testing.T) {
	t.Run("before open", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		opens := 0
		r := NewFaultIsolatingReader(unit(1, "SELECT 1"), openerFor(&scriptedSource{}, &opens))

		rec, ok := r.Next(ctx)
		assert.Nil(t, rec)
		assert.False(t, ok)
		assert.Zero(t, opens)
		assert.Equal(t, StateClosed, r.State())
	})

	t.Run("mid stream", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		source := &scriptedSource{rows: rowsOf(10)}
		opens := 0
		r := NewFaultIsolatingReader(unit(1, "SELECT 1"), openerFor(source, &opens))

		_, ok := r.Next(ctx)
		require.True(t, ok)
		_, ok = r.Next(ctx)
		require.True(t, ok)

		cancel()
		rec, ok := r.Next(ctx)
		assert.Nil(t, rec, "cancellation emits no record")
		assert.False(t, ok)
		assert.Equal(t, 1, source.closes)
		assert.Equal(t, StateClosed, r.State())
	})

	t.Run("failure caused by cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		r := NewFaultIsolatingReader(unit(1, "SELECT 1"),
			func(context.Context, split.UnitDescriptor) (RowSource, error) {
				cancel()
				return nil, context.Canceled
			})

		rec, ok := r.Next(ctx)
		assert.Nil(t, rec)
		assert.False(t, ok)
	})
}

func TestFaultIsolatingReader_EarlyStopClosesSource(t *testing.T) {
	source := &scriptedSource{rows: rowsOf(5)}
	opens := 0
	r := NewFaultIsolatingReader(unit(1, "SELECT 1"), openerFor(source, &opens))

	seen := 0
	for range r.Records(context.Background()) {
		seen++
		if seen == 2 {
			break
		}
	}

	assert.Equal(t, 2, seen)
	assert.Equal(t, 1, source.closes)
	assert.Equal(t, StateClosed, r.State())

	r.Close()
	assert.Equal(t, 1, source.closes)
}

func TestState_String(t *testing.T) {
	for state, want := range map[State]string{
		StateUnopened:  "unopened",
		StateOpening:   "opening",
		StateStreaming: "streaming",
		StateClosed:    "closed",
		StatePreFailed: "pre_failed",
		State(42):      "unknown",
	} {
		assert.Equal(t, want, fmt.Sprint(state))
	}
}
