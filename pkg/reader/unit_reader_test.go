package reader

import (
	"context"
	"database/sql"
	stderrors "errors"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/multisql/pkg/driver"
	"github.com/ajitpratap0/multisql/pkg/errors"
	"github.com/ajitpratap0/multisql/pkg/split"
)

// mockFactory hands out connections from a sqlmock database and counts how
// often a connection is released.
type mockFactory struct {
	db         *sql.DB
	connectErr error
	connects   int
	releases   int
}

func (f *mockFactory) DriverName() string { return "sqlmock" }

func (f *mockFactory) Connect(ctx context.Context) (*driver.Connection, error) {
	f.connects++
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	conn, err := f.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return driver.NewConnection(conn, func() error {
		f.releases++
		return nil
	}), nil
}

func newMock(t *testing.T) (*mockFactory, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &mockFactory{db: db}, mock
}

func unit(n int, stmt string) split.UnitDescriptor {
	return split.UnitDescriptor{ID: split.UnitID(n), ReferenceName: "orders", Statement: stmt}
}

func drain(t *testing.T, r *UnitReader) ([]RawRow, error) {
	t.Helper()
	var rows []RawRow
	for {
		row, err := r.Next()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
}

func TestOpenUnit_StreamsRows(t *testing.T) {
	factory, mock := newMock(t)
	mock.ExpectQuery("SELECT id, name FROM t1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), []byte("alice")).
			AddRow(int64(2), "bob"))

	r, err := OpenUnit(context.Background(), unit(1, "SELECT id, name FROM t1"), factory, Options{
		SourceField: "source",
		Logger:      zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, r.Columns())

	rows, err := drain(t, r)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, RawRow{"id": int64(1), "name": "alice", "source": "Statement #1"}, rows[0])
	assert.Equal(t, RawRow{"id": int64(2), "name": "bob", "source": "Statement #1"}, rows[1])
	assert.Equal(t, int64(2), r.RowsRead())

	// exhausted readers keep returning EOF
	_, err = r.Next()
	assert.Equal(t, io.EOF, err)

	require.NoError(t, r.Close())
	assert.Equal(t, 1, factory.releases)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenUnit_DefaultSourceField(t *testing.T) {
	factory, mock := newMock(t)
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(int64(1)))

	r, err := OpenUnit(context.Background(), unit(4, "SELECT 1"), factory, Options{})
	require.NoError(t, err)
	defer r.Close()

	row, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "Statement #4", row[DefaultSourceField])
}

func TestOpenUnit_ZeroRows(t *testing.T) {
	factory, mock := newMock(t)
	mock.ExpectQuery("SELECT * FROM empty").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	r, err := OpenUnit(context.Background(), unit(1, "SELECT * FROM empty"), factory, Options{})
	require.NoError(t, err)

	rows, err := drain(t, r)
	assert.NoError(t, err)
	assert.Empty(t, rows)

	require.NoError(t, r.Close())
	assert.Equal(t, 1, factory.releases)
}

func TestOpenUnit_Failures(t *testing.T) {
	tests := []struct {
		name         string
		setup        func(f *mockFactory, mock sqlmock.Sqlmock)
		unit         split.UnitDescriptor
		wantType     errors.ErrorType
		wantReleases int
	}{
		{
			name: "statement fails",
			setup: func(_ *mockFactory, mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT * FROM missing_table").
					WillReturnError(stderrors.New("relation \"missing_table\" does not exist"))
			},
			unit:         unit(2, "SELECT * FROM missing_table"),
			wantType:     errors.ErrorTypeExecution,
			wantReleases: 1,
		},
		{
			name: "connection fails",
			setup: func(f *mockFactory, _ sqlmock.Sqlmock) {
				f.connectErr = stderrors.New("connection refused")
			},
			unit:     unit(1, "SELECT 1"),
			wantType: errors.ErrorTypeExecution,
		},
		{
			name: "connection failure keeps its class",
			setup: func(f *mockFactory, _ sqlmock.Sqlmock) {
				f.connectErr = errors.New(errors.ErrorTypeDriverRegistration, "bad dsn")
			},
			unit:     unit(1, "SELECT 1"),
			wantType: errors.ErrorTypeDriverRegistration,
		},
		{
			name:     "pre-failed unit",
			setup:    func(*mockFactory, sqlmock.Sqlmock) {},
			unit:     split.NewPreFailed("Statement #1", "orders", stderrors.New("x")),
			wantType: errors.ErrorTypeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory, mock := newMock(t)
			tt.setup(factory, mock)

			r, err := OpenUnit(context.Background(), tt.unit, factory, Options{})
			assert.Nil(t, r)
			require.Error(t, err)
			assert.Equal(t, tt.wantType, errors.TypeOf(err))
			assert.Equal(t, tt.wantReleases, factory.releases)
		})
	}
}

func TestUnitReader_MidStreamFailure(t *testing.T) {
	factory, mock := newMock(t)
	mock.ExpectQuery("SELECT * FROM t1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).
			AddRow(int64(1)).
			AddRow(int64(2)).
			AddRow(int64(3)).
			AddRow(int64(4)).
			RowError(3, stderrors.New("connection reset by peer")))

	r, err := OpenUnit(context.Background(), unit(1, "SELECT * FROM t1"), factory, Options{})
	require.NoError(t, err)

	rows, err := drain(t, r)
	assert.Len(t, rows, 3)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeRowRead, errors.TypeOf(err))
	assert.Contains(t, err.Error(), "connection reset by peer")

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, 1, factory.releases)
}

func TestOpenUnit_QueryTimeoutReleasesOnClose(t *testing.T) {
	factory, mock := newMock(t)
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(int64(1)))

	r, err := OpenUnit(context.Background(), unit(1, "SELECT 1"), factory, Options{QueryTimeout: time.Minute})
	require.NoError(t, err)

	rows, err := drain(t, r)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	require.NoError(t, r.Close())
	assert.Equal(t, 1, factory.releases)
}

func TestNewOpener(t *testing.T) {
	factory, mock := newMock(t)
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(int64(1)))

	open := NewOpener(factory, Options{SourceField: "src"})
	source, err := open(context.Background(), unit(1, "SELECT 1"))
	require.NoError(t, err)
	defer source.Close()

	row, err := source.Next()
	require.NoError(t, err)
	assert.Equal(t, "Statement #1", row["src"])

	factory.connectErr = stderrors.New("down")
	source, err = open(context.Background(), unit(2, "SELECT 1"))
	assert.Nil(t, source)
	assert.Error(t, err)
}
