package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PhucNguyen204/logwarden/pkg/matches"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, zerolog.Nop()), mock
}

func sampleTrigger() matches.Trigger {
	return matches.Trigger{
		ID:       uuid.MustParse("6f1c1f4e-7a43-4c7e-9d0a-4c1f0c2b9a11"),
		Rule:     "sshd",
		Action:   "ipset.ban",
		Key:      matches.KeyOf(map[string]string{"ip": "198.51.100.7"}),
		Count:    3,
		Captures: map[string]string{"ip": "198.51.100.7"},
		At:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestMigrate(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS triggers").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS triggers_occurred_at_idx").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS triggers_rule_name_idx").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_Failure(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS triggers").WillReturnError(errors.New("permission denied"))

	err := s.Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "001_triggers.sql")
}

func TestInsertTrigger(t *testing.T) {
	s, mock := newMock(t)
	tr := sampleTrigger()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO triggers(id, occurred_at, rule_name, action, match_key, match_count, captures)")).
		WithArgs(tr.ID.String(), tr.At, "sshd", "ipset.ban", `ip="198.51.100.7"`, int64(3), `{"ip":"198.51.100.7"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.InsertTrigger(context.Background(), tr))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertTrigger_NoCaptures(t *testing.T) {
	s, mock := newMock(t)
	tr := sampleTrigger()
	tr.Captures = nil
	tr.Key = matches.NoKey
	mock.ExpectExec("INSERT INTO triggers").
		WithArgs(tr.ID.String(), sqlmock.AnyArg(), "sshd", "ipset.ban", "", int64(3), `{}`).
		WillReturnError(errors.New("connection reset"))

	err := s.InsertTrigger(context.Background(), tr)
	assert.ErrorContains(t, err, "connection reset")
}

func TestListTriggers(t *testing.T) {
	s, mock := newMock(t)
	tr := sampleTrigger()
	cols := []string{"id", "occurred_at", "rule_name", "action", "match_key", "match_count", "captures"}

	mock.ExpectQuery(regexp.QuoteMeta("FROM triggers ORDER BY occurred_at DESC LIMIT $1")).
		WithArgs(200).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(tr.ID.String(), tr.At, "sshd", "ipset.ban", string(tr.Key), int64(3), []byte(`{"ip":"198.51.100.7"}`)).
			AddRow("0b8f6a49-4f55-4a3c-8c38-2d6f0f3a4f10", tr.At.Add(-time.Minute), "boot", "dummy.print", "", int64(1), []byte(`{}`)))

	got, err := s.ListTriggers(context.Background(), 0, "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, tr, got[0])
	assert.Nil(t, got[1].Captures)
	assert.Equal(t, matches.NoKey, got[1].Key)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE rule_name = $1 ORDER BY occurred_at DESC LIMIT $2")).
		WithArgs("sshd", 5).
		WillReturnRows(sqlmock.NewRows(cols))
	got, err = s.ListTriggers(context.Background(), 5, "sshd")
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListTriggers_BadID(t *testing.T) {
	s, mock := newMock(t)
	cols := []string{"id", "occurred_at", "rule_name", "action", "match_key", "match_count", "captures"}
	mock.ExpectQuery("FROM triggers").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("nope", time.Now(), "r", "a", "", int64(1), []byte(`{}`)))
	_, err := s.ListTriggers(context.Background(), 10, "")
	assert.Error(t, err)
}

func TestSink(t *testing.T) {
	s, mock := newMock(t)
	tr := sampleTrigger()
	mock.ExpectExec("INSERT INTO triggers").
		WithArgs(tr.ID.String(), sqlmock.AnyArg(), "sshd", "ipset.ban", sqlmock.AnyArg(), int64(3), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	k := NewSink(s, 4)
	k.Record(tr)
	k.Close()
	k.Close()
	assert.NoError(t, mock.ExpectationsWereMet())
}
