package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStoreWithDB(db), mock
}

func TestPostgresIsIPBlacklisted(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM goshield_blacklist`).
		WithArgs("203.0.113.5").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := s.IsIPBlacklisted(context.Background(), "203.0.113.5")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAddIPBlacklistUpserts(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO goshield_blacklist`).
		WithArgs("203.0.113.5", "flood detected", []byte(`{"path":"/"}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.AddIPBlacklist(context.Background(), "203.0.113.5", "flood detected", []byte(`{"path":"/"}`))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAddIPBlacklistNilInfo(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO goshield_blacklist`).
		WithArgs("203.0.113.5", "manual block", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.AddIPBlacklist(context.Background(), "203.0.113.5", "manual block", nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListBlacklist(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"ip", "reason", "created_at", "extended_info"}).
		AddRow("10.0.0.1", "keyword match: .php", now, []byte(`{"path":"/a.php"}`)).
		AddRow("10.0.0.2", "flood", now, []byte("null"))
	mock.ExpectQuery(`SELECT ip, reason, created_at`).WillReturnRows(rows)

	entries, err := s.ListBlacklist(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.JSONEq(t, `{"path":"/a.php"}`, string(entries[0].ExtendedInfo))
	assert.Nil(t, entries[1].ExtendedInfo, "jsonb null reads back as no payload")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresKeywords(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO goshield_keywords`).
		WithArgs("xmlrpc").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT keyword FROM goshield_keywords`).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"keyword"}).AddRow("xmlrpc").AddRow(".php"))

	ctx := context.Background()
	require.NoError(t, s.AddKeyword(ctx, "xmlrpc"))

	kws, err := s.GetTopKeywords(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"xmlrpc", ".php"}, kws)
	assert.NoError(t, mock.ExpectationsWereMet())

	// non-positive limits short-circuit without querying
	kws, err = s.GetTopKeywords(ctx, -1)
	require.NoError(t, err)
	assert.Empty(t, kws)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresErrorsPropagate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM goshield_whitelist`).
		WithArgs("203.0.113.5").
		WillReturnError(ErrUnavailable)

	_, err := s.IsIPWhitelisted(context.Background(), "203.0.113.5")
	assert.Error(t, err)
}
