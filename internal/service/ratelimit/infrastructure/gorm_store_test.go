package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"storefront/internal/service/ratelimit/domain"
)

func newMockStore(t *testing.T) (*GormCounterStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewGormCounterStore(db), mock
}

var policy = domain.Policy{Ceiling: 2, Window: time.Minute}

func TestGormConsumeFirstHit(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `rate_limit_counters`.*ON DUPLICATE KEY UPDATE").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT \\* FROM `rate_limit_counters` WHERE scope_key = \\? LIMIT \\? FOR UPDATE").
		WithArgs("lookup:ip", 1).
		WillReturnRows(sqlmock.NewRows([]string{"scope_key", "window_start", "count", "created_at"}).AddRow("lookup:ip", now, 0, now))
	mock.ExpectExec("UPDATE `rate_limit_counters` SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	d, err := store.Consume(context.Background(), "lookup:ip", now, 1, policy)
	require.NoError(t, err)
	assert.True(t, d.OK)
	assert.Equal(t, 1, d.Remaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormConsumeDenialDoesNotWrite(t *testing.T) {
	store, mock := newMockStore(t)
	start := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `rate_limit_counters`").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT \\* FROM `rate_limit_counters`").
		WillReturnRows(sqlmock.NewRows([]string{"scope_key", "window_start", "count", "created_at"}).AddRow("lookup:ip", start, 2, start))
	mock.ExpectCommit()

	d, err := store.Consume(context.Background(), "lookup:ip", start.Add(10*time.Second), 1, policy)
	require.NoError(t, err)
	assert.False(t, d.OK)
	assert.Equal(t, 50*time.Second, d.RetryAfter)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormPurge(t *testing.T) {
	store, mock := newMockStore(t)
	before := time.Date(2026, 5, 3, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `rate_limit_counters` WHERE created_at < \\?").
		WithArgs(before).
		WillReturnResult(sqlmock.NewResult(0, 7))
	mock.ExpectCommit()

	n, err := store.Purge(context.Background(), before)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
