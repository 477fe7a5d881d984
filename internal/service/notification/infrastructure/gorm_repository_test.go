package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	gomysql "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"storefront/internal/service/notification/domain"
)

func newMockRepo(t *testing.T) (*GormTaskRepository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewGormTaskRepository(db), mock
}

func newTask(t *testing.T) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(domain.ChannelEmail, "maria@example.gr", domain.TemplateOrderDeliveredEmail,
		map[string]interface{}{"orderId": "o1", "buyerName": "Maria"}, time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return task
}

const selectActive = "SELECT `id` FROM `notification_tasks` WHERE active_fingerprint = \\?"

func TestEnqueueReturnsExistingActiveTask(t *testing.T) {
	repo, mock := newMockRepo(t)
	task := newTask(t)

	mock.ExpectQuery(selectActive).
		WithArgs(task.Fingerprint, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("existing"))

	id, created, err := repo.Enqueue(context.Background(), task)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "existing", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnqueueInsertsNewTask(t *testing.T) {
	repo, mock := newMockRepo(t)
	task := newTask(t)

	mock.ExpectQuery(selectActive).WithArgs(task.Fingerprint, 1).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `notification_tasks`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	id, created, err := repo.Enqueue(context.Background(), task)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, task.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnqueueRaceRereadsWinner(t *testing.T) {
	repo, mock := newMockRepo(t)
	task := newTask(t)

	mock.ExpectQuery(selectActive).WithArgs(task.Fingerprint, 1).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `notification_tasks`").
		WillReturnError(&gomysql.MySQLError{Number: 1062, Message: "Duplicate entry 'x' for key 'uk_notification_active_fingerprint'"})
	mock.ExpectRollback()
	mock.ExpectQuery(selectActive).WithArgs(task.Fingerprint, 1).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("winner"))

	id, created, err := repo.Enqueue(context.Background(), task)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "winner", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimDueSkipsTasksClaimedElsewhere(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	cols := []string{"id", "channel", "recipient", "template", "payload", "fingerprint", "status", "attempts", "scheduled_for", "created_at"}
	mock.ExpectQuery("SELECT \\* FROM `notification_tasks` WHERE .* ORDER BY created_at, id LIMIT \\?").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("t1", "EMAIL", "a@example.gr", domain.TemplateOrderDeliveredEmail, `{"orderId":"o1","buyerName":"A"}`, "fp1", "PENDING", 0, now, now).
			AddRow("t2", "EMAIL", "b@example.gr", domain.TemplateOrderDeliveredEmail, `{"orderId":"o2","buyerName":"B"}`, "fp2", "PENDING", 0, now, now))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `notification_tasks` SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `notification_tasks` SET").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	tasks, err := repo.ClaimDue(context.Background(), now, 10, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "t1", tasks[0].ID)
	assert.Equal(t, domain.StatusSending, tasks[0].Status)
	assert.NotEmpty(t, tasks[0].ClaimToken)
	assert.Equal(t, "A", tasks[0].Payload["buyerName"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimDueCountsStaleReclaimAsAttempt(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	cols := []string{"id", "channel", "recipient", "template", "payload", "fingerprint", "status", "attempts", "scheduled_for", "claim_token", "claimed_at", "created_at"}
	mock.ExpectQuery("SELECT \\* FROM `notification_tasks` WHERE .* ORDER BY created_at, id LIMIT \\?").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("t1", "EMAIL", "a@example.gr", domain.TemplateOrderDeliveredEmail, `{"orderId":"o1","buyerName":"A"}`, "fp1", "SENDING", 2, now, "old", now.Add(-time.Hour), now))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `notification_tasks` SET `attempts`=\\?,`claim_token`=\\?,`claimed_at`=\\?,`status`=\\?,`updated_at`=\\? WHERE .* AND attempts = \\?").
		WithArgs(3, sqlmock.AnyArg(), sqlmock.AnyArg(), "SENDING", sqlmock.AnyArg(),
			"t1", "PENDING", sqlmock.AnyArg(), "SENDING", sqlmock.AnyArg(), 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tasks, err := repo.ClaimDue(context.Background(), now, 10, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, 3, tasks[0].Attempts)
	assert.NotEqual(t, "old", tasks[0].ClaimToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSentWithoutClaimIsClaimLost(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `notification_tasks` SET").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.MarkSent(context.Background(), "t1", "stale-token", time.Now())
	assert.ErrorIs(t, err, domain.ErrClaimLost)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFailedReleasesFingerprint(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `notification_tasks` SET `active_fingerprint`=\\?,`attempts`=\\?,`last_error`=\\?,`status`=\\?,`updated_at`=\\? WHERE").
		WithArgs(nil, 5, "boom", "FAILED", sqlmock.AnyArg(), "t1", "SENDING", "token").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.MarkFailed(context.Background(), "t1", "token", 5, "boom", time.Now())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT \\* FROM `notification_tasks` WHERE id = \\?").
		WithArgs("missing", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}
