package reminders

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// arrayConverter lets string slices through to the mock driver the way the
// pgx driver accepts them.
type arrayConverter struct{}

func (arrayConverter) ConvertValue(v any) (driver.Value, error) {
	if s, ok := v.([]string); ok {
		return s, nil
	}
	return driver.DefaultParameterConverter.ConvertValue(v)
}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp),
		sqlmock.ValueConverterOption(arrayConverter{}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(db), mock
}

func TestSchedule_Upserts(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	due := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	payload := models.ReminderPayload{UserID: "u-1", Email: "ann@example.com", PlanName: "pro", PriceCents: 999, Currency: "usd"}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+subscription_reminders.*ON\s+CONFLICT\s+\(user_subscription_id\)\s+DO\s+UPDATE`).
		WithArgs(due, "us-1", raw).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("r-1"))

	rem := &models.Reminder{DueAt: due, UserSubscriptionID: "us-1", Payload: payload}
	require.NoError(t, repo.Schedule(context.Background(), rem))
	assert.Equal(t, "r-1", rem.ID)
}

func TestClaimDue(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()
	q := `(?s)WHERE\s+due_at\s*<=\s*\$1\s+AND\s+NOT\s+\(id::text\s*=\s*ANY\(\$2::text\[\]\)\).*FOR\s+UPDATE\s+SKIP\s+LOCKED$`

	raw := []byte(`{"userId":"u-1","email":"ann@example.com","planName":"pro","priceCents":999,"currency":"usd"}`)
	mock.ExpectQuery(q).WithArgs(now, []string{}).
		WillReturnRows(sqlmock.NewRows([]string{"id", "due_at", "user_subscription_id", "payload", "created_at"}).
			AddRow("r-1", now.Add(-time.Hour), "us-1", raw, now.Add(-48*time.Hour)))
	mock.ExpectQuery(q).WithArgs(now, []string{"r-1"}).WillReturnError(sql.ErrNoRows)

	got, err := repo.ClaimDue(context.Background(), now, nil)
	require.NoError(t, err)
	assert.Equal(t, "r-1", got.ID)
	assert.Equal(t, "ann@example.com", got.Payload.Email)
	assert.EqualValues(t, 999, got.Payload.PriceCents)

	_, err = repo.ClaimDue(context.Background(), now, []string{"r-1"})
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestClaimDue_BadPayload(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectQuery(`FROM\s+subscription_reminders`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "due_at", "user_subscription_id", "payload", "created_at"}).
			AddRow("r-9", now, "us-9", []byte(`not json`), now))

	rem, err := repo.ClaimDue(context.Background(), now, nil)
	assert.ErrorContains(t, err, "decode reminder r-9")
	require.NotNil(t, rem)
	assert.Equal(t, "r-9", rem.ID)
}

func TestDelete(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(`^DELETE\s+FROM\s+subscription_reminders\s+WHERE\s+id\s*=\s*\$1$`).WithArgs("r-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "r-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
