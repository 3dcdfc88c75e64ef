package expire

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/jobboard/internal/metrics"
)

var fixedNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type expiredMetrics struct {
	metrics.Nop
	counts []int
}

func (m *expiredMetrics) RecordJobsExpired(count int) { m.counts = append(m.counts, count) }

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func newSweep(t *testing.T) (*JobSweep, sqlmock.Sqlmock, *expiredMetrics, *bytes.Buffer) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var buf bytes.Buffer
	m := &expiredMetrics{}
	s := NewJobSweep(db, newTestLogger(&buf), m)
	s.now = func() time.Time { return fixedNow }
	return s, mock, m, &buf
}

// 期限切れの公開中求人が非公開になり、件数がメトリクスに記録されることを検証
func TestJobSweep_Run_DeactivatesExpiredJobs(t *testing.T) {
	s, mock, m, buf := newSweep(t)

	mock.ExpectExec("UPDATE jobs SET is_active = FALSE").
		WithArgs(fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := s.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, []int{3}, m.counts)
	assert.Contains(t, buf.String(), `"expired_count":3`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// 対象がなくても成功することを検証
func TestJobSweep_Run_NothingToExpire(t *testing.T) {
	s, mock, _, _ := newSweep(t)

	mock.ExpectExec("UPDATE jobs SET is_active = FALSE").
		WithArgs(fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := s.Run(context.Background())

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ドライランでは更新せず件数のみ返すことを検証
func TestJobSweep_Run_DryRunOnlyCounts(t *testing.T) {
	s, mock, m, buf := newSweep(t)
	s.DryRun = true

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM jobs").
		WithArgs(fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	n, err := s.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Empty(t, m.counts)
	assert.Contains(t, buf.String(), `"dry_run":true`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ドライランで対象がない場合のログを検証
func TestJobSweep_Run_DryRunNothing(t *testing.T) {
	s, mock, _, buf := newSweep(t)
	s.DryRun = true

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM jobs").
		WithArgs(fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	n, err := s.Run(context.Background())

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Contains(t, buf.String(), "期限切れの求人はありません")
}

// SQLエラーが呼び出し元に返ることを検証
func TestJobSweep_Run_ExecError(t *testing.T) {
	s, mock, m, _ := newSweep(t)

	mock.ExpectExec("UPDATE jobs SET is_active = FALSE").
		WillReturnError(errors.New("connection refused"))

	_, err := s.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Empty(t, m.counts)
}

func TestSessionSweep_Run(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var buf bytes.Buffer
	s := NewSessionSweep(db, newTestLogger(&buf))
	s.now = func() time.Time { return fixedNow }

	mock.ExpectExec("DELETE FROM sessions WHERE expires_at < \\$1").
		WithArgs(fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := s.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type fakeExpirer struct {
	n   int64
	err error
}

func (f *fakeExpirer) ExpireInvitations(ctx context.Context) (int64, error) { return f.n, f.err }

func TestInvitationSweep_Run(t *testing.T) {
	var buf bytes.Buffer
	s := NewInvitationSweep(&fakeExpirer{n: 2}, newTestLogger(&buf))

	n, err := s.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Contains(t, buf.String(), `"expired_count":2`)
}
