package sink

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bvinc/go-sqlite-lite/sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/AngelCh415/marketing-datagen/internal/generator"
	"github.com/AngelCh415/marketing-datagen/internal/models"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func singleQuery(t *testing.T, conn *sqlite3.Conn, sql string, scanDst ...interface{}) {
	t.Helper()
	stmt, err := conn.Prepare(sql)
	require.NoError(t, err)
	defer stmt.Close()

	hasRow, err := stmt.Step()
	require.NoError(t, err)
	require.True(t, hasRow)
	require.NoError(t, stmt.Scan(scanDst...))
}

func TestSQLiteStoresGeneratedRun(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "marketing.db"))
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Migrate(ctx))

	p := generator.DefaultParams()
	p.Days, p.Users, p.Campaigns, p.BatchSize = 7, 1000, 2, 100
	g, err := generator.New(p, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	col := &generator.Collector{}
	rep, err := g.Run(ctx, generator.MultiWriter(s, col))
	require.NoError(t, err)

	var n int
	singleQuery(t, s.Conn(), `select count(*) from channels`, &n)
	assert.Equal(t, 4, n)
	singleQuery(t, s.Conn(), `select count(*) from campaigns`, &n)
	assert.Equal(t, 8, n)
	singleQuery(t, s.Conn(), `select count(*) from creatives`, &n)
	assert.Equal(t, 24, n)
	singleQuery(t, s.Conn(), `select count(*) from user_installs`, &n)
	assert.Equal(t, rep.Users, n)
	singleQuery(t, s.Conn(), `select count(*) from user_sessions`, &n)
	assert.Equal(t, rep.Sessions, n)

	var name, date string
	singleQuery(t, s.Conn(), `select name, start_date from campaigns where id = 1`, &name, &date)
	assert.Equal(t, col.Campaigns[0].Name, name)
	assert.Equal(t, col.Campaigns[0].StartDate.Format(time.RFC3339), date)

	totals, err := s.DailyInstalls()
	require.NoError(t, err)
	require.Len(t, totals, 7)
	for day, v := range totals {
		assert.Equal(t, v[0]+v[1], v[2], "day %d", day)
	}

	// a second migrate starts from empty tables
	require.NoError(t, s.Migrate(ctx))
	singleQuery(t, s.Conn(), `select count(*) from user_installs`, &n)
	assert.Equal(t, 0, n)
}

func TestPostgresCopiesInOneTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	p := NewPostgres(db)

	mock.ExpectBegin()
	users := mock.ExpectPrepare(regexp.QuoteMeta(`COPY "user_installs"`))
	users.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	users.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 0))
	sessions := mock.ExpectPrepare(regexp.QuoteMeta(`COPY "user_sessions"`))
	sessions.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	sessions.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	sessions.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err = p.WriteUsers(context.Background(),
		[]models.UserInstall{{UserID: "u1", InstallDate: day0, Source: models.SourceOrganic, ChurnDay: -1}},
		[]models.UserSession{{SessionID: "s1", UserID: "u1", StartedAt: day0}, {SessionID: "s2", UserID: "u1", StartedAt: day0}},
	)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRollsBackOnCopyError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	p := NewPostgres(db)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(`COPY "channels"`))
	prep.ExpectExec().WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = p.WriteChannels(context.Background(), []models.Channel{{ID: 1, Name: "Meta"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSkipsEmptyWrites(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, NewPostgres(db).WriteSignals(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("drop table if exists signals").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists channels").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, NewPostgres(db).Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func newMockGorm(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	gdb, err := gorm.Open(mysql.New(mysql.Config{Conn: db, SkipInitializeWithVersion: true}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return gdb, mock
}

func TestMySQLWritesCampaignsAndCreativesTogether(t *testing.T) {
	gdb, mock := newMockGorm(t)
	m := NewMySQL(gdb)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `campaigns`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `creatives`").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := m.WriteCampaigns(context.Background(),
		[]models.Campaign{{ID: 1, ChannelID: 1, Channel: "Meta", Name: "Meta Prospecting 01", StartDate: day0, EndDate: day0}},
		[]models.Creative{{ID: 1, CampaignID: 1, Format: "video"}, {ID: 2, CampaignID: 1, Format: "image"}},
	)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLRollsBackFailedBatch(t *testing.T) {
	gdb, mock := newMockGorm(t)
	m := NewMySQL(gdb)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `daily_organic_metrics`").WillReturnError(errors.New("lock wait timeout"))
	mock.ExpectRollback()

	err := m.WriteOrganic(context.Background(), []models.DailyOrganicMetric{{Day: 0, Date: day0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock wait timeout")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLSkipsEmptyWrites(t *testing.T) {
	gdb, mock := newMockGorm(t)
	require.NoError(t, NewMySQL(gdb).WritePerformance(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorIs(t, err, ErrUnknownDriver)
}
