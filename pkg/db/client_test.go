package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

type widget struct {
	ID   int
	Name string
}

func openSQLite(t *testing.T) *Client {
	t.Helper()
	client, err := New(context.Background(), config.DBConfig{
		Driver:          config.DriverSQLite,
		DSN:             "file:" + filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns:    20,
		ConnMaxIdleTime: time.Minute,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.DB().AutoMigrate(&widget{}))
	return client
}

func countWidgets(t *testing.T, c *Client) int64 {
	t.Helper()
	var n int64
	require.NoError(t, c.DB().Model(&widget{}).Count(&n).Error)
	return n
}

func TestNewSQLiteUsesSingleConnectionAndPragmas(t *testing.T) {
	client := openSQLite(t)

	sqlDB, err := client.DB().DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)

	var fk int
	require.NoError(t, client.DB().Raw("PRAGMA foreign_keys").Scan(&fk).Error)
	assert.Equal(t, 1, fk)
	assert.NoError(t, client.Ping(context.Background()))
}

func TestNewRequiresDSN(t *testing.T) {
	_, err := New(context.Background(), config.DBConfig{Driver: config.DriverSQLite}, nil)
	assert.Error(t, err)
}

func TestWithSQLitePragmas(t *testing.T) {
	assert.Equal(t, "file:a.db?_foreign_keys=on&_busy_timeout=5000", withSQLitePragmas("file:a.db"))
	assert.Equal(t, "file:a.db?_foreign_keys=off&_busy_timeout=5000", withSQLitePragmas("file:a.db?_foreign_keys=off"))
	assert.Equal(t, "file::memory:?cache=shared&_busy_timeout=1&_foreign_keys=on",
		withSQLitePragmas("file::memory:?cache=shared&_busy_timeout=1"))
}

func TestWithTxCommitsAndRollsBack(t *testing.T) {
	client := openSQLite(t)
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&widget{Name: "committed"}).Error
	}))
	assert.EqualValues(t, 1, countWidgets(t, client))

	boom := errors.New("boom")
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		require.NoError(t, tx.Create(&widget{Name: "rolled back"}).Error)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.EqualValues(t, 1, countWidgets(t, client))
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	client := openSQLite(t)

	assert.Panics(t, func() {
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			tx.Create(&widget{Name: "doomed"})
			panic("kaboom")
		})
	})
	assert.EqualValues(t, 0, countWidgets(t, client))
}

func TestNowUTC(t *testing.T) {
	assert.Equal(t, time.UTC, NowUTC().Location())
}
