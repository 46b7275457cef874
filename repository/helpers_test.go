package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tasker/config"
	"tasker/models"
	"tasker/utils"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := config.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "failed to open test database")
	require.NoError(t, config.MigrateDB(db), "failed to migrate test database")

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func mustUser(t *testing.T, db *gorm.DB, telegramID int64, username string) *models.User {
	t.Helper()

	user, err := NewUserRepo(db).Upsert(context.Background(), Profile{
		TelegramID: telegramID,
		Username:   utils.Pointer(username),
	})
	require.NoError(t, err)
	return user
}

// sequence returns a generator yielding codes in order, repeating the last one.
func sequence(codes ...string) CodeGenerator {
	i := 0
	return func() (string, error) {
		code := codes[i]
		if i < len(codes)-1 {
			i++
		}
		return code, nil
	}
}
