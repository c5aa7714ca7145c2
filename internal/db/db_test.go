package db

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sujalbistaa/whispr/internal/models"
)

func TestInit_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	database, err := Init("sqlite://" + path)
	require.NoError(t, err)

	for _, m := range models.All() {
		assert.True(t, database.Migrator().HasTable(m), "missing table for %T", m)
	}
}

func TestOpen_RejectsUnknownScheme(t *testing.T) {
	_, err := Open("mysql://root@localhost/whispr")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid DATABASE_URL")
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsUniqueViolation(errors.New("connection refused")))
	assert.True(t, IsUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.True(t, IsUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: banned_users.anon_hash (1555)")))
}

func TestIsUniqueViolation_SQLiteInsert(t *testing.T) {
	database, err := Init("sqlite://" + filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	require.NoError(t, database.Create(&models.BannedUser{AnonHash: "abc"}).Error)
	err = database.Create(&models.BannedUser{AnonHash: "abc"}).Error
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
}
