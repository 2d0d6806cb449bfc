package database

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/classroom-api/internal/models"
)

func TestMigrateCreatesClassroomTables(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:migrate_test?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, Migrate(db))
	for _, model := range []interface{}{&models.Teacher{}, &models.Section{}, &models.Student{}, &models.QuizAttempt{}, &models.LessonView{}, &models.ActivityLog{}} {
		require.True(t, db.Migrator().HasTable(model))
	}
	require.NoError(t, Migrate(db))
}

func TestConnectRejectsEmptyURLs(t *testing.T) {
	_, err := ConnectPostgres("", PoolConfig{})
	require.Error(t, err)
	_, err = ConnectRedis("")
	require.Error(t, err)
}

func TestPingHelpers(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:ping_test?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, PingDatabase(db)(context.Background()))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	require.NoError(t, PingRedis(client)(context.Background()))

	mr.Close()
	require.Error(t, PingRedis(client)(context.Background()))
}
