package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/noah-isme/classroom-api/internal/models"
)

func TestActivityLogRepositoryListFiltersAndPaginates(t *testing.T) {
	db := setupRosterDB(t)
	repo := NewActivityLogRepository(db)
	ctx := context.Background()

	sectionID := uint(1)
	base := time.Now().UTC().Add(-time.Hour)
	entries := []models.ActivityLog{
		{ActorID: 1, ActorRole: "admin", Action: "section.created", EntityType: "section", EntityID: &sectionID, CreatedAt: base},
		{ActorID: 1, ActorRole: "admin", Action: "students.bulk_updated", EntityType: "student", Metadata: datatypes.JSONMap{"count": 2}, CreatedAt: base.Add(time.Minute)},
		{ActorID: 100, ActorRole: "teacher", Action: "students.bulk_deleted", EntityType: "student", CreatedAt: base.Add(2 * time.Minute)},
	}
	for i := range entries {
		require.NoError(t, repo.Create(ctx, &entries[i]))
	}

	all, total, err := repo.List(ctx, ActivityLogFilter{PageSize: 2, Page: 1})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, all, 2)
	require.Equal(t, "students.bulk_deleted", all[0].Action, "expected newest entry first")

	second, _, err := repo.List(ctx, ActivityLogFilter{PageSize: 2, Page: 2})
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, "section.created", second[0].Action)

	actor := uint(1)
	students, total, err := repo.List(ctx, ActivityLogFilter{ActorID: &actor, EntityType: "student"})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, "students.bulk_updated", students[0].Action)
	require.EqualValues(t, 2, students[0].Metadata["count"])
}

func TestActivityLogRepositoryListByEntityAndWindow(t *testing.T) {
	db := setupRosterDB(t)
	repo := NewActivityLogRepository(db)
	ctx := context.Background()

	first, second := uint(1), uint(2)
	base := time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)
	entries := []models.ActivityLog{
		{ActorID: 1, ActorRole: "admin", Action: "section.created", EntityType: "section", EntityID: &first, CreatedAt: base},
		{ActorID: 1, ActorRole: "admin", Action: "section.updated", EntityType: "section", EntityID: &first, CreatedAt: base.Add(24 * time.Hour)},
		{ActorID: 1, ActorRole: "admin", Action: "section.created", EntityType: "section", EntityID: &second, CreatedAt: base.Add(48 * time.Hour)},
	}
	for i := range entries {
		require.NoError(t, repo.Create(ctx, &entries[i]))
	}

	history, total, err := repo.List(ctx, ActivityLogFilter{EntityType: "section", EntityID: &first})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Equal(t, "section.updated", history[0].Action)

	window, total, err := repo.List(ctx, ActivityLogFilter{Since: base.Add(time.Hour), Until: base.Add(48 * time.Hour)})
	require.NoError(t, err)
	require.EqualValues(t, 1, total, "until bound is exclusive")
	require.Equal(t, "section.updated", window[0].Action)
}
