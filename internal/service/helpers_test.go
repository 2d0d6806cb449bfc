package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/classroom-api/internal/dto"
	"github.com/noah-isme/classroom-api/internal/models"
	"github.com/noah-isme/classroom-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func isValidationErr(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

func ptrUint(v uint) *uint {
	return &v
}

func ptrBool(v bool) *bool {
	return &v
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:classroom_service_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Teacher{}, &models.Section{}, &models.Student{}, &models.QuizAttempt{}, &models.LessonView{}, &models.ActivityLog{}))
	return db
}

// seedClassroom creates two teachers, the sections Bee (owned by teacher 100,
// capacity 3) and Owl (capacity 2) and four students.
func seedClassroom(t *testing.T, db *gorm.DB) {
	t.Helper()
	teachers := []models.Teacher{
		{ID: 100, Username: "mrivera", FirstName: "Marta", LastName: "Rivera", IsActive: true},
		{ID: 101, Username: "jlee", FirstName: "Jon", LastName: "Lee", IsActive: true},
	}
	require.NoError(t, db.Create(&teachers).Error)

	sections := []models.Section{
		{ID: 1, Name: "Bee", Classroom: "R1", Period: models.PeriodMorning, MaxCapacity: 3, SchoolYear: "2024-2025", IsActive: true, TeacherID: ptrUint(100)},
		{ID: 2, Name: "Owl", Classroom: "R2", Period: models.PeriodAfternoon, MaxCapacity: 2, SchoolYear: "2024-2025", IsActive: true},
	}
	require.NoError(t, db.Create(&sections).Error)

	students := []models.Student{
		{ID: 10, FirstName: "Ana", LastName: "Cruz", StudentCode: "S1", SectionID: ptrUint(1), IsActive: true},
		{ID: 11, FirstName: "Ben", LastName: "Cruz", StudentCode: "S2", IsActive: true},
		{ID: 12, FirstName: "Cara", LastName: "Diaz", StudentCode: "S3", SectionID: ptrUint(2), IsActive: false},
		{ID: 13, FirstName: "Dan", LastName: "Eze", StudentCode: "S4", SectionID: ptrUint(1), IsActive: true},
	}
	require.NoError(t, db.Create(&students).Error)
}

type classroomFixture struct {
	db       *gorm.DB
	sections repository.SectionRepository
	students repository.StudentRepository
	teachers repository.TeacherRepository
	loader   *RosterLoader
	events   *recordingEvents
	activity *memoryActivityRepo
	recorder ActivityService
}

func newClassroomFixture(t *testing.T) classroomFixture {
	t.Helper()
	db := setupServiceDB(t)
	seedClassroom(t, db)

	sections := repository.NewSectionRepository(db)
	students := repository.NewStudentRepository(db)
	teachers := repository.NewTeacherRepository(db)
	activity := &memoryActivityRepo{}

	return classroomFixture{
		db:       db,
		sections: sections,
		students: students,
		teachers: teachers,
		loader:   NewRosterLoader(sections, students, teachers),
		events:   &recordingEvents{},
		activity: activity,
		recorder: NewActivityService(activity, testLogger()),
	}
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

type recordingEvents struct {
	mu     sync.Mutex
	events []dto.RosterChangeEvent
}

func (r *recordingEvents) Publish(_ context.Context, event dto.RosterChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingEvents) Subscribe() (<-chan dto.RosterChangeEvent, func()) {
	ch := make(chan dto.RosterChangeEvent)
	return ch, func() {}
}

func (r *recordingEvents) Start(context.Context) {}

func (r *recordingEvents) tables() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	tables := make([]string, 0, len(r.events))
	for _, event := range r.events {
		tables = append(tables, event.Table+"."+event.Action)
	}
	return tables
}
