package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/classroom-api/internal/config"
	"github.com/noah-isme/classroom-api/internal/handler"
	"github.com/noah-isme/classroom-api/internal/models"
	"github.com/noah-isme/classroom-api/internal/repository"
	"github.com/noah-isme/classroom-api/internal/router"
	"github.com/noah-isme/classroom-api/internal/service"
)

type envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type stubAvatarStorage struct{}

func (stubAvatarStorage) Upload(_ context.Context, name string, _ io.Reader) (string, error) {
	return "classroom/avatars/" + name, nil
}

func (stubAvatarStorage) URL(_ context.Context, reference string) (string, error) {
	return "https://files.test/" + reference, nil
}

type classroomApp struct {
	app    *fiber.App
	db     *gorm.DB
	events service.RosterEvents
}

func uintPtr(v uint) *uint {
	return &v
}

func setupClassroomApp(t *testing.T) classroomApp {
	t.Helper()

	dsn := fmt.Sprintf("file:classroom_handler_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Teacher{}, &models.Section{}, &models.Student{}, &models.QuizAttempt{}, &models.LessonView{}, &models.ActivityLog{}))

	require.NoError(t, db.Create(&[]models.Teacher{
		{ID: 100, Username: "mrivera", FirstName: "Marta", LastName: "Rivera", IsActive: true},
		{ID: 101, Username: "jlee", FirstName: "Jon", LastName: "Lee", IsActive: true},
	}).Error)
	require.NoError(t, db.Create(&[]models.Section{
		{ID: 1, Name: "Bee", Classroom: "R1", Period: models.PeriodMorning, MaxCapacity: 3, SchoolYear: "2024-2025", IsActive: true, TeacherID: uintPtr(100)},
		{ID: 2, Name: "Owl", Classroom: "R2", Period: models.PeriodAfternoon, MaxCapacity: 2, SchoolYear: "2024-2025", IsActive: true},
	}).Error)
	require.NoError(t, db.Create(&[]models.Student{
		{ID: 10, FirstName: "Ana", LastName: "Cruz", StudentCode: "S1", SectionID: uintPtr(1), IsActive: true},
		{ID: 11, FirstName: "Ben", LastName: "Cruz", StudentCode: "S2", IsActive: true},
		{ID: 12, FirstName: "Cara", LastName: "Diaz", StudentCode: "S3", SectionID: uintPtr(2), IsActive: false},
		{ID: 13, FirstName: "Dan", LastName: "Eze", StudentCode: "S4", SectionID: uintPtr(1), IsActive: true},
	}).Error)

	logger := zerolog.Nop()
	validate := validator.New(validator.WithRequiredStructEnabled())

	sectionRepo := repository.NewSectionRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	store := service.NewMemorySelectionStore()
	events := service.NewRosterEvents(nil, "", nil, logger)

	loader := service.NewRosterLoader(sectionRepo, studentRepo, teacherRepo)
	activity := service.NewActivityService(repository.NewActivityLogRepository(db), logger)
	avatars := service.NewAvatarService(stubAvatarStorage{}, studentRepo, teacherRepo, events, activity, service.AvatarConfig{Placeholder: "https://files.test/placeholder.png"}, logger)
	classroom := service.NewClassroomService(loader, store, avatars, logger)
	selection := service.NewSelectionService(loader, store, validate, logger)
	sections := service.NewSectionService(sectionRepo, teacherRepo, loader, avatars, events, activity, validate, logger)
	students := service.NewStudentService(studentRepo, sectionRepo, loader, selection, store, events, activity, validate, logger)
	exports := service.NewExportService(loader, "Student Roster", logger)
	statistics := service.NewStatisticsService(loader, repository.NewStatisticsRepository(db), nil, time.Minute, nil, validate, logger)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "Classroom Test", AppEnv: "test"}, router.Dependencies{
		RosterHandler:     handler.NewRosterHandler(classroom, logger),
		StudentHandler:    handler.NewStudentHandler(students, avatars, logger),
		SectionHandler:    handler.NewSectionHandler(sections, avatars, logger),
		SelectionHandler:  handler.NewSelectionHandler(selection, logger),
		ExportHandler:     handler.NewExportHandler(exports, logger),
		StatisticsHandler: handler.NewStatisticsHandler(statistics, logger),
		ActivityHandler:   handler.NewActivityHandler(activity, logger),
		JWTMiddleware:     testIdentity,
	})

	return classroomApp{app: app, db: db, events: events}
}

// testIdentity stands in for JWT verification: X-Test-User and X-Test-Role
// become the locals a verified token would set.
func testIdentity(c *fiber.Ctx) error {
	if raw := c.Get("X-Test-User"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err == nil {
			c.Locals("user_id", uint(id))
		}
	}
	if role := c.Get("X-Test-Role"); role != "" {
		c.Locals("user_role", role)
	}
	return c.Next()
}

type caller struct {
	id   uint
	role string
}

var (
	asAdmin   = caller{id: 1, role: "admin"}
	asTeacher = caller{id: 100, role: "teacher"}
	anonymous = caller{}
)

func (a classroomApp) do(t *testing.T, who caller, method, path string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	who.apply(req)
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (a classroomApp) upload(t *testing.T, who caller, path, filename string, content []byte) *http.Response {
	t.Helper()
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	file, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = file.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	who.apply(req)
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (c caller) apply(req *http.Request) {
	if c.id > 0 {
		req.Header.Set("X-Test-User", strconv.FormatUint(uint64(c.id), 10))
	}
	if c.role != "" {
		req.Header.Set("X-Test-Role", c.role)
	}
}

func decode[T any](t *testing.T, resp *http.Response) envelope[T] {
	t.Helper()
	defer resp.Body.Close()
	var payload envelope[T]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload
}
