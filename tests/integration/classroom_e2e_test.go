package integration_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/classroom-api/internal/config"
	"github.com/noah-isme/classroom-api/internal/database"
	"github.com/noah-isme/classroom-api/internal/dto"
	"github.com/noah-isme/classroom-api/internal/handler"
	"github.com/noah-isme/classroom-api/internal/middleware"
	"github.com/noah-isme/classroom-api/internal/models"
	"github.com/noah-isme/classroom-api/internal/repository"
	"github.com/noah-isme/classroom-api/internal/router"
	"github.com/noah-isme/classroom-api/internal/service"
)

const jwtSecret = "integration-secret"

type integrationStorage struct{}

func (integrationStorage) Upload(_ context.Context, name string, _ io.Reader) (string, error) {
	return "classroom/avatars/" + name, nil
}

func (integrationStorage) URL(_ context.Context, reference string) (string, error) {
	return "https://files.test/" + reference, nil
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func setupClassroomApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:classroom_e2e_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	teacherID := uint(100)
	require.NoError(t, db.Create(&models.Teacher{ID: teacherID, Username: "mrivera", FirstName: "Marta", LastName: "Rivera", IsActive: true}).Error)
	require.NoError(t, db.Create(&[]models.Section{
		{ID: 1, Name: "Bee", Classroom: "R1", Period: models.PeriodMorning, MaxCapacity: 5, SchoolYear: "2024-2025", IsActive: true, TeacherID: &teacherID},
		{ID: 2, Name: "Owl", Classroom: "R2", Period: models.PeriodAfternoon, MaxCapacity: 5, SchoolYear: "2024-2025", IsActive: true},
	}).Error)

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	logger := zerolog.New(io.Discard)
	validate := validator.New(validator.WithRequiredStructEnabled())

	sectionRepo := repository.NewSectionRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	store := service.NewRedisSelectionStore(redisClient, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	events := service.NewRosterEvents(redisClient, "classroom:e2e", nil, logger)
	events.Start(ctx)

	loader := service.NewRosterLoader(sectionRepo, studentRepo, teacherRepo)
	activity := service.NewActivityService(repository.NewActivityLogRepository(db), logger)
	avatars := service.NewAvatarService(integrationStorage{}, studentRepo, teacherRepo, events, activity, service.AvatarConfig{Placeholder: "https://files.test/placeholder.png"}, logger)
	classroom := service.NewClassroomService(loader, store, avatars, logger)
	selection := service.NewSelectionService(loader, store, validate, logger)
	sections := service.NewSectionService(sectionRepo, teacherRepo, loader, avatars, events, activity, validate, logger)
	students := service.NewStudentService(studentRepo, sectionRepo, loader, selection, store, events, activity, validate, logger)
	exports := service.NewExportService(loader, "Student Roster", logger)
	statistics := service.NewStatisticsService(loader, repository.NewStatisticsRepository(db), redisClient, time.Minute, nil, validate, logger)

	app := fiber.New()
	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, config.Config{AppName: "Classroom E2E", AppEnv: "test", JWTSecret: jwtSecret}, router.Dependencies{
		RosterHandler:     handler.NewRosterHandler(classroom, logger),
		StudentHandler:    handler.NewStudentHandler(students, avatars, logger),
		SectionHandler:    handler.NewSectionHandler(sections, avatars, logger),
		SelectionHandler:  handler.NewSelectionHandler(selection, logger),
		ExportHandler:     handler.NewExportHandler(exports, logger),
		StatisticsHandler: handler.NewStatisticsHandler(statistics, logger),
		ActivityHandler:   handler.NewActivityHandler(activity, logger),
		JWTMiddleware:     middleware.JWTProtected(jwtSecret),
	})

	return app, db
}

func token(t *testing.T, subject, role string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return signed
}

func send(t *testing.T, app *fiber.App, bearer, method, path string, body interface{}) *http.Response {
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
	req.Header.Set("Authorization", "Bearer "+bearer)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) envelope[T] {
	t.Helper()
	defer resp.Body.Close()
	var payload envelope[T]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload
}

func rosterWorkbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"ID", "Student Name", "Section"},
		{"S1", "Ana Cruz", "Bee"},
		{"S2", "Ben Cruz", "Unassigned"},
		{"S3", "Cara Diaz", "Owl"},
		{"N/A", "Dan Eze", "Mars"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestClassroomEndToEndFlow(t *testing.T) {
	app, db := setupClassroomApp(t)
	admin := token(t, "1", "admin")
	teacher := token(t, "100", "teacher")

	// Import the roster spreadsheet.
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "roster.xlsx")
	require.NoError(t, err)
	_, err = part.Write(rosterWorkbook(t))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/classroom/students/import", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+admin)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	imported := decode[dto.ImportResultResponse](t, resp)
	require.EqualValues(t, 3, imported.Data.Imported)
	require.Equal(t, 1, imported.Data.Skipped)
	require.Contains(t, imported.Data.Errors[0], "unknown section Mars")

	// Select every unassigned student and move them into Bee.
	resp = send(t, app, admin, http.MethodPost, "/api/v1/classroom/selection/toggle-all", map[string]interface{}{"checked": true, "section": "unassigned"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	selection := decode[dto.SelectionResponse](t, resp)
	require.Len(t, selection.Data.EffectiveIDs, 1)

	resp = send(t, app, admin, http.MethodPost, "/api/v1/classroom/students/bulk", map[string]interface{}{
		"action":  "update",
		"section": "unassigned",
		"patch":   map[string]interface{}{"section_id": 1},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 1, decode[dto.BulkResultResponse](t, resp).Data.Affected)

	// The teacher only sees their own section.
	resp = send(t, app, teacher, http.MethodGet, "/api/v1/classroom/roster", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decode[dto.RosterViewResponse](t, resp)
	require.Len(t, view.Data.Students, 2)
	require.Len(t, view.Data.Sections, 1)
	require.Equal(t, "Bee", view.Data.Sections[0].Name)

	resp = send(t, app, teacher, http.MethodGet, "/api/v1/classroom/export.csv", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	records, err := csv.NewReader(resp.Body).ReadAll()
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, [][]string{
		{"ID", "Student Name", "Section"},
		{"S1", "Ana Cruz", "Bee"},
		{"S2", "Ben Cruz", "Bee"},
	}, records)

	// Statistics are scoped to the teacher's students and cached in redis.
	var ana models.Student
	require.NoError(t, db.Where("student_code = ?", "S1").First(&ana).Error)
	require.NoError(t, db.Create(&models.QuizAttempt{StudentID: ana.ID, QuizTitle: "Fractions", Score: 45, MaxScore: 50, CompletedAt: time.Date(2024, 9, 4, 10, 0, 0, 0, time.UTC)}).Error)

	statsPath := "/api/v1/statistics?from=2024-09-02&to=2024-09-16&bucket=week"
	resp = send(t, app, teacher, http.MethodGet, statsPath, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := decode[dto.StatisticsResponse](t, resp)
	require.False(t, first.Data.CacheHit)
	require.Equal(t, 2, first.Data.StudentCount)
	require.InDelta(t, 90, first.Data.ScoreTrend[0].AverageScore, 0.01)

	resp = send(t, app, teacher, http.MethodGet, statsPath, nil)
	require.True(t, decode[dto.StatisticsResponse](t, resp).Data.CacheHit)

	// Every mutation above left an audit entry.
	resp = send(t, app, teacher, http.MethodGet, "/api/v1/activity", nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = send(t, app, admin, http.MethodGet, "/api/v1/activity?entity_type=student", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	logs := decode[dto.ActivityListResponse](t, resp)
	actions := make([]string, 0, len(logs.Data.Items))
	for _, item := range logs.Data.Items {
		actions = append(actions, item.Action)
	}
	require.ElementsMatch(t, []string{"students.imported", "students.bulk_updated"}, actions)
}

func TestClassroomRejectsMissingToken(t *testing.T) {
	app, _ := setupClassroomApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/classroom/roster", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = send(t, app, token(t, "1", "admin"), http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
