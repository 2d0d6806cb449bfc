package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/classroom-api/internal/config"
	"github.com/noah-isme/classroom-api/internal/handler"
)

type healthPayload struct {
	Success bool                   `json:"success"`
	Data    handler.HealthResponse `json:"data"`
}

func runHealth(t *testing.T, cfg config.Config, probes map[string]handler.HealthProbe) healthPayload {
	t.Helper()
	app := fiber.New()
	app.Get("/api/v1/health", handler.HealthCheck(cfg, probes))

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/health", nil), -1)
	if err != nil {
		t.Fatalf("failed to execute request: %v", err)
	}
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload healthPayload
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload
}

func TestHealthCheck(t *testing.T) {
	cfg := config.Config{AppName: "Classroom API", AppEnv: "test"}

	payload := runHealth(t, cfg, nil)
	assert.True(t, payload.Success)
	assert.Equal(t, "ok", payload.Data.Status)
	assert.Equal(t, cfg.AppName, payload.Data.Service)
	assert.Equal(t, cfg.AppEnv, payload.Data.Environment)
	assert.Empty(t, payload.Data.Dependencies)
	assert.WithinDuration(t, time.Now().UTC(), payload.Data.Timestamp, 2*time.Second)
}

func TestHealthCheckReportsDegradedDependency(t *testing.T) {
	payload := runHealth(t, config.Config{AppName: "Classroom API"}, map[string]handler.HealthProbe{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})

	assert.Equal(t, "degraded", payload.Data.Status)
	assert.Equal(t, map[string]string{"database": "up", "redis": "down"}, payload.Data.Dependencies)
}
