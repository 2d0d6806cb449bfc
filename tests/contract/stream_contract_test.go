package contract_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classroom-api/internal/dto"
	"github.com/noah-isme/classroom-api/internal/handler"
	"github.com/noah-isme/classroom-api/internal/service"
)

func startStream(t *testing.T) (string, service.RosterEvents) {
	t.Helper()

	events := service.NewRosterEvents(nil, "", nil, zerolog.Nop())
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.NewStreamHandler(stubClassroomService{view: sampleView()}, events, time.Second, zerolog.Nop()).
		Register(app.Group("/api/v1/classroom", identity))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	return "ws://" + ln.Addr().String() + "/api/v1/classroom/stream", events
}

func dialStream(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("X-Test-User", "1")
	header.Set("X-Test-Role", "admin")

	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, schema *jsonschema.Schema, conn *websocket.Conn) dto.RosterStreamFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var raw interface{}
	require.NoError(t, json.Unmarshal(payload, &raw))
	require.NoError(t, schema.Validate(raw))

	var frame dto.RosterStreamFrame
	require.NoError(t, json.Unmarshal(payload, &frame))
	return frame
}

func TestRosterStreamPushesSnapshotPerChange(t *testing.T) {
	schema := compileSchema(t, "roster_frame.schema.json")
	url, events := startStream(t)
	conn := dialStream(t, url+"?section=Bee")

	initial := readFrame(t, schema, conn)
	require.Equal(t, handler.FrameRosterSnapshot, initial.Type)
	require.Nil(t, initial.Event)
	require.Equal(t, "Bee", initial.Roster.Query.Section)

	events.Publish(context.Background(), service.NewRosterChange("students", service.RosterActionUpdate, 10))

	changed := readFrame(t, schema, conn)
	require.Equal(t, handler.FrameRosterSnapshot, changed.Type)
	require.NotNil(t, changed.Event)
	require.Equal(t, "students", changed.Event.Table)
	require.Equal(t, []uint{10}, changed.Event.IDs)
	require.Len(t, changed.Roster.Students, 2)
}

func TestRosterStreamAcceptsQueryUpdates(t *testing.T) {
	schema := compileSchema(t, "roster_frame.schema.json")
	url, _ := startStream(t)
	conn := dialStream(t, url)

	readFrame(t, schema, conn)

	require.NoError(t, conn.WriteJSON(dto.RosterQuery{Search: "ana", Section: "all"}))
	updated := readFrame(t, schema, conn)
	require.Equal(t, "ana", updated.Roster.Query.Search)
	require.Equal(t, "all", updated.Roster.Query.Section)
}

func TestRosterStreamRejectsPlainHTTP(t *testing.T) {
	url, _ := startStream(t)

	resp, err := http.Get("http" + url[len("ws"):])
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}
