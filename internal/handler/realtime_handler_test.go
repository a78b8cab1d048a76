package handler_test

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/samg2014/VirtualHand/internal/dto"
	"github.com/samg2014/VirtualHand/internal/handler"
	"github.com/samg2014/VirtualHand/internal/middleware"
	"github.com/samg2014/VirtualHand/internal/models"
	"github.com/samg2014/VirtualHand/internal/service"
)

type socketMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func startRealtimeServer(t *testing.T, stack testStack) string {
	t.Helper()
	gateway, err := service.NewRealtimeGateway(stack.hub, stack.assistance, stack.hallPass, stack.courses, stack.accounts, stack.validate, stack.logger)
	require.NoError(t, err)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(middleware.CorrelationID())
	handler.NewRealtimeHandler(gateway, stack.logger).Register(app.Group("/api/v2/realtime", middleware.JWTProtected(testJWTSecret)))

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		_ = app.Listener(listener)
	}()
	t.Cleanup(func() {
		_ = app.Shutdown()
	})

	return listener.Addr().String()
}

func tokenFor(t *testing.T, user models.User) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  strconv.FormatUint(uint64(user.ID), 10),
		"role": user.Role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}

func dial(t *testing.T, addr string, user models.User) *websocket.Conn {
	t.Helper()
	return dialQuery(t, addr, user, "")
}

func dialQuery(t *testing.T, addr string, user models.User, extra string) *websocket.Conn {
	t.Helper()
	url := fmt.Sprintf("ws://%s/api/v2/realtime/ws?token=%s%s", addr, tokenFor(t, user), extra)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(socketMessage{Event: event, Data: raw}))
}

func read(t *testing.T, conn *websocket.Conn) socketMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg socketMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestRealtimeHandler_RequiresToken(t *testing.T) {
	stack := newTestStack(t)
	addr := startRealtimeServer(t, stack)

	_, resp, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/api/v2/realtime/ws", addr), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRealtimeHandler_RequestLifecycle(t *testing.T) {
	stack := newTestStack(t)
	teacher := stack.user(t, "teacher", models.RoleTeacher)
	student := stack.user(t, "student", models.RoleStudent)
	course := stack.course(t, "Chemistry", teacher.ID)
	stack.enroll(t, student.ID, course.ID)
	addr := startRealtimeServer(t, stack)

	teacherConn := dial(t, addr, teacher)
	studentConn := dial(t, addr, student)
	require.Eventually(t, func() bool { return stack.hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	send(t, studentConn, "Request_InitiateHallPassRequest", dto.CourseRef{CourseID: course.ID})
	require.Equal(t, service.EventHallPassModified, read(t, studentConn).Event)
	require.Equal(t, service.EventHallPassModified, read(t, teacherConn).Event)

	send(t, teacherConn, "Request_RetrieveHallPassRequests", dto.CourseSet{CourseIDs: []uint{course.ID}})
	reply := read(t, teacherConn)
	require.Equal(t, "Response_RetrieveHallPassRequests", reply.Event)

	var list dto.RequestListResponse
	require.NoError(t, json.Unmarshal(reply.Data, &list))
	require.Len(t, list.Requests, 1)
	require.Equal(t, models.KindHallPass, list.Requests[0].Kind)

	send(t, teacherConn, "Request_TeacherGrantHallPassRequest", dto.RequestRef{RequestID: list.Requests[0].ID})
	require.Equal(t, service.EventHallPassModified, read(t, teacherConn).Event)
	require.Equal(t, service.EventHallPassModified, read(t, studentConn).Event)

	send(t, studentConn, "Request_ResolveHallPassRequest", dto.CourseRef{CourseID: course.ID})
	require.Equal(t, service.EventHallPassModified, read(t, studentConn).Event)
	require.Equal(t, service.EventHallPassModified, read(t, teacherConn).Event)

	send(t, studentConn, "Request_HallPassRequestStatus", dto.CourseRef{CourseID: course.ID})
	reply = read(t, studentConn)
	require.Equal(t, "Response_HallPassRequestStatus", reply.Event)
	require.JSONEq(t, `{"status":false}`, string(reply.Data))
}

func TestRealtimeHandler_InvalidFrame(t *testing.T) {
	stack := newTestStack(t)
	student := stack.user(t, "student", models.RoleStudent)
	addr := startRealtimeServer(t, stack)
	conn := dialQuery(t, addr, student, "&cid=socket-42")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":42}`)))
	reply := read(t, conn)
	require.Equal(t, service.EventError, reply.Event)

	var failure dto.SocketErrorResponse
	require.NoError(t, json.Unmarshal(reply.Data, &failure))
	require.False(t, failure.Success)
	require.Equal(t, "VALIDATION_ERROR", failure.Code)
	require.Equal(t, "socket-42", failure.CorrelationID)
}
