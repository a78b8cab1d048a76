package service

import (
	"context"
	_ "embed"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/samg2014/VirtualHand/internal/dto"
	"github.com/samg2014/VirtualHand/internal/models"
	"github.com/samg2014/VirtualHand/internal/observability"
	appErrors "github.com/samg2014/VirtualHand/pkg/errors"
)

const (
	realtimeReadLimit    = 64 * 1024
	realtimePingInterval = 30 * time.Second
	realtimeSchemaURL    = "https://virtualhand.local/schemas/realtime_frame.json"

	// EventError carries failures of events that have no reply of their own.
	EventError = "Response_Error"
)

//go:embed schema/realtime_frame.json
var realtimeFrameSchema string

// RealtimeSession identifies the authenticated user behind a websocket connection.
type RealtimeSession struct {
	UserID        uint
	Role          string
	CorrelationID string
	Context       context.Context
}

func (s RealtimeSession) isTeacher() bool {
	role := strings.ToLower(s.Role)
	return role == models.RoleTeacher || role == models.RoleAdmin
}

// RealtimeGateway serves websocket connections and dispatches inbound events.
type RealtimeGateway interface {
	ServeConnection(conn *websocket.Conn, session RealtimeSession)
}

type socketConn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v interface{}) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type eventHandler struct {
	reply       string
	teacherOnly bool
	handle      func(ctx context.Context, session RealtimeSession, data json.RawMessage) (interface{}, error)
}

type realtimeGateway struct {
	hub        *RealtimeHub
	assistance RequestService
	hallPass   HallPassService
	courses    CourseService
	accounts   AccountService
	validator  *validator.Validate
	schema     *jsonschema.Schema
	handlers   map[string]eventHandler
	logger     zerolog.Logger
	tracer     trace.Tracer
}

type realtimeClient struct {
	conn    socketConn
	send    chan dto.SocketReply
	session RealtimeSession
	hub     *RealtimeHub
	closed  chan struct{}
	once    sync.Once
	logger  zerolog.Logger
}

// NewRealtimeGateway wires the inbound event table to the domain services.
func NewRealtimeGateway(hub *RealtimeHub, assistance RequestService, hallPass HallPassService, courses CourseService, accounts AccountService, validate *validator.Validate, logger zerolog.Logger) (RealtimeGateway, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(realtimeSchemaURL, strings.NewReader(realtimeFrameSchema)); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile(realtimeSchemaURL)
	if err != nil {
		return nil, err
	}

	g := &realtimeGateway{
		hub:        hub,
		assistance: assistance,
		hallPass:   hallPass,
		courses:    courses,
		accounts:   accounts,
		validator:  validate,
		schema:     schema,
		logger:     logger.With().Str("component", "realtime_gateway").Logger(),
		tracer:     otel.Tracer("github.com/samg2014/VirtualHand/internal/service/realtime"),
	}
	g.handlers = g.eventTable()
	return g, nil
}

func (g *realtimeGateway) ServeConnection(conn *websocket.Conn, session RealtimeSession) {
	conn.SetReadLimit(realtimeReadLimit)
	client := g.attach(conn, session)
	go client.writer()
	g.readLoop(client)
}

func (g *realtimeGateway) attach(conn socketConn, session RealtimeSession) *realtimeClient {
	if session.Context == nil {
		session.Context = context.Background()
	}

	client := &realtimeClient{
		conn:    conn,
		send:    make(chan dto.SocketReply, realtimeSendBufferSize),
		session: session,
		hub:     g.hub,
		closed:  make(chan struct{}),
		logger:  g.sessionLogger(session),
	}
	g.hub.register(client)
	return client
}

func (g *realtimeGateway) sessionLogger(session RealtimeSession) zerolog.Logger {
	ctx := g.logger.With().Uint("user_id", session.UserID)
	if session.CorrelationID != "" {
		ctx = ctx.Str("correlation_id", session.CorrelationID)
	}
	return ctx.Logger()
}

func (g *realtimeGateway) readLoop(client *realtimeClient) {
	defer client.close()

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			client.logger.Debug().Err(err).Msg("realtime read loop ended")
			return
		}

		frame, err := g.parseFrame(data)
		if err != nil {
			observability.RealtimeEvents().WithLabelValues("invalid", "rejected").Inc()
			client.emit(EventError, dto.SocketErrorResponse{
				Code:          appErrors.ErrValidation.Code,
				Message:       "invalid frame",
				CorrelationID: client.session.CorrelationID,
			})
			continue
		}

		go g.dispatch(client, frame)
	}
}

func (g *realtimeGateway) parseFrame(data []byte) (dto.SocketFrame, error) {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return dto.SocketFrame{}, err
	}
	if err := g.schema.Validate(doc); err != nil {
		return dto.SocketFrame{}, err
	}

	var frame dto.SocketFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return dto.SocketFrame{}, err
	}
	return frame, nil
}

// dispatch runs the single handler registered for the frame and emits its reply.
func (g *realtimeGateway) dispatch(client *realtimeClient, frame dto.SocketFrame) {
	session := client.session
	handler, ok := g.handlers[frame.Event]
	if !ok {
		observability.RealtimeEvents().WithLabelValues("unknown", "rejected").Inc()
		client.emit(EventError, dto.SocketErrorResponse{
			Code:          appErrors.ErrNotFound.Code,
			Message:       "unknown event",
			Event:         frame.Event,
			CorrelationID: session.CorrelationID,
		})
		return
	}

	ctx, span := g.tracer.Start(session.Context, "realtime.dispatch", trace.WithAttributes(
		attribute.String("realtime.event", frame.Event),
		attribute.Int64("realtime.user_id", int64(session.UserID)),
	))
	defer span.End()

	var (
		result interface{}
		err    error
	)
	if handler.teacherOnly && !session.isTeacher() {
		err = appErrors.Clone(appErrors.ErrForbidden, "insufficient permissions")
	} else {
		result, err = handler.handle(ctx, session, frame.Data)
	}

	if err != nil {
		span.RecordError(err)
		observability.RealtimeEvents().WithLabelValues(frame.Event, "error").Inc()
		g.emitFailure(client, frame.Event, handler.reply, err)
		return
	}

	observability.RealtimeEvents().WithLabelValues(frame.Event, "ok").Inc()
	if handler.reply != "" {
		client.emit(handler.reply, result)
	}
}

func (g *realtimeGateway) emitFailure(client *realtimeClient, event, reply string, err error) {
	appErr := appErrors.FromError(err)
	if appErr.Code == appErrors.ErrInternal.Code {
		client.logger.Error().Err(err).Str("event", event).Msg("realtime handler failed")
	}

	if reply != "" {
		client.emit(reply, dto.OperationResponse{Success: false, Message: appErr.Message})
		return
	}

	client.emit(EventError, dto.SocketErrorResponse{
		Code:          appErr.Code,
		Message:       appErr.Message,
		Event:         event,
		CorrelationID: client.session.CorrelationID,
	})
}

func (g *realtimeGateway) eventTable() map[string]eventHandler {
	return map[string]eventHandler{
		"Request_InitiateAssistanceRequest": {handle: g.initiate(g.assistance)},
		"Request_InitiateHallPassRequest":   {handle: g.initiate(g.hallPass)},
		"Request_ResolveAssistanceRequest":  {handle: g.resolveByStudent(g.assistance)},
		"Request_ResolveHallPassRequest":    {handle: g.resolveByStudent(g.hallPass)},

		"Request_TeacherResolveAssistanceRequest":     {teacherOnly: true, handle: g.resolveByID(g.assistance)},
		"Request_TeacherResolveHallPassRequest":       {teacherOnly: true, handle: g.resolveByID(g.hallPass)},
		"Request_TeacherResolveAllAssistanceRequests": {teacherOnly: true, handle: g.resolveAll(g.assistance)},
		"Request_TeacherResolveAllHallPassRequests":   {teacherOnly: true, handle: g.resolveAll(g.hallPass)},
		"Request_TeacherGrantHallPassRequest":         {teacherOnly: true, handle: g.grantHallPass},

		"Request_AssistanceRequestStatus": {reply: "Response_AssistanceRequestStatus", handle: g.status(g.assistance)},
		"Request_HallPassRequestStatus":   {reply: "Response_HallPassRequestStatus", handle: g.status(g.hallPass)},

		"Request_RetrieveAssistanceRequests": {reply: "Response_RetrieveAssistanceRequests", teacherOnly: true, handle: g.retrieve(g.assistance)},
		"Request_RetrieveHallPassRequests":   {reply: "Response_RetrieveHallPassRequests", teacherOnly: true, handle: g.retrieve(g.hallPass)},

		"Request_CourseCreate":        {reply: "Response_CourseCreate", teacherOnly: true, handle: g.createCourse},
		"Request_RenameCourse":        {reply: "Response_RenameCourse", teacherOnly: true, handle: g.renameCourse},
		"Request_DeleteCourse":        {reply: "Response_DeleteCourse", teacherOnly: true, handle: g.deleteCourse},
		"Request_RetrieveCourseKey":   {reply: "Response_RetrieveCourseKey", teacherOnly: true, handle: g.retrieveCourseKey},
		"Request_AssignNewCourseKey":  {reply: "Response_AssignNewCourseKey", teacherOnly: true, handle: g.assignNewCourseKey},
		"Request_JoinCourse":          {reply: "Response_JoinCourse", handle: g.joinCourse},
		"Request_ChangePassword":      {reply: "Response_ChangePassword", handle: g.changePassword},
		"Request_ChangeStudentPassword": {
			reply:       "Response_ChangeStudentPassword",
			teacherOnly: true,
			handle:      g.changeStudentPassword,
		},
	}
}

func (g *realtimeGateway) initiate(svc RequestService) func(context.Context, RealtimeSession, json.RawMessage) (interface{}, error) {
	return func(ctx context.Context, session RealtimeSession, data json.RawMessage) (interface{}, error) {
		ref, err := decodePayload[dto.CourseRef](data, g.validator)
		if err != nil {
			return nil, err
		}
		if err := g.courses.ConfirmStudentInClass(ctx, session.UserID, ref.CourseID); err != nil {
			return nil, err
		}
		return nil, svc.Initiate(ctx, session.UserID, ref.CourseID)
	}
}

func (g *realtimeGateway) resolveByStudent(svc RequestService) func(context.Context, RealtimeSession, json.RawMessage) (interface{}, error) {
	return func(ctx context.Context, session RealtimeSession, data json.RawMessage) (interface{}, error) {
		ref, err := decodePayload[dto.CourseRef](data, g.validator)
		if err != nil {
			return nil, err
		}
		return nil, svc.ResolveByStudent(ctx, session.UserID, ref.CourseID)
	}
}

func (g *realtimeGateway) resolveByID(svc RequestService) func(context.Context, RealtimeSession, json.RawMessage) (interface{}, error) {
	return func(ctx context.Context, session RealtimeSession, data json.RawMessage) (interface{}, error) {
		ref, err := decodePayload[dto.RequestRef](data, g.validator)
		if err != nil {
			return nil, err
		}
		return nil, svc.ResolveByID(ctx, session.UserID, ref.RequestID)
	}
}

func (g *realtimeGateway) resolveAll(svc RequestService) func(context.Context, RealtimeSession, json.RawMessage) (interface{}, error) {
	return func(ctx context.Context, session RealtimeSession, data json.RawMessage) (interface{}, error) {
		ref, err := decodePayload[dto.CourseRef](data, g.validator)
		if err != nil {
			return nil, err
		}
		return nil, svc.ResolveAllForCourse(ctx, session.UserID, ref.CourseID)
	}
}

func (g *realtimeGateway) grantHallPass(ctx context.Context, session RealtimeSession, data json.RawMessage) (interface{}, error) {
	ref, err := decodePayload[dto.RequestRef](data, g.validator)
	if err != nil {
		return nil, err
	}
	return nil, g.hallPass.Grant(ctx, session.UserID, ref.RequestID)
}

func (g *realtimeGateway) status(svc RequestService) func(context.Context, RealtimeSession, json.RawMessage) (interface{}, error) {
	return func(ctx context.Context, session RealtimeSession, data json.RawMessage) (interface{}, error) {
		ref, err := decodePayload[dto.CourseRef](data, g.validator)
		if err != nil {
			return nil, err
		}
		open, err := svc.Status(ctx, session.UserID, ref.CourseID)
		if err != nil {
			return nil, err
		}
		return dto.RequestStatusResponse{Status: open}, nil
	}
}

// retrieve lists open requests for the requested courses the teacher actually teaches.
// An empty course list means every course the teacher teaches.
func (g *realtimeGateway) retrieve(svc RequestService) func(context.Context, RealtimeSession, json.RawMessage) (interface{}, error) {
	return func(ctx context.Context, session RealtimeSession, data json.RawMessage) (interface{}, error) {
		set, err := decodePayload[dto.CourseSet](data, g.validator)
		if err != nil {
			return nil, err
		}

		taught, err := g.courses.ListTaught(ctx, session.UserID)
		if err != nil {
			return nil, err
		}
		allowed := make(map[uint]struct{}, len(taught))
		for _, course := range taught {
			allowed[course.ID] = struct{}{}
		}

		ids := make([]uint, 0, len(taught))
		if len(set.CourseIDs) == 0 {
			for _, course := range taught {
				ids = append(ids, course.ID)
			}
		} else {
			for _, id := range set.CourseIDs {
				if _, ok := allowed[id]; ok {
					ids = append(ids, id)
				}
			}
		}

		requests, err := svc.ListOpen(ctx, ids)
		if err != nil {
			return nil, err
		}
		return dto.RequestListResponse{Requests: requests}, nil
	}
}

func (g *realtimeGateway) createCourse(ctx context.Context, session RealtimeSession, data json.RawMessage) (interface{}, error) {
	req, err := decodePayload[dto.CourseCreateRequest](data, g.validator)
	if err != nil {
		return nil, err
	}
	return g.courses.Create(ctx, session.UserID, req)
}

func (g *realtimeGateway) renameCourse(ctx context.Context, session RealtimeSession, data json.RawMessage) (interface{}, error) {
	req, err := decodePayload[dto.CourseRenameRequest](data, g.validator)
	if err != nil {
		return nil, err
	}
	return g.courses.Rename(ctx, session.UserID, req)
}

func (g *realtimeGateway) deleteCourse(ctx context.Context, session RealtimeSession, data json.RawMessage) (interface{}, error) {
	ref, err := decodePayload[dto.CourseRef](data, g.validator)
	if err != nil {
		return nil, err
	}
	return g.courses.Delete(ctx, session.UserID, ref.CourseID)
}

func (g *realtimeGateway) retrieveCourseKey(ctx context.Context, session RealtimeSession, data json.RawMessage) (interface{}, error) {
	ref, err := decodePayload[dto.CourseRef](data, g.validator)
	if err != nil {
		return nil, err
	}
	return g.courses.RetrieveKey(ctx, session.UserID, ref.CourseID)
}

func (g *realtimeGateway) assignNewCourseKey(ctx context.Context, session RealtimeSession, data json.RawMessage) (interface{}, error) {
	ref, err := decodePayload[dto.CourseRef](data, g.validator)
	if err != nil {
		return nil, err
	}
	return nil, g.courses.RotateKey(ctx, session.UserID, ref.CourseID)
}

func (g *realtimeGateway) joinCourse(ctx context.Context, session RealtimeSession, data json.RawMessage) (interface{}, error) {
	req, err := decodePayload[dto.CourseJoinRequest](data, g.validator)
	if err != nil {
		return nil, err
	}
	enrollment, err := g.courses.Join(ctx, session.UserID, req)
	if err != nil {
		return nil, err
	}
	return dto.CourseActionResponse{
		Success:    true,
		Message:    MsgCourseJoined,
		CourseID:   enrollment.Course.ID,
		CourseName: enrollment.Course.Name,
	}, nil
}

func (g *realtimeGateway) changePassword(ctx context.Context, session RealtimeSession, data json.RawMessage) (interface{}, error) {
	req, err := decodePayload[dto.ChangePasswordRequest](data, g.validator)
	if err != nil {
		return nil, err
	}
	return g.accounts.ChangePassword(ctx, session.UserID, req)
}

func (g *realtimeGateway) changeStudentPassword(ctx context.Context, session RealtimeSession, data json.RawMessage) (interface{}, error) {
	req, err := decodePayload[dto.ChangeStudentPasswordRequest](data, g.validator)
	if err != nil {
		return nil, err
	}
	return g.accounts.ChangeStudentPassword(ctx, session.UserID, req)
}

// decodePayload unmarshals an event payload and validates its struct tags.
func decodePayload[T any](data json.RawMessage, validate *validator.Validate) (T, error) {
	var payload T
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &payload); err != nil {
			return payload, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
		}
	}
	if err := validate.Struct(payload); err != nil {
		return payload, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	return payload, nil
}

func (c *realtimeClient) emit(event string, data interface{}) {
	select {
	case <-c.closed:
		return
	default:
	}

	select {
	case c.send <- dto.SocketReply{Event: event, Data: data}:
	default:
		c.logger.Warn().Str("event", event).Msg("client queue full, dropping reply")
	}
}

func (c *realtimeClient) writer() {
	defer c.close()

	ticker := time.NewTicker(realtimePingInterval)
	defer ticker.Stop()

	for {
		select {
		case reply := <-c.send:
			if err := c.conn.WriteJSON(reply); err != nil {
				c.logger.Debug().Err(err).Msg("realtime write loop terminated")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				c.logger.Debug().Err(err).Msg("realtime ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *realtimeClient) close() {
	c.once.Do(func() {
		close(c.closed)
		c.hub.unregister(c)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}
