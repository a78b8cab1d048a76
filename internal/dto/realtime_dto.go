package dto

import "encoding/json"

// SocketFrame is an inbound realtime message.
type SocketFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SocketReply is an outbound realtime message sent to one connection or broadcast to all.
type SocketReply struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// SocketErrorResponse is emitted on Response_Error when a handler without its own reply fails.
// CorrelationID echoes the connection's correlation id so clients can quote it in reports.
type SocketErrorResponse struct {
	Success       bool   `json:"success"`
	Code          string `json:"code"`
	Message       string `json:"message"`
	Event         string `json:"event"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// CourseRef identifies a course in a realtime payload.
type CourseRef struct {
	CourseID uint `json:"courseId" validate:"required"`
}

// CourseSet identifies several courses in a realtime payload.
type CourseSet struct {
	CourseIDs []uint `json:"courseIds" validate:"max=200"`
}

// RequestRef identifies one assistance or hall pass request.
type RequestRef struct {
	RequestID uint `json:"requestId" validate:"required"`
}
