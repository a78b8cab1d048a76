package dto

import (
	"time"

	"github.com/samg2014/VirtualHand/internal/models"
)

// StudentSummary is the public view of the student attached to a request.
type StudentSummary struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
}

// RequestResponse is the serialized representation of an assistance or hall pass request.
type RequestResponse struct {
	ID           uint           `json:"id"`
	Kind         string         `json:"kind"`
	Student      StudentSummary `json:"student"`
	CourseID     uint           `json:"course"`
	RequestTime  time.Time      `json:"requestTime"`
	Granted      bool           `json:"granted,omitempty"`
	GrantedTime  *time.Time     `json:"grantedTime,omitempty"`
	Resolved     bool           `json:"resolved"`
	ResolvedType string         `json:"resolved_type,omitempty"`
	ResolvedTime *time.Time     `json:"resolvedTime,omitempty"`
}

// NewRequestResponse converts a request snapshot into a DTO.
func NewRequestResponse(snapshot models.RequestSnapshot) RequestResponse {
	return RequestResponse{
		ID:   snapshot.ID,
		Kind: snapshot.Kind,
		Student: StudentSummary{
			ID:       snapshot.Student.ID,
			Username: snapshot.Student.Username,
		},
		CourseID:     snapshot.CourseID,
		RequestTime:  snapshot.RequestTime,
		Granted:      snapshot.Granted,
		GrantedTime:  snapshot.GrantedTime,
		Resolved:     snapshot.Resolved,
		ResolvedType: snapshot.ResolvedType,
		ResolvedTime: snapshot.ResolvedTime,
	}
}

// NewRequestResponseSlice converts request snapshots into DTOs.
func NewRequestResponseSlice(snapshots []models.RequestSnapshot) []RequestResponse {
	out := make([]RequestResponse, 0, len(snapshots))
	for _, snapshot := range snapshots {
		out = append(out, NewRequestResponse(snapshot))
	}
	return out
}

// RequestStatusResponse reports whether a student has an open request.
type RequestStatusResponse struct {
	Status bool `json:"status"`
}

// RequestListResponse wraps a list of open requests.
type RequestListResponse struct {
	Requests []RequestResponse `json:"requests"`
}
