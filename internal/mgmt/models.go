// Package mgmt provides the management API of the santa bot.
package mgmt

import (
	"time"

	"github.com/p-blackswan/santa-bot/internal/coordinator"
	"github.com/p-blackswan/santa-bot/internal/santa"
)

// ProblemDetail is an RFC 7807 error body.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// SessionView is the operator view of a session.
type SessionView struct {
	*santa.Session
	Age     string `json:"age"`
	Expired bool   `json:"expired"`
}

// SessionListResponse is the body of GET /api/v1/sessions.
type SessionListResponse struct {
	Sessions []SessionView `json:"sessions"`
	Total    int           `json:"total"`
}

// SessionResponse is the body of GET /api/v1/sessions/:room.
type SessionResponse struct {
	Session SessionView `json:"session"`
}

// MigrateRequest is the payload for POST /api/v1/sessions/:room/migrate.
type MigrateRequest struct {
	NewRoom      string `json:"new_room"`
	NewRoomTitle string `json:"new_room_title,omitempty"`
	Actor        string `json:"actor,omitempty"`
}

// OperationResponse reports a cancel or migrate and the delivery of its plan.
type OperationResponse struct {
	Status    coordinator.Status `json:"status"`
	Notice    string             `json:"notice,omitempty"`
	Session   *santa.Session     `json:"session,omitempty"`
	Delivered int                `json:"delivered"`
	Failures  []string           `json:"failures,omitempty"`
}

// StatsResponse is the body of GET /api/v1/stats.
type StatsResponse struct {
	coordinator.Stats
	Uptime string `json:"uptime"`
}

// ReadinessResponse is the body of GET /readyz.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
	Time   time.Time         `json:"time"`
}
