package models

import "time"

// RotationType determines how the on-call index advances over time.
type RotationType string

const (
	RotationDaily    RotationType = "daily"
	RotationWeekly   RotationType = "weekly"
	RotationBiweekly RotationType = "biweekly"
)

// Valid reports whether r is a known rotation type.
func (r RotationType) Valid() bool {
	switch r {
	case RotationDaily, RotationWeekly, RotationBiweekly:
		return true
	}
	return false
}

// MemberRole distinguishes primary rotation members from secondaries.
type MemberRole string

const (
	RolePrimary   MemberRole = "primary"
	RoleSecondary MemberRole = "secondary"
)

// Member is one entry of a schedule's ordered member list.
type Member struct {
	Name  string     `json:"name"`
	Email string     `json:"email"`
	Role  MemberRole `json:"role"`
}

// Schedule is the on-call rotation definition for a team.
// Invariant: at least one primary member at all times.
type Schedule struct {
	ID           string       `json:"id"`
	Team         string       `json:"team"`
	RotationType RotationType `json:"rotation_type"`
	Members      []Member     `json:"members"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Primaries returns the ordered primary members.
func (s *Schedule) Primaries() []Member {
	var out []Member
	for _, m := range s.Members {
		if m.Role == RolePrimary {
			out = append(out, m)
		}
	}
	return out
}

// Secondaries returns the ordered secondary members.
func (s *Schedule) Secondaries() []Member {
	var out []Member
	for _, m := range s.Members {
		if m.Role == RoleSecondary {
			out = append(out, m)
		}
	}
	return out
}

// Override is a time-bounded replacement of the scheduled primary.
// Expired overrides are logically absent.
type Override struct {
	Team      string    `json:"team"`
	UserName  string    `json:"user_name"`
	UserEmail string    `json:"user_email"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Responder identifies a person notifications and escalations resolve to.
type Responder struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Escalation records a transfer of responsibility to the secondary.
type Escalation struct {
	ID          string     `json:"id"`
	Team        string     `json:"team"`
	IncidentID  string     `json:"incident_id"`
	Reason      string     `json:"reason,omitempty"`
	EscalatedTo *Responder `json:"escalated_to"`
	CreatedAt   time.Time  `json:"created_at"`
}

// OncallPrimary is the resolved primary, possibly an override.
type OncallPrimary struct {
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Override  bool       `json:"override,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// OncallNow is the response of GET /api/v1/oncall/current.
type OncallNow struct {
	Team         string        `json:"team"`
	Primary      OncallPrimary `json:"primary"`
	Secondary    *Responder    `json:"secondary"`
	ScheduleID   string        `json:"schedule_id"`
	RotationType string        `json:"rotation_type"`
}

// OncallHistoryEvent is one entry of the bounded audit history ring.
type OncallHistoryEvent struct {
	ID        string         `json:"id"`
	Team      string         `json:"team"`
	EventType string         `json:"event_type"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Audit history event types.
const (
	HistoryScheduleCreated = "schedule_created"
	HistoryScheduleUpdated = "schedule_updated"
	HistoryScheduleDeleted = "schedule_deleted"
	HistoryOverrideSet     = "override_set"
	HistoryOverrideCleared = "override_cleared"
	HistoryOverrideExpired = "override_expired"
	HistoryEscalated       = "escalated"
	HistoryRotationChanged = "rotation_changed"
)

// CreateScheduleRequest is the body of POST /api/v1/schedules.
type CreateScheduleRequest struct {
	Team         string       `json:"team"`
	RotationType RotationType `json:"rotation_type"`
	Members      []Member     `json:"members"`
}

// PatchScheduleRequest carries partial schedule updates.
// RemoveMembers lists member names to drop.
type PatchScheduleRequest struct {
	RotationType  *RotationType `json:"rotation_type,omitempty"`
	AddMembers    []Member      `json:"add_members,omitempty"`
	RemoveMembers []string      `json:"remove_members,omitempty"`
}

// OverrideRequest is the body of POST /api/v1/oncall/override.
type OverrideRequest struct {
	Team          string `json:"team"`
	UserName      string `json:"user_name"`
	UserEmail     string `json:"user_email"`
	Reason        string `json:"reason,omitempty"`
	DurationHours *int   `json:"duration_hours,omitempty"`
}

// EscalateRequest is the body of POST /api/v1/escalate.
type EscalateRequest struct {
	Team       string `json:"team"`
	IncidentID string `json:"incident_id"`
	Reason     string `json:"reason,omitempty"`
}

// TeamSummary is one row of the GET /api/v1/teams listing.
type TeamSummary struct {
	Team         string       `json:"team"`
	RotationType RotationType `json:"rotation_type"`
	MemberCount  int          `json:"member_count"`
	HasOverride  bool         `json:"has_override"`
}

// OncallStats is the summary view of the on-call service.
type OncallStats struct {
	Schedules       int            `json:"schedules"`
	ActiveOverrides int            `json:"active_overrides"`
	Escalations     int            `json:"escalations"`
	HistoryEvents   int            `json:"history_events"`
	ByEventType     map[string]int `json:"by_event_type"`
}
