package models

import "time"

// Channel is a notification delivery mechanism.
type Channel string

const (
	ChannelMock    Channel = "mock"
	ChannelEmail   Channel = "email"
	ChannelSlack   Channel = "slack"
	ChannelWebhook Channel = "webhook"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelMock, ChannelEmail, ChannelSlack, ChannelWebhook:
		return true
	}
	return false
}

// NotificationStatus is the delivery outcome recorded in the log.
type NotificationStatus string

const (
	NotificationSent   NotificationStatus = "sent"
	NotificationFailed NotificationStatus = "failed"
)

// Notification is one entry of the bounded notification log.
type Notification struct {
	ID         string             `json:"id"`
	IncidentID string             `json:"incident_id"`
	Channel    Channel            `json:"channel"`
	Recipient  string             `json:"recipient"`
	Message    string             `json:"message"`
	Severity   string             `json:"severity,omitempty"`
	Metadata   map[string]any     `json:"metadata,omitempty"`
	Status     NotificationStatus `json:"status"`
	CreatedAt  time.Time          `json:"created_at"`
}

// NotifyRequest is the body of POST /api/v1/notify.
type NotifyRequest struct {
	IncidentID string         `json:"incident_id"`
	Channel    string         `json:"channel"`
	Recipient  string         `json:"recipient"`
	Message    string         `json:"message"`
	Severity   string         `json:"severity,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NotificationFilter contains filtering and pagination options.
type NotificationFilter struct {
	Channel    string
	Status     string
	IncidentID string
	Recipient  string
	Limit      int
	Offset     int
}

// NotificationListResponse contains a paginated notification list.
type NotificationListResponse struct {
	Notifications []Notification `json:"notifications"`
	TotalCount    int            `json:"total_count"`
	Limit         int            `json:"limit"`
	Offset        int            `json:"offset"`
}

// NotificationStats is the response of GET
// /api/v1/notifications/stats/summary. Entries without a severity are
// counted under "unknown".
type NotificationStats struct {
	Total      int            `json:"total"`
	Sent       int            `json:"sent"`
	Failed     int            `json:"failed"`
	ByChannel  map[string]int `json:"by_channel"`
	BySeverity map[string]int `json:"by_severity"`
}
