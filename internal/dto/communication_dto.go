package dto

import (
	"time"

	"github.com/noah-isme/fyp-go-api/internal/models"
)

// NotificationCreateRequest describes the payload to create a notification.
type NotificationCreateRequest struct {
	UserID  uint                   `json:"user_id" validate:"required"`
	Type    string                 `json:"type" validate:"required,max=64"`
	Message string                 `json:"message" validate:"required,min=1,max=2000"`
	Payload map[string]interface{} `json:"payload"`
}

// NotificationListQuery narrows a user's notification listing.
type NotificationListQuery struct {
	Limit      int
	Offset     int
	UnreadOnly bool
}

// NotificationInboxSummary reports unread state after inbox-wide operations.
type NotificationInboxSummary struct {
	Unread  int64 `json:"unread"`
	Updated int64 `json:"updated,omitempty"`
}

// NotificationResponse represents notification data returned to clients.
type NotificationResponse struct {
	ID        uint                   `json:"id"`
	UserID    uint                   `json:"user_id"`
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Read      bool                   `json:"read"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// NewNotificationResponse converts a notification model to DTO.
func NewNotificationResponse(model models.Notification) NotificationResponse {
	var payload map[string]interface{}
	if len(model.Payload) > 0 {
		payload = make(map[string]interface{}, len(model.Payload))
		for key, value := range model.Payload {
			payload[key] = value
		}
	}
	return NotificationResponse{
		ID:        model.ID,
		UserID:    model.UserID,
		Type:      model.Type,
		Message:   model.Message,
		Payload:   payload,
		Read:      model.Read,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}

// NewNotificationResponseSlice converts a slice of models into DTOs.
func NewNotificationResponseSlice(items []models.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, model := range items {
		out = append(out, NewNotificationResponse(model))
	}
	return out
}
