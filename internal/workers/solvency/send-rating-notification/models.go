// internal/workers/solvency/send-rating-notification/models.go
package sendratingnotification

import (
	"time"

	"solvency-workers/internal/solvency"
)

const (
	StatusSent     = "sent"
	StatusDisabled = "disabled"
	StatusFailed   = "failed"

	ChannelEmail = "email"
	ChannelSNS   = "sns"

	EventRatingUpdated = "rating.updated"
)

type Input struct {
	UserID         string           `json:"userId"`
	RecipientEmail string           `json:"recipientEmail"`
	Rating         *solvency.Rating `json:"rating"`
	// Channels restricts delivery; empty means every enabled channel.
	Channels []string `json:"channels"`
}

type Output struct {
	NotificationID     string     `json:"notificationId"`
	NotificationStatus string     `json:"notificationStatus"`
	NotifiedAt         time.Time  `json:"notifiedAt"`
	Deliveries         []Delivery `json:"deliveries"`
}

type Delivery struct {
	Channel   string `json:"channel"`
	Status    string `json:"status"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RatingEvent is the SNS payload.
type RatingEvent struct {
	EventType      string          `json:"eventType"`
	NotificationID string          `json:"notificationId"`
	UserID         string          `json:"userId"`
	OverallRating  int             `json:"overallRating"`
	Rating         solvency.Rating `json:"rating"`
	OccurredAt     time.Time       `json:"occurredAt"`
}
