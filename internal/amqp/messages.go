package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// PenaltyAppliedMessage announces that a goal was marked missed and its group fund credited.
// It carries everything the notifier needs so consumers never read the goal back.
type PenaltyAppliedMessage struct {
	GoalID    string    `json:"goal_id"`
	GroupID   string    `json:"group_id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Points    int64     `json:"points"`
	AppliedAt time.Time `json:"applied_at"`
}

// ToJSON converts the message to JSON bytes
func (m *PenaltyAppliedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// PenaltyAppliedMessageFromJSON decodes and validates a message body.
func PenaltyAppliedMessageFromJSON(data []byte) (*PenaltyAppliedMessage, error) {
	var msg PenaltyAppliedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.GoalID == "" || msg.GroupID == "" || msg.UserID == "" {
		return nil, fmt.Errorf("penalty message missing goal, group or user id")
	}
	if msg.Points <= 0 {
		return nil, fmt.Errorf("penalty message has non-positive points: %d", msg.Points)
	}
	return &msg, nil
}
