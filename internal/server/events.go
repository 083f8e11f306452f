package server

import (
	"context"
	"encoding/json"
	"time"
)

// MessageType defines the type of broadcast message
type MessageType string

const (
	// MessageTypePlanUpdate indicates a plan was created, updated, or deleted
	MessageTypePlanUpdate MessageType = "plan_update"

	// MessageTypeTaskToggle indicates a task's completion state changed
	MessageTypeTaskToggle MessageType = "task_toggle"

	// MessageTypeStats indicates updated plan statistics
	MessageTypeStats MessageType = "stats"
)

// Message represents a broadcast message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// PlanUpdateData contains plan change information
type PlanUpdateData struct {
	PlanID   string `json:"plan_id"`
	Action   string `json:"action"` // created, updated, deleted
	Topic    string `json:"topic,omitempty"`
	Progress int    `json:"progress,omitempty"`
	Version  int    `json:"version,omitempty"`
}

// TaskToggleData contains task toggle information
type TaskToggleData struct {
	PlanID     string `json:"plan_id"`
	SectionID  string `json:"section_id"`
	ItemID     string `json:"item_id"`
	NewStatus  string `json:"new_status"`
	NewVersion int    `json:"new_version"`
	Progress   int    `json:"progress"`
}

// StatsData contains plan statistics
type StatsData struct {
	Plans       int `json:"plans"`
	LegacyPlans int `json:"legacy_plans"`
	Clients     int `json:"clients"`
}

// broadcastPlanUpdate formats and broadcasts a plan change.
func (s *Server) broadcastPlanUpdate(data PlanUpdateData) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		s.logger.Printf("Failed to marshal plan update: %v", err)
		return
	}
	s.Broadcast(Message{
		Type:      MessageTypePlanUpdate,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}

// broadcastTaskToggle formats and broadcasts a toggle outcome.
func (s *Server) broadcastTaskToggle(data TaskToggleData) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		s.logger.Printf("Failed to marshal task toggle: %v", err)
		return
	}
	s.Broadcast(Message{
		Type:      MessageTypeTaskToggle,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}

// broadcastStats sends current statistics to all clients.
func (s *Server) broadcastStats() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	total, err := s.db.GetPlanCount(ctx)
	if err != nil {
		s.logger.Printf("Failed to count plans: %v", err)
		return
	}
	legacy, err := s.db.GetLegacyPlanCount(ctx)
	if err != nil {
		s.logger.Printf("Failed to count legacy plans: %v", err)
		return
	}

	dataJSON, err := json.Marshal(StatsData{
		Plans:       total,
		LegacyPlans: legacy,
		Clients:     s.ClientCount(),
	})
	if err != nil {
		s.logger.Printf("Failed to marshal stats: %v", err)
		return
	}
	s.Broadcast(Message{
		Type:      MessageTypeStats,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}
