package calendar

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aven-agent/backend/pkg/logger"
)

type MeetingStatus string

const (
	StatusScheduled MeetingStatus = "scheduled"
	StatusCanceled  MeetingStatus = "canceled"
)

type Meeting struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	Time      time.Time     `json:"time"`
	Topic     string        `json:"topic"`
	CreatedAt time.Time     `json:"created_at"`
	Status    MeetingStatus `json:"status"`
}

// Service is an in-memory meeting book. A production deployment would swap
// in a real calendar provider behind the same methods.
type Service struct {
	mu       sync.Mutex
	meetings map[string]*Meeting
}

func NewService() *Service {
	return &Service{
		meetings: make(map[string]*Meeting),
	}
}

// Schedule books a meeting. A nil time defaults to tomorrow.
func (s *Service) Schedule(ctx context.Context, userID string, at *time.Time, topic string) (*Meeting, error) {
	if topic == "" {
		topic = "Support call"
	}

	meetingTime := time.Now().UTC().Add(24 * time.Hour)
	if at != nil {
		meetingTime = at.UTC()
	}

	meeting := &Meeting{
		ID:        uuid.New().String(),
		UserID:    userID,
		Time:      meetingTime,
		Topic:     topic,
		CreatedAt: time.Now().UTC(),
		Status:    StatusScheduled,
	}

	s.mu.Lock()
	s.meetings[meeting.ID] = meeting
	s.mu.Unlock()

	logger.Info("Meeting scheduled",
		zap.String("meeting_id", meeting.ID),
		zap.String("user_id", userID),
		zap.Time("time", meetingTime),
	)

	copied := *meeting
	return &copied, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var meetings []Meeting
	for _, m := range s.meetings {
		if m.UserID == userID {
			meetings = append(meetings, *m)
		}
	}
	return meetings, nil
}

func (s *Service) Cancel(ctx context.Context, meetingID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meeting, ok := s.meetings[meetingID]
	if !ok {
		return false, nil
	}
	meeting.Status = StatusCanceled

	logger.Info("Meeting canceled", zap.String("meeting_id", meetingID))
	return true, nil
}
