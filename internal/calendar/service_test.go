package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedule_Defaults(t *testing.T) {
	s := NewService()

	meeting, err := s.Schedule(context.Background(), "user1", nil, "")
	require.NoError(t, err)

	assert.NotEmpty(t, meeting.ID)
	assert.Equal(t, "user1", meeting.UserID)
	assert.Equal(t, "Support call", meeting.Topic)
	assert.Equal(t, StatusScheduled, meeting.Status)
	assert.WithinDuration(t, time.Now().UTC().Add(24*time.Hour), meeting.Time, time.Minute)
}

func TestSchedule_ExplicitTime(t *testing.T) {
	s := NewService()
	when := time.Date(2026, 9, 15, 14, 30, 0, 0, time.UTC)

	meeting, err := s.Schedule(context.Background(), "user1", &when, "Rate review")
	require.NoError(t, err)

	assert.Equal(t, when, meeting.Time)
	assert.Equal(t, "Rate review", meeting.Topic)
}

func TestList_FiltersByUser(t *testing.T) {
	s := NewService()
	ctx := context.Background()

	_, err := s.Schedule(ctx, "user1", nil, "")
	require.NoError(t, err)
	_, err = s.Schedule(ctx, "user1", nil, "")
	require.NoError(t, err)
	_, err = s.Schedule(ctx, "user2", nil, "")
	require.NoError(t, err)

	meetings, err := s.List(ctx, "user1")
	require.NoError(t, err)
	assert.Len(t, meetings, 2)
}

func TestCancel(t *testing.T) {
	s := NewService()
	ctx := context.Background()

	meeting, err := s.Schedule(ctx, "user1", nil, "")
	require.NoError(t, err)

	canceled, err := s.Cancel(ctx, meeting.ID)
	require.NoError(t, err)
	assert.True(t, canceled)

	meetings, err := s.List(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, meetings, 1)
	assert.Equal(t, StatusCanceled, meetings[0].Status)

	canceled, err = s.Cancel(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, canceled)
}
