package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStore_AppendAndHistory(t *testing.T) {
	s := NewSessionStore(10, time.Hour)

	s.Append("s1",
		Turn{Role: "user", Content: "hi"},
		Turn{Role: "assistant", Content: "hello"},
	)

	history := s.History("s1")
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "assistant", history[1].Role)

	assert.Nil(t, s.History("unknown"))
}

func TestSessionStore_TurnCap(t *testing.T) {
	s := NewSessionStore(4, time.Hour)

	for i := 0; i < 6; i++ {
		s.Append("s1", Turn{Role: "user", Content: string(rune('a' + i))})
	}

	history := s.History("s1")
	require.Len(t, history, 4)
	assert.Equal(t, "c", history[0].Content, "oldest turns are dropped")
	assert.Equal(t, "f", history[3].Content)
}

func TestSessionStore_HistoryReturnsCopy(t *testing.T) {
	s := NewSessionStore(10, time.Hour)
	s.Append("s1", Turn{Role: "user", Content: "original"})

	history := s.History("s1")
	history[0].Content = "mutated"

	assert.Equal(t, "original", s.History("s1")[0].Content)
}

func TestSessionStore_Clear(t *testing.T) {
	s := NewSessionStore(10, time.Hour)
	s.Append("s1", Turn{Role: "user", Content: "hi"})

	assert.True(t, s.Clear("s1"))
	assert.Nil(t, s.History("s1"))
	assert.False(t, s.Clear("s1"))
}

func TestSessionStore_IdleReap(t *testing.T) {
	s := NewSessionStore(10, 20*time.Millisecond)
	s.Append("stale", Turn{Role: "user", Content: "hi"})

	time.Sleep(40 * time.Millisecond)

	assert.Nil(t, s.History("stale"))
	assert.Equal(t, 0, s.Count())
}
