package history_test

import (
	"fmt"
	"testing"

	"github.com/agentoven/orchestrator/internal/history"
	"github.com/agentoven/orchestrator/pkg/models"
	"github.com/stretchr/testify/assert"
)

func chat(content string) models.Message {
	return models.NewMessage(models.SenderHuman, []string{"a"}, content, models.MessageTypeChat, nil)
}

func TestAppendAndGet(t *testing.T) {
	s := history.NewMemoryStore()
	s.Reset("a")
	for i := 0; i < 5; i++ {
		s.Append("a", chat(fmt.Sprint(i)))
	}

	all := s.Get("a", 0)
	assert.Len(t, all, 5)
	assert.Equal(t, "0", all[0].Content)

	tail := s.Get("a", 2)
	assert.Len(t, tail, 2)
	assert.Equal(t, "3", tail[0].Content)
	assert.Equal(t, "4", tail[1].Content)

	assert.Len(t, s.Get("a", 50), 5)
}

func TestGetUnknownIsEmpty(t *testing.T) {
	s := history.NewMemoryStore()
	got := s.Get("ghost", 10)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestGetReturnsCopy(t *testing.T) {
	s := history.NewMemoryStore()
	s.Append("a", chat("x"))

	got := s.Get("a", 0)
	got[0].Content = "mutated"
	assert.Equal(t, "x", s.Get("a", 0)[0].Content)
}

func TestResetClears(t *testing.T) {
	s := history.NewMemoryStore()
	s.Append("a", chat("old"))
	s.Reset("a")
	assert.Equal(t, 0, s.Len("a"))
}
