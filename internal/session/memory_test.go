package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varsilias/mpt-chat/internal/prompt"
	"github.com/varsilias/mpt-chat/pkg/types"
)

func TestMemoryStore_UnknownSessionHasDefaults(t *testing.T) {
	s := NewMemoryStore()

	sess, err := s.Get("fresh")
	require.NoError(t, err)
	assert.Equal(t, "fresh", sess.ID)
	assert.Equal(t, prompt.DefaultSystemPrompt, sess.SystemPrompt)
	assert.Empty(t, sess.History)
	assert.Empty(t, s.List(), "Get must not create sessions")
}

func TestMemoryStore_TurnLifecycle(t *testing.T) {
	s := NewMemoryStore()

	tk, err := s.AppendTurn("a", "Hi")
	require.NoError(t, err)
	assert.Equal(t, 0, tk.Index)

	sess, _ := s.Get("a")
	assert.Equal(t, types.History{{User: "Hi"}}, sess.History)

	require.NoError(t, s.CompleteTurn("a", tk, "Hello!"))
	sess, _ = s.Get("a")
	assert.Equal(t, types.History{{User: "Hi", Assistant: "Hello!"}}, sess.History)

	assert.ErrorIs(t, s.CompleteTurn("a", tk, "again"), ErrStaleTurn)
}

func TestMemoryStore_ClearInvalidatesTickets(t *testing.T) {
	s := NewMemoryStore()

	tk, _ := s.AppendTurn("a", "Hi")
	require.NoError(t, s.Clear("a"))
	_, _ = s.AppendTurn("a", "Hi")

	assert.ErrorIs(t, s.CompleteTurn("a", tk, "late"), ErrStaleTurn)
	sess, _ := s.Get("a")
	assert.Equal(t, types.History{{User: "Hi"}}, sess.History)
}

func TestMemoryStore_ClearKeepsSystemPrompt(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.SetSystemPrompt("a", "X"))
	_, _ = s.AppendTurn("a", "Hi")

	require.NoError(t, s.Clear("a"))

	sess, _ := s.Get("a")
	assert.Empty(t, sess.History)
	assert.Equal(t, "X", sess.SystemPrompt)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	_, _ = s.AppendTurn("a", "Hi")

	sess, _ := s.Get("a")
	sess.History[0].User = "mutated"

	again, _ := s.Get("a")
	assert.Equal(t, "Hi", again.History[0].User)
}

func TestMemoryStore_SessionsAreIsolated(t *testing.T) {
	s := NewMemoryStore()
	_, _ = s.AppendTurn("a", "for a")
	require.NoError(t, s.SetSystemPrompt("b", "only b"))

	a, _ := s.Get("a")
	b, _ := s.Get("b")
	assert.Equal(t, prompt.DefaultSystemPrompt, a.SystemPrompt)
	assert.Empty(t, b.History)
}

func TestMemoryStore_EmptyID(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get("")
	assert.ErrorIs(t, err, ErrEmptyID)
	_, err = s.AppendTurn("", "x")
	assert.ErrorIs(t, err, ErrEmptyID)
	assert.ErrorIs(t, s.Clear(""), ErrEmptyID)
	assert.ErrorIs(t, s.SetSystemPrompt("", "x"), ErrEmptyID)
}

func TestMemoryStore_ListTitles(t *testing.T) {
	s := NewMemoryStore()
	_, _ = s.AppendTurn("a", "how do goroutines work")
	s.Touch("b")

	titles := map[string]string{}
	for _, sum := range s.List() {
		titles[sum.ID] = sum.Title
	}
	assert.Equal(t, map[string]string{"a": "how do goroutine…", "b": ""}, titles)
}

func TestMemoryStore_ConcurrentAppend(t *testing.T) {
	s := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = s.AppendTurn("a", fmt.Sprintf("m%d", i))
		}(i)
	}
	wg.Wait()

	sess, _ := s.Get("a")
	assert.Len(t, sess.History, 50)
}
