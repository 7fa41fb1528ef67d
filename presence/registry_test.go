package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// detachedSession builds a session without a live connection or write pump,
// enough for registry bookkeeping.
func detachedSession(userID int64, username string) *Session {
	return &Session{
		UserID:   userID,
		Username: username,
		SendChan: make(chan []byte, sendChanBuf),
		Done:     make(chan struct{}),
		logger:   zap.NewNop(),
	}
}

func TestRegisterAndLookup(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	s := detachedSession(1, "alice")

	assert.False(t, reg.IsOnline(1))
	assert.Nil(t, reg.Get(1))

	reg.Register(s)
	assert.True(t, reg.IsOnline(1))
	assert.Same(t, s, reg.Get(1))
	assert.Equal(t, 1, reg.Count())
}

func TestRegisterDisplacesPreviousSession(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	first := detachedSession(1, "alice")
	second := detachedSession(1, "alice")

	reg.Register(first)
	reg.Register(second)

	assert.True(t, first.IsClosed(), "displaced session must be closed")
	assert.False(t, second.IsClosed())
	assert.Same(t, second, reg.Get(1))
	assert.Equal(t, 1, reg.Count())
}

func TestUnregisterRemovesCurrentSession(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	s := detachedSession(1, "alice")
	reg.Register(s)

	assert.True(t, reg.Unregister(s))
	assert.False(t, reg.IsOnline(1))
	assert.Zero(t, reg.Count())
}

func TestUnregisterIgnoresStaleSession(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	old := detachedSession(1, "alice")
	reg.Register(old)

	// Reconnect races ahead of the old connection's disconnect handler.
	current := detachedSession(1, "alice")
	reg.Register(current)

	// The late disconnect of the displaced session must not evict the
	// session that replaced it.
	assert.False(t, reg.Unregister(old))
	assert.True(t, reg.IsOnline(1))
	assert.Same(t, current, reg.Get(1))
}

func TestUnregisterUnknownSession(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	assert.False(t, reg.Unregister(detachedSession(42, "ghost")))
}

func TestAllReturnsSnapshot(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	reg.Register(detachedSession(1, "alice"))
	reg.Register(detachedSession(2, "bob"))

	all := reg.All()
	require.Len(t, all, 2)
	seen := map[int64]bool{}
	for _, s := range all {
		seen[s.UserID] = true
	}
	assert.True(t, seen[1])
	assert.True(t, seen[2])
}

func TestCloseAllDrains(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	a := detachedSession(1, "alice")
	b := detachedSession(2, "bob")
	reg.Register(a)
	reg.Register(b)

	// Simulate disconnect handlers reacting to Close.
	done := make(chan struct{})
	go func() {
		<-a.Done
		reg.Unregister(a)
		<-b.Done
		reg.Unregister(b)
		close(done)
	}()

	reg.CloseAll()
	<-done
	assert.Zero(t, reg.Count())
	assert.True(t, a.IsClosed())
	assert.True(t, b.IsClosed())
}

func TestSessionSendAfterClose(t *testing.T) {
	s := detachedSession(1, "alice")
	s.Close()
	s.Close() // second close is a no-op

	s.Send(&Packet{Type: "ping"})
	s.SendRaw([]byte("x"))
	assert.Empty(t, s.SendChan)
}

func TestSessionSendQueues(t *testing.T) {
	s := detachedSession(1, "alice")
	s.Send(&Packet{Type: "hello"})
	require.Len(t, s.SendChan, 1)
	data := <-s.SendChan
	assert.Contains(t, string(data), `"type":"hello"`)
}
