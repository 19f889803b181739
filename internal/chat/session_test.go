package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/oasis/internal/ai"
	"github.com/gosuda/oasis/internal/broadcast"
	"github.com/gosuda/oasis/internal/kv"
)

// quiet never solicits a host reply.
var quiet Trigger = func(string) bool { return false }

type tabOptions struct {
	store     kv.Store
	completer ai.Completer
	trigger   Trigger
	listener  func(Event)
}

func mountTab(t *testing.T, hub broadcast.Hub, opts tabOptions) *Session {
	t.Helper()
	if opts.store == nil {
		opts.store = kv.NewMemory()
	}
	if opts.trigger == nil {
		opts.trigger = quiet
	}
	s, err := NewSession(SessionConfig{
		Store:     opts.store,
		Hub:       hub,
		Responder: ai.NewResponder(opts.completer, 0),
		Trigger:   opts.trigger,
		Listener:  opts.listener,
		Rand:      rand.New(rand.NewPCG(1, 2)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func countID(msgs []Message, id string) int {
	n := 0
	for _, m := range msgs {
		if m.ID == id {
			n++
		}
	}
	return n
}

func TestWelcomeSeededForFreshIdentity(t *testing.T) {
	hub := broadcast.NewLocal()
	defer hub.Close()

	tab := mountTab(t, hub, tabOptions{})
	_, ok := tab.Nickname()
	require.False(t, ok)
	require.Empty(t, tab.History())

	nick, err := tab.SetNickname("Nova")
	require.NoError(t, err)
	assert.Equal(t, "Nova", nick)

	history := tab.History()
	require.Len(t, history, 1)
	assert.Equal(t, RoleSystem, history[0].Role)
	assert.Equal(t, SystemUser, history[0].User)
	assert.Contains(t, history[0].Text, "Nova")
	assert.True(t, strings.HasPrefix(history[0].ID, "sys-"))
}

func TestWelcomeReachesOtherTabsAndBumpsOnline(t *testing.T) {
	hub := broadcast.NewLocal()
	defer hub.Close()

	a := mountTab(t, hub, tabOptions{})
	b := mountTab(t, hub, tabOptions{})
	before := b.OnlineCount()

	_, err := a.SetNickname("Nova")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(b.History()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, a.History()[0].ID, b.History()[0].ID)
	assert.Equal(t, min(before+1, OnlineMax), b.OnlineCount())
}

func TestNoReseedWithExistingHistory(t *testing.T) {
	hub := broadcast.NewLocal()
	defer hub.Close()
	store := kv.NewMemory()

	first := mountTab(t, hub, tabOptions{store: store})
	_, err := first.SetNickname("Nova")
	require.NoError(t, err)
	_, err = first.Send("first light")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	// a reload: same profile store, identity and history already present
	reloaded := mountTab(t, hub, tabOptions{store: store})
	nick, ok := reloaded.Nickname()
	require.True(t, ok)
	assert.Equal(t, "Nova", nick)
	require.Len(t, reloaded.History(), 2)

	_, err = reloaded.SetNickname("Nova")
	require.NoError(t, err)
	assert.Len(t, reloaded.History(), 2)
}

func TestMountWithIdentityAndEmptyHistorySeeds(t *testing.T) {
	hub := broadcast.NewLocal()
	defer hub.Close()
	store := kv.NewMemory()
	require.NoError(t, store.Set(identityKey, "Orion"))

	tab := mountTab(t, hub, tabOptions{store: store})
	history := tab.History()
	require.Len(t, history, 1)
	assert.Contains(t, history[0].Text, "Orion")
}

func TestSetNicknameRejectsShortCandidate(t *testing.T) {
	hub := broadcast.NewLocal()
	defer hub.Close()
	store := kv.NewMemory()

	tab := mountTab(t, hub, tabOptions{store: store})
	_, err := tab.SetNickname("  x  ")
	assert.ErrorIs(t, err, ErrNicknameTooShort)

	_, err = store.Get(identityKey)
	assert.ErrorIs(t, err, kv.ErrNotFound)
	assert.Empty(t, tab.History())
	_, ok := tab.Nickname()
	assert.False(t, ok)
}

func TestSendValidation(t *testing.T) {
	hub := broadcast.NewLocal()
	defer hub.Close()

	tab := mountTab(t, hub, tabOptions{})
	_, err := tab.Send("hello")
	assert.ErrorIs(t, err, ErrNoIdentity)

	_, err = tab.SetNickname("Nova")
	require.NoError(t, err)
	_, err = tab.Send("   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	m, err := tab.Send("  keeps its spacing ")
	require.NoError(t, err)
	assert.Equal(t, "  keeps its spacing ", m.Text)
	assert.Equal(t, RoleUser, m.Role)
	assert.Equal(t, "Nova", m.User)
	assert.True(t, strings.HasPrefix(m.ID, "msg-"))
}

func TestGreetingSolicitsHostReply(t *testing.T) {
	hub := broadcast.NewLocal()
	defer hub.Close()

	var mu sync.Mutex
	var prompts []string
	completer := ai.CompleterFunc(func(_ context.Context, prompt string) (string, error) {
		mu.Lock()
		prompts = append(prompts, prompt)
		mu.Unlock()
		return "Welcome aboard.", nil
	})

	tab := mountTab(t, hub, tabOptions{completer: completer, trigger: GreetingTrigger(0, nil)})
	observer := mountTab(t, hub, tabOptions{})

	_, err := tab.SetNickname("Nova")
	require.NoError(t, err)
	_, err = tab.Send("hello there")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(tab.History()) == 3 }, time.Second, 5*time.Millisecond)
	reply := tab.History()[2]
	assert.Equal(t, RoleModel, reply.Role)
	assert.Equal(t, HostUser, reply.User)
	assert.Equal(t, HostColor, reply.Color)
	assert.Equal(t, "Welcome aboard.", reply.Text)
	assert.True(t, strings.HasPrefix(reply.ID, "ai-"))
	assert.False(t, tab.Loading())

	mu.Lock()
	require.Len(t, prompts, 1)
	assert.Equal(t, "(Context: Real-time chat with Nova) hello there", prompts[0])
	mu.Unlock()

	// the reply is broadcast like any other message
	require.Eventually(t, func() bool { return countID(observer.History(), reply.ID) == 1 }, time.Second, 5*time.Millisecond)
}

func TestFailedCompletionAppendsFallback(t *testing.T) {
	hub := broadcast.NewLocal()
	defer hub.Close()

	failing := ai.CompleterFunc(func(context.Context, string) (string, error) {
		return "", errors.New("upstream unavailable")
	})
	tab := mountTab(t, hub, tabOptions{completer: failing, trigger: GreetingTrigger(1, nil)})

	_, err := tab.SetNickname("Nova")
	require.NoError(t, err)
	_, err = tab.Send("status report")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(tab.History()) == 3 }, time.Second, 5*time.Millisecond)
	// give any stray append a chance to show up
	time.Sleep(20 * time.Millisecond)
	history := tab.History()
	require.Len(t, history, 3)
	assert.Equal(t, RoleModel, history[2].Role)
	assert.Equal(t, ai.ErrorFallback, history[2].Text)
}

func TestLoadingWhileReplyPending(t *testing.T) {
	hub := broadcast.NewLocal()
	defer hub.Close()

	release := make(chan struct{})
	blocking := ai.CompleterFunc(func(ctx context.Context, _ string) (string, error) {
		select {
		case <-release:
			return "done", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})
	var mu sync.Mutex
	var loadingEvents []bool
	listener := func(ev Event) {
		if ev.Kind == EventLoading {
			mu.Lock()
			loadingEvents = append(loadingEvents, ev.Loading)
			mu.Unlock()
		}
	}
	tab := mountTab(t, hub, tabOptions{completer: blocking, trigger: GreetingTrigger(1, nil), listener: listener})
	_, err := tab.SetNickname("Nova")
	require.NoError(t, err)

	_, err = tab.Send("one")
	require.NoError(t, err)
	assert.True(t, tab.Loading())

	// sending while loading is allowed and starts its own reply
	_, err = tab.Send("two")
	require.NoError(t, err)

	close(release)
	require.Eventually(t, func() bool { return !tab.Loading() && len(tab.History()) == 5 }, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, loadingEvents)
	assert.True(t, loadingEvents[0])
	assert.False(t, loadingEvents[len(loadingEvents)-1])
}

func TestCloseDiscardsPendingReply(t *testing.T) {
	hub := broadcast.NewLocal()
	defer hub.Close()
	store := kv.NewMemory()

	started := make(chan struct{})
	slow := ai.CompleterFunc(func(ctx context.Context, _ string) (string, error) {
		close(started)
		<-ctx.Done()
		return "too late", nil
	})
	tab := mountTab(t, hub, tabOptions{store: store, completer: slow, trigger: GreetingTrigger(1, nil)})
	_, err := tab.SetNickname("Nova")
	require.NoError(t, err)
	_, err = tab.Send("anyone?")
	require.NoError(t, err)
	<-started

	require.NoError(t, tab.Close())
	require.NoError(t, tab.Close())

	persisted := LoadHistory(store).Messages()
	assert.Len(t, persisted, 2)

	_, err = tab.Send("after close")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestTwoTabsDeduplicate(t *testing.T) {
	hub := broadcast.NewLocal()
	defer hub.Close()

	a := mountTab(t, hub, tabOptions{})
	b := mountTab(t, hub, tabOptions{})
	_, err := a.SetNickname("Nova")
	require.NoError(t, err)

	m1, err := a.Send("M1 payload")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return countID(b.History(), m1.ID) == 1 }, time.Second, 5*time.Millisecond)

	payload, err := json.Marshal(m1)
	require.NoError(t, err)
	before := b.History()
	for i := 0; i < 5; i++ {
		b.receive(payload)
	}
	// receive queues onto the loop; History runs after those commands
	after := b.History()
	assert.Equal(t, before, after)
	assert.Equal(t, 1, countID(after, m1.ID))

	// the sender never merges its own publication
	assert.Equal(t, 1, countID(a.History(), m1.ID))
}

func TestMalformedBroadcastIgnored(t *testing.T) {
	hub := broadcast.NewLocal()
	defer hub.Close()

	tab := mountTab(t, hub, tabOptions{})
	tab.receive([]byte("{not json"))
	tab.receive([]byte(`{"user":"ghost","text":"no id","role":"user"}`))
	assert.Empty(t, tab.History())
}

func TestOnlineCountStaysBounded(t *testing.T) {
	hub := broadcast.NewLocal()
	defer hub.Close()

	tab := mountTab(t, hub, tabOptions{})
	start := tab.OnlineCount()
	assert.GreaterOrEqual(t, start, 5)
	assert.LessOrEqual(t, start, 7)

	for i := 0; i < 60; i++ {
		m := Message{ID: fmt.Sprintf("sys-%d", i), User: SystemUser, Text: welcomeText(fmt.Sprintf("p%d", i)), Role: RoleSystem}
		b, err := json.Marshal(m)
		require.NoError(t, err)
		tab.receive(b)
	}
	n := tab.OnlineCount()
	assert.Equal(t, OnlineMax, n)
	assert.Len(t, tab.History(), 60)
}

func TestOnlineJitterBounds(t *testing.T) {
	c := newOnlineCounter(rand.New(rand.NewPCG(7, 7)))
	for i := 0; i < 1000; i++ {
		n := c.jitter()
		require.GreaterOrEqual(t, n, 0)
		require.LessOrEqual(t, n, OnlineMax)
	}
	for i := 0; i < 100; i++ {
		c.bump()
	}
	assert.Equal(t, OnlineMax, c.n)
}

func TestResetRequiresConfirmation(t *testing.T) {
	hub := broadcast.NewLocal()
	defer hub.Close()
	store := kv.NewMemory()

	var mu sync.Mutex
	var kinds []EventKind
	tab := mountTab(t, hub, tabOptions{store: store, listener: func(ev Event) {
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		mu.Unlock()
	}})
	_, err := tab.SetNickname("Nova")
	require.NoError(t, err)
	_, err = tab.Send("bye")
	require.NoError(t, err)

	assert.ErrorIs(t, tab.Reset(false), ErrNotConfirmed)
	assert.Len(t, tab.History(), 2)

	require.NoError(t, tab.Reset(true))
	assert.Empty(t, tab.History())
	_, ok := tab.Nickname()
	assert.False(t, ok)

	_, err = store.Get(identityKey)
	assert.ErrorIs(t, err, kv.ErrNotFound)
	_, err = store.Get(historyKey)
	assert.ErrorIs(t, err, kv.ErrNotFound)

	mu.Lock()
	assert.Contains(t, kinds, EventReset)
	mu.Unlock()

	// a new identity after reset starts over with a welcome
	_, err = tab.SetNickname("Orion")
	require.NoError(t, err)
	require.Len(t, tab.History(), 1)
}

func TestSnapshot(t *testing.T) {
	hub := broadcast.NewLocal()
	defer hub.Close()

	tab := mountTab(t, hub, tabOptions{})
	_, err := tab.SetNickname("Nova")
	require.NoError(t, err)

	snap := tab.Snapshot()
	assert.Equal(t, "Nova", snap.Nickname)
	assert.Len(t, snap.History, 1)
	assert.False(t, snap.Loading)
	assert.Equal(t, tab.OnlineCount(), snap.Online)
}

func TestAttachDeliversSnapshotBeforeLaterEvents(t *testing.T) {
	hub := broadcast.NewLocal()
	defer hub.Close()

	var mu sync.Mutex
	var seen []string
	record := func(entry string) {
		mu.Lock()
		seen = append(seen, entry)
		mu.Unlock()
	}
	tab := mountTab(t, hub, tabOptions{listener: func(ev Event) {
		if ev.Kind == EventMessage {
			record("message:" + ev.Message.ID)
		}
	}})

	remote := Message{ID: "msg-remote", User: "Echo", Text: "late arrival", Role: RoleUser}
	payload, err := json.Marshal(remote)
	require.NoError(t, err)

	require.NoError(t, tab.Attach(func(snap Snapshot) {
		// queued while the snapshot is being taken; it must land after it
		tab.receive(payload)
		assert.Equal(t, 0, countID(snap.History, remote.ID))
		record("state")
	}))
	require.Equal(t, 1, countID(tab.History(), remote.ID))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"state", "message:msg-remote"}, seen)
}

func TestNewSessionRequiresDependencies(t *testing.T) {
	_, err := NewSession(SessionConfig{Hub: broadcast.NewLocal()})
	assert.Error(t, err)
	_, err = NewSession(SessionConfig{Store: kv.NewMemory()})
	assert.Error(t, err)

	closed := broadcast.NewLocal()
	require.NoError(t, closed.Close())
	_, err = NewSession(SessionConfig{Store: kv.NewMemory(), Hub: closed})
	assert.ErrorIs(t, err, broadcast.ErrClosed)
}
