package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/oasis/internal/ai"
	"github.com/gosuda/oasis/internal/broadcast"
	"github.com/gosuda/oasis/internal/kv"
	"github.com/gosuda/oasis/internal/metrics"
)

var (
	ErrEmptyMessage = errors.New("chat: message is empty")
	ErrNoIdentity   = errors.New("chat: choose a nickname first")
	ErrNotConfirmed = errors.New("chat: reset requires confirmation")
	ErrClosed       = errors.New("chat: session closed")
)

const commandQueueSize = 256

type EventKind string

const (
	EventMessage  EventKind = "message"
	EventLoading  EventKind = "loading"
	EventOnline   EventKind = "online"
	EventIdentity EventKind = "identity"
	EventReset    EventKind = "reset"
)

// Event reports a state change to the view. Only the fields relevant to
// Kind are set.
type Event struct {
	Kind     EventKind
	Message  Message
	Loading  bool
	Online   int
	Nickname string
}

// Snapshot is the full view state of a session.
type Snapshot struct {
	Nickname string    `json:"nickname"`
	History  []Message `json:"history"`
	Online   int       `json:"online"`
	Loading  bool      `json:"loading"`
}

type SessionConfig struct {
	// Store is the profile-scoped persistent store.
	Store kv.Store
	Hub   broadcast.Hub
	// Channel defaults to DefaultChannel.
	Channel   string
	Responder *ai.Responder
	// Trigger defaults to GreetingTrigger(DefaultReplyProbability, nil).
	Trigger Trigger
	// Listener runs on the session loop after every change. It must not
	// call back into the session synchronously.
	Listener func(Event)
	Now      func() time.Time
	Rand     *rand.Rand
	// OnlineJitter drifts the online count periodically; zero disables it.
	OnlineJitter time.Duration
}

// Session is one mounted chat widget (one tab). All state is owned by a
// single loop goroutine; public methods and broadcast deliveries are
// queued onto it.
type Session struct {
	cfg      SessionConfig
	identity *Identity
	history  *History
	endpoint *broadcast.Endpoint

	nickname string
	online   onlineCounter
	pending  int

	commands chan func()
	closing  chan struct{}
	done     chan struct{}
	once     sync.Once

	ctx     context.Context
	cancel  context.CancelFunc
	replies sync.WaitGroup
}

// NewSession mounts a session: it restores identity and history, joins the
// broadcast channel and starts the loop. A stored identity with an empty
// history gets the welcome notice.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Store == nil {
		return nil, errors.New("chat: store required")
	}
	if cfg.Hub == nil {
		return nil, errors.New("chat: broadcast hub required")
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Responder == nil {
		cfg.Responder = ai.NewResponder(nil, 0)
	}
	if cfg.Trigger == nil {
		cfg.Trigger = GreetingTrigger(DefaultReplyProbability, nil)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	endpoint, err := cfg.Hub.Join(cfg.Channel)
	if err != nil {
		return nil, fmt.Errorf("join %s: %w", cfg.Channel, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:      cfg,
		identity: NewIdentity(cfg.Store),
		history:  LoadHistory(cfg.Store),
		endpoint: endpoint,
		online:   newOnlineCounter(cfg.Rand),
		commands: make(chan func(), commandQueueSize),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.nickname, _ = s.identity.Load()
	if s.nickname != "" && s.history.Len() == 0 {
		s.seedWelcome()
	}

	endpoint.OnReceive(s.receive)
	go s.loop()
	if cfg.OnlineJitter > 0 {
		go s.drift(cfg.OnlineJitter)
	}
	metrics.ActiveTabs.Inc()
	log.Debug().Str("channel", endpoint.Name()).Str("endpoint", endpoint.ID()).Msg("[chat] session mounted")
	return s, nil
}

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.commands:
			fn()
		case <-s.closing:
			return
		}
	}
}

// post queues fn without waiting. It is dropped once the session closes.
func (s *Session) post(fn func()) {
	select {
	case s.commands <- fn:
	case <-s.closing:
	}
}

// do runs fn on the loop and waits for it.
func (s *Session) do(fn func()) error {
	ran := make(chan struct{})
	select {
	case s.commands <- func() { fn(); close(ran) }:
	case <-s.closing:
		return ErrClosed
	}
	select {
	case <-ran:
		return nil
	case <-s.done:
		select {
		case <-ran:
			return nil
		default:
			return ErrClosed
		}
	}
}

func (s *Session) drift(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.post(func() {
				s.emit(Event{Kind: EventOnline, Online: s.online.jitter()})
			})
		case <-s.closing:
			return
		}
	}
}

func (s *Session) emit(ev Event) {
	if s.cfg.Listener != nil {
		s.cfg.Listener(ev)
	}
}

// appendLocal records m in history. Persist failures are logged; the tab
// keeps the message in memory.
func (s *Session) appendLocal(m Message, origin string) {
	if err := s.history.Append(m); err != nil {
		log.Warn().Err(err).Str("id", m.ID).Msg("[chat] persist history")
	}
	metrics.MessagesAppended.WithLabelValues(origin).Inc()
	s.emit(Event{Kind: EventMessage, Message: m})
}

func (s *Session) publish(m Message) {
	b, err := json.Marshal(m)
	if err != nil {
		log.Warn().Err(err).Msg("[chat] encode broadcast")
		return
	}
	if err := s.endpoint.Publish(s.ctx, b); err != nil {
		log.Debug().Err(err).Str("id", m.ID).Msg("[chat] publish")
	}
}

func (s *Session) seedWelcome() {
	m := Message{
		ID:        newID("sys"),
		User:      SystemUser,
		Text:      welcomeText(s.nickname),
		Role:      RoleSystem,
		Timestamp: stamp(s.cfg.Now()),
	}
	s.appendLocal(m, "seed")
	s.publish(m)
}

// receive is the broadcast handler; it runs on the endpoint goroutine.
func (s *Session) receive(payload []byte) {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		log.Debug().Err(err).Msg("[chat] drop malformed broadcast")
		return
	}
	s.post(func() { s.merge(m) })
}

// merge appends a message from another tab unless its id is already known.
func (s *Session) merge(m Message) {
	if m.ID == "" || s.history.Contains(m.ID) {
		metrics.DuplicatesDropped.Inc()
		return
	}
	s.appendLocal(m, "remote")
	if isConnectNotice(m) {
		s.emit(Event{Kind: EventOnline, Online: s.online.bump()})
	}
}

// Nickname returns the active nickname, if one is set.
func (s *Session) Nickname() (string, bool) {
	var nick string
	if err := s.do(func() { nick = s.nickname }); err != nil {
		return "", false
	}
	return nick, nick != ""
}

// SetNickname validates and stores candidate as this profile's identity.
// Establishing an identity on an empty history seeds the welcome notice.
func (s *Session) SetNickname(candidate string) (string, error) {
	var nick string
	var err error
	if derr := s.do(func() {
		nick, err = s.identity.Set(candidate)
		if err != nil {
			return
		}
		s.nickname = nick
		s.emit(Event{Kind: EventIdentity, Nickname: nick})
		if s.history.Len() == 0 {
			s.seedWelcome()
		}
	}); derr != nil {
		return "", derr
	}
	return nick, err
}

// Send appends text as the local user's message, publishes it, and may
// solicit a host reply. Sends are accepted while a reply is pending.
func (s *Session) Send(text string) (Message, error) {
	if strings.TrimSpace(text) == "" {
		return Message{}, ErrEmptyMessage
	}
	var m Message
	var err error
	if derr := s.do(func() {
		if s.nickname == "" {
			err = ErrNoIdentity
			return
		}
		m = Message{
			ID:        newID("msg"),
			User:      s.nickname,
			Text:      text,
			Role:      RoleUser,
			Timestamp: stamp(s.cfg.Now()),
		}
		s.appendLocal(m, "local")
		s.publish(m)
		if s.cfg.Trigger(text) {
			s.startReply(text)
		}
	}); derr != nil {
		return Message{}, derr
	}
	return m, err
}

func (s *Session) startReply(text string) {
	s.pending++
	s.emit(Event{Kind: EventLoading, Loading: true})
	prompt := replyPrompt(s.nickname, text)
	s.replies.Add(1)
	go func() {
		defer s.replies.Done()
		reply := s.cfg.Responder.Reply(s.ctx, prompt)
		s.post(func() { s.finishReply(reply) })
	}()
}

func (s *Session) finishReply(text string) {
	s.pending--
	m := Message{
		ID:        newID("ai"),
		User:      HostUser,
		Text:      text,
		Role:      RoleModel,
		Timestamp: stamp(s.cfg.Now()),
		Color:     HostColor,
	}
	s.appendLocal(m, "ai")
	s.publish(m)
	s.emit(Event{Kind: EventLoading, Loading: s.pending > 0})
}

// Reset forgets the nickname and the history of this profile. It is a
// destructive action and only applies when confirmed.
func (s *Session) Reset(confirmed bool) error {
	if !confirmed {
		return ErrNotConfirmed
	}
	var err error
	if derr := s.do(func() {
		err = errors.Join(s.identity.Clear(), s.history.Clear())
		s.nickname = ""
		s.emit(Event{Kind: EventReset})
	}); derr != nil {
		return derr
	}
	return err
}

func (s *Session) History() []Message {
	var msgs []Message
	_ = s.do(func() { msgs = s.history.Messages() })
	return msgs
}

func (s *Session) OnlineCount() int {
	var n int
	_ = s.do(func() { n = s.online.n })
	return n
}

// Loading reports whether any host reply is still pending.
func (s *Session) Loading() bool {
	var loading bool
	_ = s.do(func() { loading = s.pending > 0 })
	return loading
}

func (s *Session) Snapshot() Snapshot {
	var snap Snapshot
	_ = s.Attach(func(cur Snapshot) { snap = cur })
	return snap
}

// Attach hands the current snapshot to fn on the session loop. Events
// emitted after fn returns are guaranteed to postdate the snapshot, so a
// view that renders fn's snapshot first never misses or reorders a change.
func (s *Session) Attach(fn func(Snapshot)) error {
	return s.do(func() {
		fn(Snapshot{
			Nickname: s.nickname,
			History:  s.history.Messages(),
			Online:   s.online.n,
			Loading:  s.pending > 0,
		})
	})
}

// Close unmounts the session: the broadcast handler is deregistered,
// pending replies are abandoned and their results discarded.
func (s *Session) Close() error {
	s.once.Do(func() {
		s.endpoint.OnReceive(nil)
		_ = s.endpoint.Close()
		s.cancel()
		close(s.closing)
		<-s.done
		s.replies.Wait()
		metrics.ActiveTabs.Dec()
	})
	return nil
}
