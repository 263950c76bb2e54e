// Package session drives one chat session: creating it, sending user
// messages, folding the streamed persona replies into the transcript and
// swapping in a persisted session on load.
//
// All Controller methods must be called from a single goroutine (the UI
// event loop). The only work allowed elsewhere is Turn.Open, Turn.Next and
// FetchHistory, which touch the network but never the transcript.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/Zuo-Peng/guruchat/internal/api"
	"github.com/Zuo-Peng/guruchat/internal/store"
	"github.com/Zuo-Peng/guruchat/internal/transcript"
)

const (
	NoPersonaText = "Please select a Guru to start chatting."
	UserAuthor    = "You"
	SystemAuthor  = "System"

	defaultMaxPersonas = 3
)

var (
	ErrEmptyMessage    = errors.New("message is empty")
	ErrNoPersona       = errors.New("no persona selected")
	ErrTooManyPersonas = errors.New("too many personas selected")
	ErrBusy            = errors.New("a reply is still streaming")
	ErrNoSession       = errors.New("no active session")
)

type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	// StateErrored follows a stream that broke mid-turn. It accepts a new
	// send like StateIdle.
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// API is the part of the backend client the controller calls.
type API interface {
	CreateSession(ctx context.Context, userID string, characterIDs []string) (api.Session, error)
	Messages(ctx context.Context, sessionID string) ([]api.StoredMessage, error)
	Chat(ctx context.Context, sessionID string, req api.ChatRequest) (io.ReadCloser, error)
}

// StateStore persists the session to resume.
type StateStore interface {
	Set(key, value string) error
}

// Observer is told about every transcript change. appended is the text added
// by this change; for a new message it is the whole text.
type Observer func(m transcript.Message, appended string)

type Option func(*Controller)

func WithLogger(log *zap.Logger) Option {
	return func(c *Controller) { c.log = log }
}

func WithStyle(style string) Option {
	return func(c *Controller) { c.style = style }
}

func WithModel(model string) Option {
	return func(c *Controller) { c.model = model }
}

func WithMaxPersonas(n int) Option {
	return func(c *Controller) { c.maxPersonas = n }
}

func WithStateStore(s StateStore) Option {
	return func(c *Controller) { c.state = s }
}

func WithObserver(fn Observer) Option {
	return func(c *Controller) { c.observer = fn }
}

// Controller owns the transcript of the active session.
type Controller struct {
	api    API
	userID string

	transcript *transcript.Store
	sessionID  string
	characters []api.Character

	style       string
	model       string
	maxPersonas int

	status     State
	lastErr    error
	generation uint64
	active     *Turn

	state    StateStore
	observer Observer
	log      *zap.Logger
}

func New(client API, userID string, opts ...Option) *Controller {
	c := &Controller{
		api:         client,
		userID:      userID,
		transcript:  transcript.NewStore(),
		style:       "normal",
		model:       "default",
		maxPersonas: defaultMaxPersonas,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) State() State                   { return c.status }
func (c *Controller) SessionID() string              { return c.sessionID }
func (c *Controller) UserID() string                 { return c.userID }
func (c *Controller) Style() string                  { return c.style }
func (c *Controller) LastError() error               { return c.lastErr }
func (c *Controller) Messages() []transcript.Message { return c.transcript.Messages() }

func (c *Controller) Characters() []api.Character {
	return append([]api.Character(nil), c.characters...)
}

// Busy reports whether a send is in flight.
func (c *Controller) Busy() bool {
	return c.status == StateSending || c.status == StateStreaming
}

// Typing returns the ids of persona messages still being streamed.
func (c *Controller) Typing() []string {
	if c.active == nil || c.active.buffers == nil {
		return nil
	}
	return c.active.buffers.Typing()
}

// ToggleStyle flips between normal and spicy and returns the new style.
func (c *Controller) ToggleStyle() string {
	if c.style == "spicy" {
		c.style = "normal"
	} else {
		c.style = "spicy"
	}
	return c.style
}

// CheckPersonas validates a persona selection for a new session.
func (c *Controller) CheckPersonas(characters []api.Character) error {
	if len(characters) == 0 {
		return ErrNoPersona
	}
	if len(characters) > c.maxPersonas {
		return fmt.Errorf("%w: %d selected, at most %d", ErrTooManyPersonas, len(characters), c.maxPersonas)
	}
	return nil
}

// CreateSession validates the selection and creates the session on the
// backend. It does not touch the transcript; pass the result to Begin.
func (c *Controller) CreateSession(ctx context.Context, characters []api.Character) (api.Session, error) {
	if err := c.CheckPersonas(characters); err != nil {
		return api.Session{}, err
	}
	ids := make([]string, len(characters))
	for i, ch := range characters {
		ids[i] = ch.ID
	}
	sess, err := c.api.CreateSession(ctx, c.userID, ids)
	if err != nil {
		return api.Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// Begin makes sess the active session and seeds the transcript with one
// introduction per persona.
func (c *Controller) Begin(sess api.Session, characters []api.Character) error {
	if len(sess.Characters) > 0 {
		characters = sess.Characters
	}
	intros := make([]transcript.Message, 0, len(characters))
	for i, ch := range characters {
		text := ch.Description
		if strings.TrimSpace(text) == "" {
			text = fmt.Sprintf("Hello, I'm %s. Ask me anything!", ch.Name)
		}
		id := ch.ID
		if id == "" {
			id = fmt.Sprint(i)
		}
		intros = append(intros, transcript.Message{
			ID:         "intro-" + id,
			Role:       transcript.RolePersona,
			AuthorName: ch.Name,
			SpeakerID:  ch.ID,
			Text:       text,
		})
	}
	if err := c.transcript.ReplaceAll(intros); err != nil {
		return err
	}
	c.switchTo(sess.ID, characters)
	return nil
}

// Start creates a session for characters and makes it active.
func (c *Controller) Start(ctx context.Context, characters []api.Character) error {
	sess, err := c.CreateSession(ctx, characters)
	if err != nil {
		return err
	}
	return c.Begin(sess, characters)
}

// FetchHistory reads the stored transcript of sessionID. It is safe to call
// off the event loop.
func (c *Controller) FetchHistory(ctx context.Context, sessionID string) ([]api.StoredMessage, error) {
	msgs, err := c.api.Messages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	return msgs, nil
}

// ApplyHistory replaces the transcript with stored and makes sessionID the
// active session. Any turn still running against the previous session is
// cancelled and its remaining events are discarded. On error nothing
// changes.
func (c *Controller) ApplyHistory(sessionID string, characters []api.Character, stored []api.StoredMessage) error {
	msgs := make([]transcript.Message, 0, len(stored))
	for _, m := range stored {
		msgs = append(msgs, fromStored(m))
	}
	if err := c.transcript.ReplaceAll(msgs); err != nil {
		return fmt.Errorf("load session %s: %w", sessionID, err)
	}
	c.switchTo(sessionID, characters)
	c.log.Info("session loaded", zap.String("session_id", sessionID), zap.Int("messages", len(msgs)))
	return nil
}

// Load fetches and applies the stored transcript of sessionID.
func (c *Controller) Load(ctx context.Context, sessionID string, characters []api.Character) error {
	stored, err := c.FetchHistory(ctx, sessionID)
	if err != nil {
		return err
	}
	return c.ApplyHistory(sessionID, characters, stored)
}

// Close stops the running turn, if any. Partial replies stay in the
// transcript and the controller goes back to idle without an error once the
// turn is finished. The controller stays usable.
func (c *Controller) Close() {
	if c.active != nil {
		c.active.stopped = true
		c.active.cancel()
	}
}

func (c *Controller) switchTo(sessionID string, characters []api.Character) {
	c.generation++
	if c.active != nil {
		c.active.cancel()
		c.active = nil
	}
	c.status = StateIdle
	c.lastErr = nil
	c.sessionID = sessionID
	c.characters = append([]api.Character(nil), characters...)

	if c.state != nil {
		if err := c.state.Set(store.KeyLastSessionID, sessionID); err != nil {
			c.log.Warn("persist last session", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
}

func fromStored(m api.StoredMessage) transcript.Message {
	out := transcript.Message{Text: m.Content}
	if m.ID != "" {
		out.ID = "stored-" + m.ID
	}
	switch m.Role {
	case api.RoleUser:
		out.Role = transcript.RoleUser
		out.AuthorName = UserAuthor
	case api.RoleSystem:
		out.Role = transcript.RoleSystem
		out.AuthorName = SystemAuthor
	default:
		out.Role = transcript.RolePersona
		out.AuthorName = "Guru"
		if m.Character != nil {
			out.SpeakerID = m.Character.ID
			if m.Character.Name != "" {
				out.AuthorName = m.Character.Name
			}
		}
	}
	return out
}

func (c *Controller) appendLocal(m transcript.Message) {
	stored, err := c.transcript.Append(m)
	if err != nil {
		c.log.Error("append message", zap.Error(err))
		return
	}
	c.notify(stored, stored.Text)
}

func (c *Controller) notify(m transcript.Message, appended string) {
	if c.observer != nil {
		c.observer(m, appended)
	}
}
