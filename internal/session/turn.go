package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/Zuo-Peng/guruchat/internal/api"
	"github.com/Zuo-Peng/guruchat/internal/stream"
	"github.com/Zuo-Peng/guruchat/internal/transcript"
)

// Turn is one outbound user message and the stream answering it. It is
// created by Submit; Open and Next may run on another goroutine, everything
// else goes through the Controller.
type Turn struct {
	gen       uint64
	sessionID string
	req       api.ChatRequest
	client    API
	log       *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	body    io.ReadCloser
	dec     *stream.Decoder
	stop    func() bool
	buffers *transcript.Buffers
	stopped bool
}

// Request returns what this turn sends.
func (t *Turn) Request() api.ChatRequest {
	return t.req
}

// Stopped reports whether the turn was ended by Controller.Close rather
// than by the backend or the connection.
func (t *Turn) Stopped() bool {
	return t.stopped
}

// Open issues the chat request. Cancelling the context passed to Submit, or
// replacing the session, aborts the request and any stream read in
// progress.
func (t *Turn) Open() error {
	body, err := t.client.Chat(t.ctx, t.sessionID, t.req)
	if err != nil {
		return err
	}
	t.body = body
	t.dec = stream.NewDecoder(body, stream.WithLogger(t.log))
	t.stop = context.AfterFunc(t.ctx, func() { body.Close() })
	return nil
}

// Next blocks for the next stream event. io.EOF means the reply is
// complete.
func (t *Turn) Next() (stream.Event, error) {
	if t.dec == nil {
		return stream.Event{}, io.EOF
	}
	return t.dec.Next()
}

func (t *Turn) release() {
	if t.stop != nil {
		t.stop()
	}
	if t.body != nil {
		t.body.Close()
	}
	t.cancel()
}

// Submit validates text and appends it to the transcript as a user message.
// The returned turn still has to be opened. Whitespace-only text yields
// ErrEmptyMessage and changes nothing. A session without personas gets a
// system notice instead and ErrNoPersona.
func (c *Controller) Submit(ctx context.Context, text string) (*Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if c.Busy() {
		return nil, ErrBusy
	}
	if len(c.characters) == 0 {
		c.appendLocal(transcript.Message{
			Role:       transcript.RoleSystem,
			AuthorName: SystemAuthor,
			Text:       NoPersonaText,
		})
		return nil, ErrNoPersona
	}
	if c.sessionID == "" {
		return nil, ErrNoSession
	}

	c.appendLocal(transcript.Message{
		Role:       transcript.RoleUser,
		AuthorName: UserAuthor,
		Text:       text,
	})

	tctx, cancel := context.WithCancel(ctx)
	t := &Turn{
		gen:       c.generation,
		sessionID: c.sessionID,
		req:       api.ChatRequest{Content: text, Style: c.style, Model: c.model},
		client:    c.api,
		log:       c.log,
		ctx:       tctx,
		cancel:    cancel,
	}
	c.active = t
	c.status = StateSending
	c.lastErr = nil
	return t, nil
}

// Current reports whether events of t still belong to the active session.
func (c *Controller) Current(t *Turn) bool {
	return t != nil && t == c.active && t.gen == c.generation
}

// Opened records the outcome of t.Open. It returns true when the caller
// should start reading events. A failed request leaves the user message in
// place and adds a system notice.
func (c *Controller) Opened(t *Turn, err error) bool {
	if !c.Current(t) {
		t.release()
		return false
	}
	if err != nil && t.stopped {
		t.release()
		c.active = nil
		c.status = StateIdle
		return false
	}
	if err != nil {
		t.release()
		c.active = nil
		c.status = StateIdle
		c.lastErr = err
		c.log.Warn("chat send failed", zap.String("session_id", t.sessionID), zap.Error(err))
		c.appendLocal(transcript.Message{
			Role:       transcript.RoleSystem,
			AuthorName: SystemAuthor,
			Text:       failureText(err),
		})
		return false
	}
	t.buffers = c.transcript.NewBuffers()
	c.status = StateStreaming
	return true
}

// Apply folds one stream event into the transcript. Events of a turn that
// no longer belongs to the active session are dropped and false returned.
func (c *Controller) Apply(t *Turn, ev stream.Event) bool {
	if !c.Current(t) || t.buffers == nil {
		return false
	}
	switch ev.Kind {
	case stream.KindTurnEnd:
		t.buffers.MarkDone(ev.SpeakerID)
	case stream.KindFragment:
		m, err := c.transcript.AppendFragment(t.buffers, ev.SpeakerID, ev.SpeakerName, ev.Fragment)
		if err != nil {
			c.log.Warn("drop fragment", zap.String("speaker_id", ev.SpeakerID), zap.Error(err))
			return false
		}
		c.notify(m, ev.Fragment)
	}
	return true
}

// Finish ends t after Next returned err. io.EOF, nil or a stop requested
// through Close is a clean end; any other error leaves the partial replies
// as they are and marks the controller errored.
func (c *Controller) Finish(t *Turn, err error) {
	t.release()
	if !c.Current(t) {
		return
	}
	c.active = nil
	if t.stopped {
		c.status = StateIdle
		c.log.Debug("chat stream stopped", zap.String("session_id", t.sessionID))
		return
	}
	if err == nil || errors.Is(err, io.EOF) {
		c.status = StateIdle
		return
	}
	c.status = StateErrored
	c.lastErr = err
	c.log.Warn("chat stream aborted", zap.String("session_id", t.sessionID), zap.Error(err))
}

// Send runs a whole turn on the calling goroutine. Whitespace-only text is
// ignored.
func (c *Controller) Send(ctx context.Context, text string) error {
	t, err := c.Submit(ctx, text)
	if errors.Is(err, ErrEmptyMessage) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := t.Open(); !c.Opened(t, err) {
		return err
	}
	for {
		ev, err := t.Next()
		if err != nil {
			c.Finish(t, err)
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if !c.Apply(t, ev) && !c.Current(t) {
			c.Finish(t, nil)
			return nil
		}
	}
}

func failureText(err error) string {
	var se *api.StatusError
	if errors.As(err, &se) {
		return fmt.Sprintf("Sorry, the message could not be delivered (status %d). Please try again.", se.Code)
	}
	return "Sorry, the message could not be delivered. Please check your connection and try again."
}
