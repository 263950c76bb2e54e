// Package transcript holds the ordered, append-only view of one session's
// messages.
package transcript

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser    Role = "user"
	RolePersona Role = "persona"
	RoleSystem  Role = "system"
)

var (
	ErrUnknownMessage = errors.New("unknown message")
	ErrDuplicateID    = errors.New("duplicate message id")
	ErrStaleBuffers   = errors.New("speaker buffers belong to a replaced transcript")
)

// Message is one rendered entry. Order is assigned by the store on insert
// and never changes.
type Message struct {
	ID         string
	Role       Role
	AuthorName string
	SpeakerID  string
	Text       string
	Order      uint64
}

// Store keeps messages in creation order. Text only ever grows and entries
// are never removed or reordered except by ReplaceAll. It is not safe for
// concurrent use; callers mutate it from a single event loop.
type Store struct {
	msgs  []*Message
	index map[string]int
	next  uint64
	epoch uint64
}

func NewStore() *Store {
	return &Store{index: make(map[string]int)}
}

// Append inserts m at the end, assigning the next order and an id when m
// has none, and returns the stored copy.
func (s *Store) Append(m Message) (Message, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if _, ok := s.index[m.ID]; ok {
		return Message{}, fmt.Errorf("%w: %s", ErrDuplicateID, m.ID)
	}
	s.next++
	m.Order = s.next
	stored := m
	s.index[m.ID] = len(s.msgs)
	s.msgs = append(s.msgs, &stored)
	return stored, nil
}

// AppendText grows the text of message id in place.
func (s *Store) AppendText(id, fragment string) (Message, error) {
	i, ok := s.index[id]
	if !ok {
		return Message{}, fmt.Errorf("%w: %s", ErrUnknownMessage, id)
	}
	s.msgs[i].Text += fragment
	return *s.msgs[i], nil
}

// AppendFragment routes a persona fragment. If b already has a live message
// for speakerID the fragment is concatenated to it; otherwise a new persona
// message is appended and bound to speakerID in b.
func (s *Store) AppendFragment(b *Buffers, speakerID, speakerName, fragment string) (Message, error) {
	if b.epoch != s.epoch {
		return Message{}, ErrStaleBuffers
	}
	if id, ok := b.live[speakerID]; ok {
		return s.AppendText(id, fragment)
	}
	m, err := s.Append(Message{
		Role:       RolePersona,
		AuthorName: speakerName,
		SpeakerID:  speakerID,
		Text:       fragment,
	})
	if err != nil {
		return Message{}, err
	}
	b.live[speakerID] = m.ID
	return m, nil
}

// ReplaceAll swaps the whole sequence for msgs, renumbering them from one.
// Buffers opened before the call are invalidated. On error the store is
// left untouched.
func (s *Store) ReplaceAll(msgs []Message) error {
	index := make(map[string]int, len(msgs))
	next := make([]*Message, 0, len(msgs))
	for i, m := range msgs {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if _, ok := index[m.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateID, m.ID)
		}
		m.Order = uint64(i + 1)
		stored := m
		index[m.ID] = i
		next = append(next, &stored)
	}
	s.msgs = next
	s.index = index
	s.next = uint64(len(next))
	s.epoch++
	return nil
}

// Messages returns a snapshot in render order.
func (s *Store) Messages() []Message {
	out := make([]Message, len(s.msgs))
	for i, m := range s.msgs {
		out[i] = *m
	}
	return out
}

func (s *Store) Get(id string) (Message, bool) {
	i, ok := s.index[id]
	if !ok {
		return Message{}, false
	}
	return *s.msgs[i], true
}

func (s *Store) Len() int {
	return len(s.msgs)
}

// Buffers maps each speaker of one turn to the message its fragments grow.
// A Buffers value is owned by whoever runs the turn and is discarded when
// the turn ends. A speaker keeps a single message for the whole turn, even
// across its turn end marker.
type Buffers struct {
	live  map[string]string
	done  map[string]bool
	epoch uint64
}

// NewBuffers opens empty speaker buffers bound to the store's current
// contents.
func (s *Store) NewBuffers() *Buffers {
	return &Buffers{
		live:  make(map[string]string),
		done:  make(map[string]bool),
		epoch: s.epoch,
	}
}

// MarkDone records that speakerID finished its part of the turn.
func (b *Buffers) MarkDone(speakerID string) {
	b.done[speakerID] = true
}

// Done reports whether speakerID has sent its turn end marker.
func (b *Buffers) Done(speakerID string) bool {
	return b.done[speakerID]
}

// MessageID returns the live message bound to speakerID.
func (b *Buffers) MessageID(speakerID string) (string, bool) {
	id, ok := b.live[speakerID]
	return id, ok
}

// Typing returns the message ids of speakers that have started but not
// finished.
func (b *Buffers) Typing() []string {
	var ids []string
	for speaker, id := range b.live {
		if !b.done[speaker] {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}
