// Package stream turns the chunked chat response body into typed speaker
// events.
//
// The body is a sequence of newline-framed SSE records, each data line
// carrying a JSON object {character_id, name, content}. Records that do not
// look like data events are ignored, malformed ones are skipped, and a turn
// end is reported as its own event kind instead of as whitespace content.
package stream

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
)

type Kind int

const (
	// KindFragment carries text to append to the speaker's live message.
	KindFragment Kind = iota
	// KindTurnEnd marks the speaker as done for this turn. It has no text.
	KindTurnEnd
)

func (k Kind) String() string {
	switch k {
	case KindFragment:
		return "fragment"
	case KindTurnEnd:
		return "turn_end"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind        Kind
	SpeakerID   string
	SpeakerName string
	Fragment    string
}

// eventTurnEnd is the SSE event name and JSON type that mark a turn end
// out of band.
const eventTurnEnd = "turn_end"

type record struct {
	CharacterID string  `json:"character_id"`
	Name        string  `json:"name"`
	Content     *string `json:"content"`
	Type        string  `json:"type"`
}

type Option func(*Demuxer)

func WithLogger(log *zap.Logger) Option {
	return func(d *Demuxer) { d.log = log }
}

// Demuxer is fed raw chunks in arrival order and returns the events that
// became complete. It buffers a trailing partial line until the next chunk.
type Demuxer struct {
	pending     []byte
	event       string // SSE event field of the record being assembled
	lastSpeaker string
	lastName    string
	skipped     int
	log         *zap.Logger
}

func NewDemuxer(opts ...Option) *Demuxer {
	d := &Demuxer{log: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Feed appends chunk to the line buffer and parses every complete line.
func (d *Demuxer) Feed(chunk []byte) []Event {
	d.pending = append(d.pending, chunk...)

	var out []Event
	start := 0
	for {
		i := bytes.IndexByte(d.pending[start:], '\n')
		if i < 0 {
			break
		}
		if ev, ok := d.parseLine(d.pending[start : start+i]); ok {
			out = append(out, ev)
		}
		start += i + 1
	}
	d.pending = append(d.pending[:0], d.pending[start:]...)
	return out
}

// Flush parses whatever is left in the buffer as a final line. Call it once
// at end of stream.
func (d *Demuxer) Flush() []Event {
	if len(d.pending) == 0 {
		return nil
	}
	line := d.pending
	d.pending = nil
	if ev, ok := d.parseLine(line); ok {
		return []Event{ev}
	}
	return nil
}

// Skipped reports how many data records were dropped as malformed.
func (d *Demuxer) Skipped() int {
	return d.skipped
}

func (d *Demuxer) parseLine(raw []byte) (Event, bool) {
	line := string(bytes.TrimSuffix(raw, []byte("\r")))

	switch {
	case line == "":
		d.event = ""
		return Event{}, false
	case strings.HasPrefix(line, ":"):
		return Event{}, false
	case strings.HasPrefix(line, "event:"):
		d.event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		return Event{}, false
	case strings.HasPrefix(line, "data:"):
		payload := strings.TrimPrefix(line, "data:")
		payload = strings.TrimPrefix(payload, " ")
		return d.parseData(payload)
	default:
		return Event{}, false
	}
}

func (d *Demuxer) parseData(payload string) (Event, bool) {
	var rec record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		d.skip("invalid json", payload, err)
		return Event{}, false
	}

	content := ""
	if rec.Content != nil {
		content = *rec.Content
	}

	turnEnd := d.event == eventTurnEnd || rec.Type == eventTurnEnd || isTerminator(content)
	if !turnEnd && rec.Content == nil {
		d.skip("missing content", payload, nil)
		return Event{}, false
	}

	if turnEnd {
		speaker, name := rec.CharacterID, rec.Name
		if speaker == "" {
			// the marker belongs to whoever spoke last
			speaker, name = d.lastSpeaker, d.lastName
		}
		if speaker == "" {
			d.skip("turn end without speaker", payload, nil)
			return Event{}, false
		}
		return Event{Kind: KindTurnEnd, SpeakerID: speaker, SpeakerName: name}, true
	}

	if rec.CharacterID == "" {
		d.skip("fragment without speaker", payload, nil)
		return Event{}, false
	}
	if content == "" {
		return Event{}, false
	}

	d.lastSpeaker, d.lastName = rec.CharacterID, rec.Name
	return Event{
		Kind:        KindFragment,
		SpeakerID:   rec.CharacterID,
		SpeakerName: rec.Name,
		Fragment:    content,
	}, true
}

func (d *Demuxer) skip(reason, payload string, err error) {
	d.skipped++
	fields := []zap.Field{zap.String("reason", reason), zap.String("payload", payload)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	d.log.Debug("skipping stream record", fields...)
}

// isTerminator reports whether content is the in-band turn end marker, a
// payload made of exactly one whitespace character.
func isTerminator(content string) bool {
	if utf8.RuneCountInString(content) != 1 {
		return false
	}
	r, _ := utf8.DecodeRuneInString(content)
	return unicode.IsSpace(r)
}
