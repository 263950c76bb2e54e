package stream

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func data(json string) string {
	return "data: " + json + "\n\n"
}

func frag(id, name, text string) Event {
	return Event{Kind: KindFragment, SpeakerID: id, SpeakerName: name, Fragment: text}
}

func end(id, name string) Event {
	return Event{Kind: KindTurnEnd, SpeakerID: id, SpeakerName: name}
}

func TestFeedInterleavedSpeakers(t *testing.T) {
	body := data(`{"character_id":"a","name":"Ada","content":"Hi"}`) +
		data(`{"character_id":"b","name":"Bo","content":"Yo"}`) +
		data(`{"character_id":"a","name":"Ada","content":" there"}`) +
		data(`{"character_id":"a","name":"Ada","content":" "}`) +
		data(`{"character_id":"b","name":"Bo","content":"!"}`) +
		data(`{"character_id":"b","name":"Bo","content":" "}`)

	got := NewDemuxer().Feed([]byte(body))

	assert.Equal(t, []Event{
		frag("a", "Ada", "Hi"),
		frag("b", "Bo", "Yo"),
		frag("a", "Ada", " there"),
		end("a", "Ada"),
		frag("b", "Bo", "!"),
		end("b", "Bo"),
	}, got)
}

func TestFeedSplitAtEveryOffset(t *testing.T) {
	body := data(`{"character_id":"a","name":"Ada","content":"héllo wörld"}`)
	want := NewDemuxer().Feed([]byte(body))
	require.Len(t, want, 1)

	for i := 0; i <= len(body); i++ {
		d := NewDemuxer()
		var got []Event
		got = append(got, d.Feed([]byte(body[:i]))...)
		got = append(got, d.Feed([]byte(body[i:]))...)
		got = append(got, d.Flush()...)
		assert.Equal(t, want, got, "split at %d", i)
	}
}

func TestFeedByteAtATime(t *testing.T) {
	body := data(`{"character_id":"a","name":"Ada","content":"one"}`) +
		data(`{"character_id":"a","name":"Ada","content":"two"}`)

	d := NewDemuxer()
	var got []Event
	for i := 0; i < len(body); i++ {
		got = append(got, d.Feed([]byte{body[i]})...)
	}
	assert.Equal(t, []Event{frag("a", "Ada", "one"), frag("a", "Ada", "two")}, got)
}

func TestFeedSkipsMalformedAndForeignRecords(t *testing.T) {
	body := ": keep-alive\n" +
		"retry: 1000\n" +
		data(`not json`) +
		data(`[DONE]`) +
		data(`{"name":"nobody","content":"orphan"}`) +
		data(`{"character_id":"a","name":"Ada"}`) +
		"id: 7\n" +
		data(`{"character_id":"a","name":"Ada","content":"ok"}`)

	d := NewDemuxer()
	got := d.Feed([]byte(body))

	assert.Equal(t, []Event{frag("a", "Ada", "ok")}, got)
	assert.Equal(t, 4, d.Skipped())
}

func TestFeedCRLFFraming(t *testing.T) {
	body := "data: {\"character_id\":\"a\",\"name\":\"Ada\",\"content\":\"x\"}\r\n\r\n"
	got := NewDemuxer().Feed([]byte(body))
	assert.Equal(t, []Event{frag("a", "Ada", "x")}, got)
}

func TestTurnEndWithoutSpeakerEndsLastSpeaker(t *testing.T) {
	// the backend sends {"content": " "} with no character id
	body := data(`{"character_id":"a","name":"Ada","content":"Hi"}`) +
		data(`{"content":" "}`) +
		data(`{"character_id":"b","name":"Bo","content":"Yo"}`) +
		data(`{"content":" "}`)

	got := NewDemuxer().Feed([]byte(body))

	assert.Equal(t, []Event{
		frag("a", "Ada", "Hi"),
		end("a", "Ada"),
		frag("b", "Bo", "Yo"),
		end("b", "Bo"),
	}, got)
}

func TestTurnEndBeforeAnySpeakerIsSkipped(t *testing.T) {
	d := NewDemuxer()
	assert.Empty(t, d.Feed([]byte(data(`{"content":" "}`))))
	assert.Equal(t, 1, d.Skipped())
}

func TestOutOfBandTurnEnd(t *testing.T) {
	body := data(`{"character_id":"a","name":"Ada","content":"Hi"}`) +
		"event: turn_end\n" + data(`{"character_id":"a","name":"Ada","content":"ignored"}`) +
		data(`{"character_id":"b","name":"Bo","type":"turn_end"}`) +
		data(`{"character_id":"b","name":"Bo","content":"after"}`)

	got := NewDemuxer().Feed([]byte(body))

	assert.Equal(t, []Event{
		frag("a", "Ada", "Hi"),
		end("a", "Ada"),
		end("b", "Bo"),
		frag("b", "Bo", "after"),
	}, got)
}

func TestWhitespaceTerminators(t *testing.T) {
	assert.True(t, isTerminator(" "))
	assert.True(t, isTerminator("\n"))
	assert.True(t, isTerminator("\t"))
	assert.False(t, isTerminator(""))
	assert.False(t, isTerminator("  "))
	assert.False(t, isTerminator(" a"))
}

func TestFlushParsesUnterminatedLine(t *testing.T) {
	d := NewDemuxer()
	assert.Empty(t, d.Feed([]byte(`data: {"character_id":"a","name":"Ada","content":"tail"}`)))
	assert.Equal(t, []Event{frag("a", "Ada", "tail")}, d.Flush())
	assert.Empty(t, d.Flush())
}

func TestDecoderReadsOneByteAtATime(t *testing.T) {
	body := data(`{"character_id":"a","name":"Ada","content":"Hi"}`) +
		data(`{"character_id":"a","name":"Ada","content":" "}`)

	events, err := Collect(iotest.OneByteReader(strings.NewReader(body)))
	require.NoError(t, err)
	assert.Equal(t, []Event{frag("a", "Ada", "Hi"), end("a", "Ada")}, events)
}

func TestDecoderSurfacesTransportError(t *testing.T) {
	body := data(`{"character_id":"a","name":"Ada","content":"partial"}`)
	boom := errors.New("connection reset by peer")
	r := io.MultiReader(strings.NewReader(body), iotest.ErrReader(boom))

	dec := NewDecoder(r)
	ev, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, frag("a", "Ada", "partial"), ev)

	_, err = dec.Next()
	assert.ErrorIs(t, err, boom)
	// the error is sticky
	_, err = dec.Next()
	assert.ErrorIs(t, err, boom)
}

func TestDecoderEOFIsSticky(t *testing.T) {
	dec := NewDecoder(strings.NewReader(""))
	_, err := dec.Next()
	assert.ErrorIs(t, err, io.EOF)
	_, err = dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}
