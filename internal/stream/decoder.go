package stream

import (
	"errors"
	"fmt"
	"io"
)

const readBufferSize = 4 * 1024

// Decoder pulls events out of a response body. It is not safe for
// concurrent use.
type Decoder struct {
	r     io.Reader
	dm    *Demuxer
	buf   []byte
	queue []Event
	err   error
}

func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	return &Decoder{
		r:   r,
		dm:  NewDemuxer(opts...),
		buf: make([]byte, readBufferSize),
	}
}

// Next blocks until the next event is available. It returns io.EOF once the
// body ended cleanly and every buffered event was delivered; any other error
// means the transport failed mid-stream.
func (d *Decoder) Next() (Event, error) {
	for len(d.queue) == 0 {
		if d.err != nil {
			return Event{}, d.err
		}
		n, err := d.r.Read(d.buf)
		if n > 0 {
			d.queue = append(d.queue, d.dm.Feed(d.buf[:n])...)
		}
		switch {
		case errors.Is(err, io.EOF):
			d.queue = append(d.queue, d.dm.Flush()...)
			d.err = io.EOF
		case err != nil:
			d.err = fmt.Errorf("read stream: %w", err)
		}
	}

	ev := d.queue[0]
	d.queue = d.queue[1:]
	return ev, nil
}

// Skipped reports how many malformed records were dropped so far.
func (d *Decoder) Skipped() int {
	return d.dm.Skipped()
}

// Collect drains r and returns every event, stopping at the first transport
// error. The events decoded before the error are returned with it.
func Collect(r io.Reader, opts ...Option) ([]Event, error) {
	dec := NewDecoder(r, opts...)
	var events []Event
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
}
