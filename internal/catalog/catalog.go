// Package catalog keeps the history view: the user's sessions grouped by
// local calendar day, with delete, rename and select.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Zuo-Peng/guruchat/internal/api"
)

const (
	LabelToday     = "Today"
	LabelYesterday = "Yesterday"
)

var (
	ErrNotFound   = errors.New("history entry not found")
	ErrEmptyTitle = errors.New("title is empty")
)

// Entry is the catalog's view of one persisted session.
type Entry struct {
	ID         string
	Title      string
	CreatedAt  time.Time
	Characters []api.Character
}

type Bucket struct {
	Label   string
	Entries []Entry
}

// API is the part of the backend client the catalog calls.
type API interface {
	ListSessions(ctx context.Context, userID string) ([]api.Session, error)
	RenameSession(ctx context.Context, id, title string) (api.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// Loader makes a session the active one.
type Loader interface {
	Load(ctx context.Context, sessionID string, characters []api.Character) error
}

type Option func(*Catalog)

// WithClock sets the source of "now" and the zone days are counted in.
func WithClock(now func() time.Time, loc *time.Location) Option {
	return func(c *Catalog) {
		c.now = now
		c.loc = loc
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Catalog) { c.log = log }
}

// Catalog is not safe for concurrent use. Like the session controller it
// is mutated from the UI event loop; the network halves of each operation
// (Fetch, the API calls) may run elsewhere.
type Catalog struct {
	api API
	now func() time.Time
	loc *time.Location
	log *zap.Logger

	all     []Entry
	buckets []Bucket
	pending map[string]string
	visible bool
}

func New(client API, opts ...Option) *Catalog {
	c := &Catalog{
		api:     client,
		now:     time.Now,
		loc:     time.Local,
		log:     zap.NewNop(),
		pending: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch lists the sessions of userID without touching the catalog.
func (c *Catalog) Fetch(ctx context.Context, userID string) ([]api.Session, error) {
	sessions, err := c.api.ListSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// Refresh fetches the sessions of userID and rebuilds the buckets. On error
// the previous buckets stay.
func (c *Catalog) Refresh(ctx context.Context, userID string) error {
	sessions, err := c.Fetch(ctx, userID)
	if err != nil {
		return err
	}
	c.Reconcile(sessions)
	return nil
}

// Reconcile replaces the catalog contents with sessions, newest first, and
// regroups them by day. Sessions older than yesterday are kept for Find but
// shown in no bucket.
func (c *Catalog) Reconcile(sessions []api.Session) {
	entries := make([]Entry, 0, len(sessions))
	for _, s := range sessions {
		title := s.Title
		if strings.TrimSpace(title) == "" {
			title = api.DefaultTitle
		}
		entries = append(entries, Entry{
			ID:         s.ID,
			Title:      title,
			CreatedAt:  s.CreatedAt,
			Characters: s.Characters,
		})
	}
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	c.all = entries
	c.pending = make(map[string]string)
	c.rebucket()
}

func (c *Catalog) rebucket() {
	now := c.now().In(c.loc)
	today := dayOf(now)
	yesterday := today.AddDate(0, 0, -1)

	var todays, yesterdays []Entry
	for _, e := range c.all {
		day := dayOf(e.CreatedAt.In(c.loc))
		switch {
		case day.Equal(today):
			todays = append(todays, e)
		case day.Equal(yesterday):
			yesterdays = append(yesterdays, e)
		}
	}
	c.buckets = []Bucket{
		{Label: LabelToday, Entries: todays},
		{Label: LabelYesterday, Entries: yesterdays},
	}
}

// dayOf truncates t to midnight in its own location.
func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Buckets returns today's and yesterday's entries with any pending rename
// shown in place of the stored title.
func (c *Catalog) Buckets() []Bucket {
	out := make([]Bucket, len(c.buckets))
	for i, b := range c.buckets {
		entries := make([]Entry, len(b.Entries))
		for j, e := range b.Entries {
			e.Title = c.DisplayTitle(e)
			entries[j] = e
		}
		out[i] = Bucket{Label: b.Label, Entries: entries}
	}
	return out
}

// Filter returns the buckets narrowed to entries whose displayed title
// contains query, ignoring case. Buckets left empty are kept.
func (c *Catalog) Filter(query string) []Bucket {
	buckets := c.Buckets()
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return buckets
	}
	for i, b := range buckets {
		var kept []Entry
		for _, e := range b.Entries {
			if strings.Contains(strings.ToLower(e.Title), query) {
				kept = append(kept, e)
			}
		}
		buckets[i].Entries = kept
	}
	return buckets
}

// Find looks up an entry by id, including those too old for any bucket.
func (c *Catalog) Find(id string) (Entry, bool) {
	for _, e := range c.all {
		if e.ID == id {
			e.Title = c.DisplayTitle(e)
			return e, true
		}
	}
	return Entry{}, false
}

// Len counts the entries shown in buckets.
func (c *Catalog) Len() int {
	n := 0
	for _, b := range c.buckets {
		n += len(b.Entries)
	}
	return n
}

func (c *Catalog) DisplayTitle(e Entry) string {
	if t, ok := c.pending[e.ID]; ok {
		return t
	}
	return e.Title
}

func (c *Catalog) index(id string) int {
	return slices.IndexFunc(c.all, func(e Entry) bool { return e.ID == id })
}

// Delete removes session id on the backend and, only once that succeeded,
// from the catalog.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	if c.index(id) < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := c.api.DeleteSession(ctx, id); err != nil {
		c.log.Warn("delete session failed", zap.String("session_id", id), zap.Error(err))
		return fmt.Errorf("delete session: %w", err)
	}
	c.Remove(id)
	return nil
}

// Remove drops id from the catalog without calling the backend.
func (c *Catalog) Remove(id string) {
	i := c.index(id)
	if i < 0 {
		return
	}
	c.all = slices.Delete(c.all, i, i+1)
	delete(c.pending, id)
	c.rebucket()
}

// Rename retitles session id. The new title is shown while the call is in
// flight; on success it is committed, on failure the old title comes back.
func (c *Catalog) Rename(ctx context.Context, id, title string) error {
	title, err := c.MarkPending(id, title)
	if err != nil {
		return err
	}
	_, err = c.api.RenameSession(ctx, id, title)
	return c.ResolveRename(id, title, err)
}

// MarkPending validates title and shows it for id until ResolveRename.
func (c *Catalog) MarkPending(id, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", ErrEmptyTitle
	}
	if c.index(id) < 0 {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	c.pending[id] = title
	return title, nil
}

// ResolveRename settles a rename started with MarkPending. err is the
// outcome of the backend call and is returned wrapped.
func (c *Catalog) ResolveRename(id, title string, err error) error {
	delete(c.pending, id)
	if err != nil {
		c.log.Warn("rename session failed", zap.String("session_id", id), zap.Error(err))
		return fmt.Errorf("rename session: %w", err)
	}
	i := c.index(id)
	if i < 0 {
		return nil
	}
	c.all[i].Title = title
	c.rebucket()
	return nil
}

// Select loads entry through l and hides the catalog once the load
// succeeded. On failure the catalog stays open.
func (c *Catalog) Select(ctx context.Context, l Loader, entry Entry) error {
	if err := l.Load(ctx, entry.ID, entry.Characters); err != nil {
		return err
	}
	c.Hide()
	return nil
}

func (c *Catalog) Show()         { c.visible = true }
func (c *Catalog) Hide()         { c.visible = false }
func (c *Catalog) Visible() bool { return c.visible }
