package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zuo-Peng/guruchat/internal/api"
)

type fakeAPI struct {
	sessions  []api.Session
	listErr   error
	renameErr error
	deleteErr error
	deleted   []string
	renamed   map[string]string
}

func (f *fakeAPI) ListSessions(context.Context, string) ([]api.Session, error) {
	return f.sessions, f.listErr
}

func (f *fakeAPI) RenameSession(_ context.Context, id, title string) (api.Session, error) {
	if f.renameErr != nil {
		return api.Session{}, f.renameErr
	}
	if f.renamed == nil {
		f.renamed = map[string]string{}
	}
	f.renamed[id] = title
	return api.Session{ID: id, Title: title}, nil
}

func (f *fakeAPI) DeleteSession(_ context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeLoader struct {
	err    error
	loaded []string
}

func (l *fakeLoader) Load(_ context.Context, id string, _ []api.Character) error {
	if l.err != nil {
		return l.err
	}
	l.loaded = append(l.loaded, id)
	return nil
}

var seoul = time.FixedZone("KST", 9*60*60)

// now is 2024-05-10 14:30 in Seoul, which is still 2024-05-10 05:30 UTC.
var now = time.Date(2024, 5, 10, 14, 30, 0, 0, seoul)

func newCatalog(f *fakeAPI) *Catalog {
	return New(f, WithClock(func() time.Time { return now }, seoul))
}

func ids(b Bucket) []string {
	var out []string
	for _, e := range b.Entries {
		out = append(out, e.ID)
	}
	return out
}

func TestBucketsByLocalDay(t *testing.T) {
	f := &fakeAPI{sessions: []api.Session{
		{ID: "midnight-today", CreatedAt: time.Date(2024, 5, 10, 0, 0, 0, 0, seoul)},
		{ID: "late-yesterday", CreatedAt: time.Date(2024, 5, 9, 23, 59, 0, 0, seoul)},
		{ID: "two-days", CreatedAt: time.Date(2024, 5, 8, 12, 0, 0, 0, seoul)},
		// 2024-05-09 16:00 UTC is already the 10th in Seoul
		{ID: "utc-yesterday", CreatedAt: time.Date(2024, 5, 9, 16, 0, 0, 0, time.UTC)},
		{ID: "early-yesterday", CreatedAt: time.Date(2024, 5, 9, 0, 0, 0, 0, seoul)},
	}}
	c := newCatalog(f)
	require.NoError(t, c.Refresh(context.Background(), "u1"))

	buckets := c.Buckets()
	require.Len(t, buckets, 2)
	assert.Equal(t, LabelToday, buckets[0].Label)
	assert.Equal(t, []string{"utc-yesterday", "midnight-today"}, ids(buckets[0]))
	assert.Equal(t, LabelYesterday, buckets[1].Label)
	assert.Equal(t, []string{"late-yesterday", "early-yesterday"}, ids(buckets[1]))
	assert.Equal(t, 4, c.Len())

	_, ok := c.Find("two-days")
	assert.True(t, ok, "old sessions stay findable")
}

func TestElapsedTimeIsNotDays(t *testing.T) {
	// 15 hours ago but on the previous calendar day
	f := &fakeAPI{sessions: []api.Session{{ID: "s", CreatedAt: now.Add(-15 * time.Hour)}}}
	c := newCatalog(f)
	require.NoError(t, c.Refresh(context.Background(), "u1"))
	assert.Empty(t, c.Buckets()[0].Entries)
	assert.Equal(t, []string{"s"}, ids(c.Buckets()[1]))
}

func TestRefreshFailureKeepsBuckets(t *testing.T) {
	f := &fakeAPI{sessions: []api.Session{{ID: "s1", CreatedAt: now}}}
	c := newCatalog(f)
	require.NoError(t, c.Refresh(context.Background(), "u1"))

	f.listErr = errors.New("offline")
	require.Error(t, c.Refresh(context.Background(), "u1"))
	assert.Equal(t, []string{"s1"}, ids(c.Buckets()[0]))
}

func TestDefaultTitle(t *testing.T) {
	c := newCatalog(&fakeAPI{})
	c.Reconcile([]api.Session{{ID: "s1", Title: " ", CreatedAt: now}})
	assert.Equal(t, api.DefaultTitle, c.Buckets()[0].Entries[0].Title)
}

func TestDeleteOnlyAfterConfirmation(t *testing.T) {
	f := &fakeAPI{sessions: []api.Session{{ID: "s1", CreatedAt: now}, {ID: "s2", CreatedAt: now.Add(-time.Minute)}}}
	c := newCatalog(f)
	require.NoError(t, c.Refresh(context.Background(), "u1"))

	f.deleteErr = errors.New("500")
	require.Error(t, c.Delete(context.Background(), "s1"))
	assert.Equal(t, []string{"s1", "s2"}, ids(c.Buckets()[0]))

	f.deleteErr = nil
	require.NoError(t, c.Delete(context.Background(), "s1"))
	assert.Equal(t, []string{"s2"}, ids(c.Buckets()[0]))
	assert.Equal(t, []string{"s1"}, f.deleted)

	assert.ErrorIs(t, c.Delete(context.Background(), "s1"), ErrNotFound)
}

func TestRenameCommitsOnSuccess(t *testing.T) {
	f := &fakeAPI{sessions: []api.Session{{ID: "s1", Title: "Old", CreatedAt: now}}}
	c := newCatalog(f)
	require.NoError(t, c.Refresh(context.Background(), "u1"))

	require.NoError(t, c.Rename(context.Background(), "s1", "  New  "))
	assert.Equal(t, "New", c.Buckets()[0].Entries[0].Title)
	assert.Equal(t, map[string]string{"s1": "New"}, f.renamed)
}

func TestRenameRevertsOnFailure(t *testing.T) {
	f := &fakeAPI{
		sessions:  []api.Session{{ID: "s1", Title: "Old", CreatedAt: now}},
		renameErr: errors.New("502"),
	}
	c := newCatalog(f)
	require.NoError(t, c.Refresh(context.Background(), "u1"))

	title, err := c.MarkPending("s1", "New")
	require.NoError(t, err)
	assert.Equal(t, "New", c.Buckets()[0].Entries[0].Title, "pending title is shown")

	err = c.ResolveRename("s1", title, f.renameErr)
	require.Error(t, err)
	assert.Equal(t, "Old", c.Buckets()[0].Entries[0].Title)

	require.Error(t, c.Rename(context.Background(), "s1", "Again"))
	e, ok := c.Find("s1")
	require.True(t, ok)
	assert.Equal(t, "Old", e.Title)
}

func TestRenameValidates(t *testing.T) {
	f := &fakeAPI{sessions: []api.Session{{ID: "s1", Title: "Old", CreatedAt: now}}}
	c := newCatalog(f)
	require.NoError(t, c.Refresh(context.Background(), "u1"))

	assert.ErrorIs(t, c.Rename(context.Background(), "s1", "   "), ErrEmptyTitle)
	assert.ErrorIs(t, c.Rename(context.Background(), "nope", "x"), ErrNotFound)
	assert.Nil(t, f.renamed)
}

func TestSelectClosesOnlyOnSuccess(t *testing.T) {
	c := newCatalog(&fakeAPI{})
	c.Reconcile([]api.Session{{ID: "s1", CreatedAt: now}})
	entry := c.Buckets()[0].Entries[0]

	c.Show()
	failing := &fakeLoader{err: errors.New("404")}
	require.Error(t, c.Select(context.Background(), failing, entry))
	assert.True(t, c.Visible())

	ok := &fakeLoader{}
	require.NoError(t, c.Select(context.Background(), ok, entry))
	assert.False(t, c.Visible())
	assert.Equal(t, []string{"s1"}, ok.loaded)
}

func TestFilter(t *testing.T) {
	c := newCatalog(&fakeAPI{})
	c.Reconcile([]api.Session{
		{ID: "a", Title: "Bitcoin whitepaper", CreatedAt: now},
		{ID: "b", Title: "Sword drills", CreatedAt: now.Add(-time.Minute)},
		{ID: "c", Title: "bitter coffee", CreatedAt: now.AddDate(0, 0, -1)},
	})

	got := c.Filter("BIT")
	assert.Equal(t, []string{"a"}, ids(got[0]))
	assert.Equal(t, []string{"c"}, ids(got[1]))

	got = c.Filter("sword")
	assert.Equal(t, []string{"b"}, ids(got[0]))
	assert.Empty(t, got[1].Entries)

	assert.Equal(t, c.Buckets(), c.Filter("  "))
}
