package mockserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zuo-Peng/guruchat/internal/api"
)

func do(t *testing.T, s *Server, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != "" {
		req.Header.Set(api.HeaderUserID, userID)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestRoutesServedUnderBothPrefixes(t *testing.T) {
	s := New(Seed())
	for _, path := range []string{"/characters", "/characters/", "/api/characters/"} {
		rec := do(t, s, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Body.String(), `"characters"`, path)
	}
}

func TestCreateSessionValidates(t *testing.T) {
	s := New(Seed())

	rec := do(t, s, http.MethodPost, "/sessions/", "", `{"character_ids":["curie"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/sessions/", "", `{"user_id":"u1","character_ids":["nobody"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown character")

	rec = do(t, s, http.MethodPost, "/sessions/", "", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListSessionsNeedsUser(t *testing.T) {
	s := New(Seed())
	rec := do(t, s, http.MethodGet, "/sessions/", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListSessionsOldestFirst(t *testing.T) {
	s := New(Seed())
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.Inject(api.Session{ID: "late", UserID: "u1", Title: "b", CreatedAt: base.Add(time.Hour)})
	s.Inject(api.Session{ID: "early", UserID: "u1", Title: "a", CreatedAt: base})
	s.Inject(api.Session{ID: "other", UserID: "u2", Title: "c", CreatedAt: base})

	rec := do(t, s, http.MethodGet, "/sessions/", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Sessions []api.Session `json:"session_info"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Sessions, 2)
	assert.Equal(t, "early", out.Sessions[0].ID)
	assert.Equal(t, "late", out.Sessions[1].ID)
}

func TestOwnershipEnforced(t *testing.T) {
	s := New(Seed())
	s.Inject(api.Session{ID: "s1", UserID: "u1", Title: "mine"})

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodDelete, "/sessions/s1", "u2", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodPatch, "/sessions/s1/title", "u2", `{"title":"x"}`).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/sessions/s1/messages", "u2", "").Code)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPatch, "/sessions/s1/title", "u1", `{"title":"  "}`).Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodPatch, "/sessions/s1/title", "u1", `{"title":"ok"}`).Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodDelete, "/sessions/s1", "u1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodDelete, "/sessions/s1", "u1", "").Code)
}

func TestChatStreamsRecordsAndMarkers(t *testing.T) {
	s := New(Seed(), WithMarkerSpeakerIDs())
	s.Inject(api.Session{ID: "s1", UserID: "u1", Characters: []api.Character{Seed()[2]}})

	rec := do(t, s, http.MethodPost, "/sessions/s1/chat", "u1", `{"content":"why","style":"spicy"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	var text strings.Builder
	var last map[string]string
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		last = map[string]string{}
		require.NoError(t, json.Unmarshal([]byte(payload), &last))
		if last["content"] != " " {
			text.WriteString(last["content"])
			assert.Equal(t, "curie", last["character_id"])
		}
	}
	assert.Equal(t, `I am Curie. Bold take on "why": ready?`, text.String())
	assert.Equal(t, map[string]string{"content": " ", "character_id": "curie", "name": "Curie"}, last)

	rec = do(t, s, http.MethodGet, "/sessions/s1/messages", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Messages []api.StoredMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Messages, 2)
	assert.Equal(t, "why", out.Messages[0].Content)
	assert.Nil(t, out.Messages[0].Character)
	assert.Equal(t, text.String(), out.Messages[1].Content)
}

func TestChatRejectsEmptyAndPersonaless(t *testing.T) {
	s := New(Seed())
	s.Inject(api.Session{ID: "s1", UserID: "u1"})

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/sessions/s1/chat", "u1", `{"content":"  "}`).Code)
	rec := do(t, s, http.MethodPost, "/sessions/s1/chat", "u1", `{"content":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "No characters")
}
