// Package mockserver is an in-memory stand-in for the GuruChat backend. It
// serves the same routes as the real service and streams canned persona
// replies, so the client can be developed and tested offline.
package mockserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Zuo-Peng/guruchat/internal/api"
)

// Seed returns the default personas.
func Seed() []api.Character {
	return []api.Character{
		{ID: "nakamoto", Name: "Nakamoto", Description: "Trust no one. Verify the code."},
		{ID: "socrates", Name: "Socrates", Description: "Let us examine the question together."},
		{ID: "curie", Name: "Curie", Description: "Nothing in life is to be feared, only understood."},
		{ID: "musashi", Name: "Musashi", Description: ""},
	}
}

type storedMessage struct {
	id        int
	role      string
	content   string
	createdAt time.Time
	character *api.Character
}

type session struct {
	api.Session
	messages []storedMessage
}

// Server holds all state behind a mutex; handlers may run concurrently.
type Server struct {
	mu         sync.Mutex
	characters []api.Character
	sessions   map[string]*session
	nextMsgID  int

	delay            time.Duration
	markerSpeakerIDs bool
	now              func() time.Time
	log              *zap.Logger

	router chi.Router
}

type Option func(*Server)

// WithTokenDelay sleeps between streamed tokens.
func WithTokenDelay(d time.Duration) Option {
	return func(s *Server) { s.delay = d }
}

// WithMarkerSpeakerIDs includes character_id on turn end markers. The
// production backend omits it.
func WithMarkerSpeakerIDs() Option {
	return func(s *Server) { s.markerSpeakerIDs = true }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Server) { s.log = log }
}

// New returns a ready http.Handler serving characters.
func New(characters []api.Character, opts ...Option) *Server {
	s := &Server{
		characters: append([]api.Character(nil), characters...),
		sessions:   make(map[string]*session),
		now:        time.Now,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(s.logRequests)

	mount := func(r chi.Router) {
		r.Get("/characters", s.handleCharacters)
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Get("/", s.handleListSessions)
			r.Delete("/{sessionID}", s.handleDeleteSession)
			r.Patch("/{sessionID}/title", s.handleRename)
			r.Get("/{sessionID}/messages", s.handleMessages)
			r.Post("/{sessionID}/chat", s.handleChat)
		})
	}
	mount(r)
	r.Route("/api", mount)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// Inject adds a session directly, for tests that need a specific creation
// time.
func (s *Server) Inject(sess api.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = &session{Session: sess}
}

func (s *Server) handleCharacters(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	chars := append([]api.Character(nil), s.characters...)
	s.mu.Unlock()
	respondJSON(w, http.StatusOK, map[string]any{"characters": chars})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID       string   `json:"user_id"`
		CharacterIDs []string `json:"character_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.UserID == "" {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	chars := make([]api.Character, 0, len(req.CharacterIDs))
	for _, id := range req.CharacterIDs {
		c, ok := s.findCharacter(id)
		if !ok {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown character %q", id))
			return
		}
		chars = append(chars, c)
	}

	sess := &session{Session: api.Session{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		Title:      api.DefaultTitle,
		CreatedAt:  s.now().UTC(),
		Characters: chars,
	}}
	s.sessions[sess.ID] = sess
	respondJSON(w, http.StatusOK, sess.Session)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(api.HeaderUserID)
	if userID == "" {
		respondError(w, http.StatusBadRequest, "missing "+api.HeaderUserID)
		return
	}

	s.mu.Lock()
	var out []api.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			out = append(out, sess.Session)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if out == nil {
		out = []api.Session{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"session_info": out})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.owned(r, id); !ok {
		respondError(w, http.StatusNotFound, "Session not found or not authorized to delete")
		return
	}
	delete(s.sessions, id)
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted", "session_id": id})
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Title) == "" {
		respondError(w, http.StatusBadRequest, "title is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.owned(r, id)
	if !ok {
		respondError(w, http.StatusNotFound, "Session not found")
		return
	}
	sess.Title = req.Title
	respondJSON(w, http.StatusOK, sess.Session)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	s.mu.Lock()
	sess, ok := s.owned(r, id)
	if !ok {
		s.mu.Unlock()
		respondError(w, http.StatusNotFound, "Session not found")
		return
	}
	out := make([]map[string]any, 0, len(sess.messages))
	for _, m := range sess.messages {
		item := map[string]any{
			"message_id": m.id,
			"role":       m.role,
			"content":    m.content,
			"created_at": m.createdAt.Format(time.RFC3339Nano),
		}
		if m.character != nil {
			item["character"] = map[string]string{
				"character_id": m.character.ID,
				"name":         m.character.Name,
				"description":  m.character.Description,
			}
		}
		out = append(out, item)
	}
	s.mu.Unlock()

	respondJSON(w, http.StatusOK, map[string]any{"messages": out})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	var req api.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		respondError(w, http.StatusBadRequest, "content is required")
		return
	}

	s.mu.Lock()
	sess, ok := s.owned(r, id)
	if !ok {
		s.mu.Unlock()
		respondError(w, http.StatusNotFound, "Session not found")
		return
	}
	if len(sess.Characters) == 0 {
		s.mu.Unlock()
		respondError(w, http.StatusBadRequest, "No characters in session")
		return
	}
	s.appendMessage(sess, api.RoleUser, req.Content, nil)
	chars := append([]api.Character(nil), sess.Characters...)
	s.mu.Unlock()

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	setupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	for _, c := range chars {
		reply := mockReply(c, req)
		// words keep their trailing space so no token is a lone space
		for _, token := range strings.SplitAfter(reply, " ") {
			if s.delay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(s.delay):
				}
			}
			sendSSEChunk(w, flusher, map[string]string{
				"character_id": c.ID,
				"name":         c.Name,
				"content":      token,
			})
		}

		marker := map[string]string{"content": " "}
		if s.markerSpeakerIDs {
			marker["character_id"] = c.ID
			marker["name"] = c.Name
		}
		sendSSEChunk(w, flusher, marker)

		s.mu.Lock()
		if live, ok := s.sessions[id]; ok {
			char := c
			s.appendMessage(live, api.RoleAssistant, reply, &char)
		}
		s.mu.Unlock()
	}
}

func mockReply(c api.Character, req api.ChatRequest) string {
	if req.Style == "spicy" {
		return fmt.Sprintf("I am %s. Bold take on %q: ready?", c.Name, req.Content)
	}
	return fmt.Sprintf("I am %s. Let me think through %q with you.", c.Name, req.Content)
}

// caller holds s.mu
func (s *Server) appendMessage(sess *session, role, content string, c *api.Character) {
	s.nextMsgID++
	sess.messages = append(sess.messages, storedMessage{
		id:        s.nextMsgID,
		role:      role,
		content:   content,
		createdAt: s.now().UTC(),
		character: c,
	})
}

// caller holds s.mu
func (s *Server) owned(r *http.Request, id string) (*session, bool) {
	sess, ok := s.sessions[id]
	if !ok || sess.UserID != r.Header.Get(api.HeaderUserID) {
		return nil, false
	}
	return sess, true
}

// caller holds s.mu
func (s *Server) findCharacter(id string) (api.Character, bool) {
	for _, c := range s.characters {
		if c.ID == id {
			return c, true
		}
	}
	return api.Character{}, false
}
