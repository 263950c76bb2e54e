package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DefaultTitle is shown for sessions the backend has not named yet.
const DefaultTitle = "New Chat"

type Character struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (c *Character) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          string `json:"id"`
		CharacterID string `json:"character_id"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.ID = firstNonEmpty(raw.ID, raw.CharacterID)
	c.Name = raw.Name
	c.Description = raw.Description
	return nil
}

type Session struct {
	ID         string      `json:"id"`
	UserID     string      `json:"user_id,omitempty"`
	Title      string      `json:"title"`
	CreatedAt  time.Time   `json:"created_at"`
	Characters []Character `json:"characters"`
}

func (s *Session) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID                    string      `json:"id"`
		SessionID             string      `json:"session_id"`
		UserID                string      `json:"user_id"`
		Title                 string      `json:"title"`
		CreatedAt             string      `json:"created_at"`
		Characters            []Character `json:"characters"`
		CharacterDescriptions []Character `json:"character_descriptions"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	created, err := parseTimestamp(raw.CreatedAt)
	if err != nil {
		return err
	}
	s.ID = firstNonEmpty(raw.ID, raw.SessionID)
	s.UserID = raw.UserID
	s.Title = raw.Title
	if strings.TrimSpace(s.Title) == "" {
		s.Title = DefaultTitle
	}
	s.CreatedAt = created
	s.Characters = raw.Characters
	if len(s.Characters) == 0 {
		s.Characters = raw.CharacterDescriptions
	}
	return nil
}

// Stored message roles as the backend writes them.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type StoredMessage struct {
	ID        string     `json:"id"`
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"created_at"`
	Character *Character `json:"character,omitempty"`
}

func (m *StoredMessage) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        json.RawMessage `json:"id"`
		MessageID json.RawMessage `json:"message_id"`
		Role      string          `json:"role"`
		Content   string          `json:"content"`
		CreatedAt string          `json:"created_at"`
		Character *Character      `json:"character"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	created, err := parseTimestamp(raw.CreatedAt)
	if err != nil {
		return err
	}
	m.ID = firstNonEmpty(rawID(raw.ID), rawID(raw.MessageID))
	m.Role = raw.Role
	m.Content = raw.Content
	m.CreatedAt = created
	m.Character = raw.Character
	return nil
}

// ChatRequest is the body of POST /sessions/{id}/chat.
type ChatRequest struct {
	Content string `json:"content"`
	Style   string `json:"style"`
	Model   string `json:"model"`
}

type createSessionRequest struct {
	UserID       string   `json:"user_id"`
	CharacterIDs []string `json:"character_ids"`
}

type renameRequest struct {
	Title string `json:"title"`
}

// decodeList accepts either a bare JSON array or an object wrapping the
// array under key.
func decodeList[T any](data []byte, key string) ([]T, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var out []T
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, err
	}
	inner, ok := wrapped[key]
	if !ok {
		return nil, fmt.Errorf("response has no %q list", key)
	}
	var out []T
	if err := json.Unmarshal(inner, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// rawID renders a JSON string or number id as a string.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseTimestamp accepts RFC 3339 and the naive ISO 8601 forms Python
// backends emit. Naive timestamps are taken as UTC.
func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
