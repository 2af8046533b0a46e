// internal/generator/client.go
//
// HTTP client for the two generation collaborators.
// Responsibilities:
//   - POST /generate-character: send the exported drawing (PNG data URL) and
//     the player id as a multipart form; return the generated character.
//   - POST /generate-quest: send the character description and lesson as
//     JSON; return a playable quest.Quest.
//
// Notes:
//   - A call succeeds only on a 2xx status AND a "success" status field.
//   - Failure detail is read from "detail", then "error", then a generic
//     message, so the UI always has something human-readable to show.
//   - There is no automatic retry; the user retries by hand.

package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/storytopia/apps/go-server/internal/quest"
)

// Operation names used in errors and metrics labels.
const (
	OpCharacter = "character"
	OpQuest     = "quest"
)

// maxBody bounds how much of a collaborator response is read.
const maxBody = 8 << 20

// Error is a failed collaborator call.
type Error struct {
	Op     string
	Status int
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("generator %s: %d: %s", e.Op, e.Status, e.Detail)
	}
	return fmt.Sprintf("generator %s: %s", e.Op, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// Character is the collaborator's answer to a drawing.
type Character struct {
	DrawingURI            string         `json:"drawing_uri"`
	GeneratedCharacterURI string         `json:"generated_character_uri"`
	Analysis              map[string]any `json:"analysis,omitempty"`
	CharacterType         string         `json:"character_type"`
	CharacterDescription  string         `json:"character_description"`
}

// QuestRequest asks for a quest for a character and a lesson.
type QuestRequest struct {
	CharacterDescription string `json:"character_description"`
	CharacterName        string `json:"character_name,omitempty"`
	Lesson               string `json:"lesson"`
	UserID               string `json:"user_id,omitempty"`
}

// Client talks to the generation service.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New returns a client for baseURL. Generation is slow, so the timeout is
// usually tens of seconds.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type characterResponse struct {
	Status string `json:"status"`
	Detail any    `json:"detail"`
	Error  any    `json:"error"`
	Character
}

// GenerateCharacter sends a PNG data URL to /generate-character.
func (c *Client) GenerateCharacter(ctx context.Context, drawingDataURL, userID string) (*Character, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("drawing_data", drawingDataURL); err != nil {
		return nil, &Error{Op: OpCharacter, Detail: "could not encode request", Err: err}
	}
	if err := mw.WriteField("user_id", userID); err != nil {
		return nil, &Error{Op: OpCharacter, Detail: "could not encode request", Err: err}
	}
	if err := mw.Close(); err != nil {
		return nil, &Error{Op: OpCharacter, Detail: "could not encode request", Err: err}
	}

	status, raw, err := c.post(ctx, "/generate-character", mw.FormDataContentType(), &body)
	if err != nil {
		return nil, &Error{Op: OpCharacter, Detail: "Failed to generate character", Err: err}
	}

	var res characterResponse
	decodeErr := json.Unmarshal(raw, &res)
	if status < 200 || status > 299 || decodeErr != nil || res.Status != "success" {
		detail := failureDetail(res.Detail, res.Error, "Failed to generate character")
		log.Warn().Int("status", status).Str("detail", detail).Msg("character generation failed")
		return nil, &Error{Op: OpCharacter, Status: status, Detail: detail, Err: decodeErr}
	}
	out := res.Character
	return &out, nil
}

type questResponse struct {
	Status  string       `json:"status"`
	Detail  any          `json:"detail"`
	Error   any          `json:"error"`
	Wrapped *quest.Quest `json:"quest"`
	quest.Quest
}

// GenerateQuest asks /generate-quest for a quest. The response is either
// the quest itself or a {"status":..., "quest":{...}} wrapper.
func (c *Client) GenerateQuest(ctx context.Context, req QuestRequest) (*quest.Quest, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, &Error{Op: OpQuest, Detail: "could not encode request", Err: err}
	}
	status, raw, err := c.post(ctx, "/generate-quest", "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Op: OpQuest, Detail: "Failed to generate quest", Err: err}
	}

	var res questResponse
	decodeErr := json.Unmarshal(raw, &res)
	if status < 200 || status > 299 || decodeErr != nil || (res.Status != "" && res.Status != "success") {
		detail := failureDetail(res.Detail, res.Error, "Failed to generate quest")
		log.Warn().Int("status", status).Str("detail", detail).Msg("quest generation failed")
		return nil, &Error{Op: OpQuest, Status: status, Detail: detail, Err: decodeErr}
	}

	q := res.Quest
	if res.Wrapped != nil {
		q = *res.Wrapped
	}
	if q.CharacterName == "" {
		q.CharacterName = req.CharacterName
	}
	if q.Lesson == "" {
		q.Lesson = req.Lesson
	}
	if err := q.Validate(); err != nil {
		return nil, &Error{Op: OpQuest, Status: status, Detail: "Generated quest has no scenes", Err: err}
	}
	return &q, nil
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, raw, nil
}

// failureDetail picks the first usable message. FastAPI validation errors
// put a list of objects in "detail"; those are flattened to their "msg".
func failureDetail(detail, errField any, fallback string) string {
	for _, v := range []any{detail, errField} {
		if s := describe(v); s != "" {
			return s
		}
	}
	return fallback
}

func describe(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		var msgs []string
		for _, item := range t {
			if s := describe(item); s != "" {
				msgs = append(msgs, s)
			}
		}
		return strings.Join(msgs, "; ")
	case map[string]any:
		if m, ok := t["msg"].(string); ok {
			return m
		}
		if m, ok := t["message"].(string); ok {
			return m
		}
	}
	return ""
}
