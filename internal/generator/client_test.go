package generator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/storytopia/apps/go-server/internal/quest"
)

func serve(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return New(ts.URL+"/", 5*time.Second)
}

func TestGenerateCharacterSendsMultipartForm(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/generate-character", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "data:image/png;base64,AAAA", r.FormValue("drawing_data"))
		assert.Equal(t, "player-1", r.FormValue("user_id"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":                  "success",
			"drawing_uri":             "gs://bucket/drawing.png",
			"generated_character_uri": "gs://bucket/character.png",
			"analysis":                map[string]any{"colors": []string{"red"}},
			"character_type":          "dragon",
			"character_description":   "A friendly red dragon",
		})
	})

	ch, err := c.GenerateCharacter(context.Background(), "data:image/png;base64,AAAA", "player-1")
	require.NoError(t, err)
	assert.Equal(t, "gs://bucket/character.png", ch.GeneratedCharacterURI)
	assert.Equal(t, "gs://bucket/drawing.png", ch.DrawingURI)
	assert.Equal(t, "dragon", ch.CharacterType)
	assert.Equal(t, "A friendly red dragon", ch.CharacterDescription)
	assert.Contains(t, ch.Analysis, "colors")
}

func TestGenerateCharacterFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		detail string
	}{
		{"status error with detail", http.StatusOK, `{"status":"error","error":"Failed to get result from agent","detail":"No parseable response"}`, "No parseable response"},
		{"http error with detail", http.StatusBadRequest, `{"detail":"Drawing is empty"}`, "Drawing is empty"},
		{"error field only", http.StatusOK, `{"status":"error","error":"agent down"}`, "agent down"},
		{"validation list", http.StatusUnprocessableEntity, `{"detail":[{"loc":["body","user_id"],"msg":"field required"}]}`, "field required"},
		{"not json", http.StatusInternalServerError, `<html>oops</html>`, "Failed to generate character"},
		{"2xx without status", http.StatusOK, `{}`, "Failed to generate character"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := serve(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.GenerateCharacter(context.Background(), "data:", "u")
			require.Error(t, err)
			var ge *Error
			require.True(t, errors.As(err, &ge))
			assert.Equal(t, OpCharacter, ge.Op)
			assert.Equal(t, tt.status, ge.Status)
			assert.Equal(t, tt.detail, ge.Detail)
		})
	}
}

func TestGenerateCharacterTransportFailure(t *testing.T) {
	c := New("http://127.0.0.1:1", time.Second)
	_, err := c.GenerateCharacter(context.Background(), "data:", "u")
	var ge *Error
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, 0, ge.Status)
	assert.Equal(t, "Failed to generate character", ge.Detail)
}

func TestGenerateCharacterHonoursContext(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.GenerateCharacter(ctx, "data:", "u")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func sampleQuest() quest.Quest {
	return quest.Quest{
		Title: "The Sharing Forest",
		Scenes: []quest.Scene{{
			Number:   1,
			Scenario: "Blobby finds berries.",
			Question: "What next?",
			OptionA:  quest.Option{Text: "Share", IsCorrect: true, Feedback: "Yay"},
			OptionB:  quest.Option{Text: "Hide", Feedback: "Hmm"},
		}},
	}
}

func TestGenerateQuestPlainAndWrapped(t *testing.T) {
	plain, err := json.Marshal(sampleQuest())
	require.NoError(t, err)
	wrapped, err := json.Marshal(map[string]any{"status": "success", "quest": sampleQuest()})
	require.NoError(t, err)

	for name, body := range map[string][]byte{"plain": plain, "wrapped": wrapped} {
		t.Run(name, func(t *testing.T) {
			c := serve(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/generate-quest", r.URL.Path)
				var req QuestRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "kindness", req.Lesson)
				assert.Equal(t, "a blue blob", req.CharacterDescription)
				_, _ = w.Write(body)
			})
			q, err := c.GenerateQuest(context.Background(), QuestRequest{
				CharacterDescription: "a blue blob",
				CharacterName:        "Blobby",
				Lesson:               "kindness",
			})
			require.NoError(t, err)
			assert.Equal(t, "The Sharing Forest", q.Title)
			assert.Equal(t, "Blobby", q.CharacterName)
			assert.Equal(t, "kindness", q.Lesson)
			require.Len(t, q.Scenes, 1)
			assert.True(t, q.Scenes[0].OptionA.IsCorrect)
			assert.False(t, q.Scenes[0].Illustrated())
		})
	}
}

func TestGenerateQuestRejectsEmptyQuest(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"quest_title":"Nothing here","scenes":[]}`))
	})
	_, err := c.GenerateQuest(context.Background(), QuestRequest{Lesson: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, quest.ErrNoScenes)
}

func TestGenerateQuestErrorStatus(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"error","detail":"illustrator offline"}`))
	})
	_, err := c.GenerateQuest(context.Background(), QuestRequest{Lesson: "x"})
	var ge *Error
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, OpQuest, ge.Op)
	assert.Equal(t, "illustrator offline", ge.Detail)
}
