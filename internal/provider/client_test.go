package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("sk-test", WithBaseURL(srv.URL+"/"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestCreateThread_SendsScopeAndHeaders(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/threads", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "assistants=v2", r.Header.Get("OpenAI-Beta"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		msgs := body["messages"].([]any)
		assert.Equal(t, "Hi", msgs[0].(map[string]any)["content"])
		ids := body["tool_resources"].(map[string]any)["file_search"].(map[string]any)["vector_store_ids"].([]any)
		assert.Equal(t, []any{"vs_1"}, ids)

		writeJSON(w, http.StatusOK, map[string]any{"id": "thread_1"})
	})

	thread, err := client.CreateThread(context.Background(), CreateThreadRequest{
		Messages:       []MessageInput{{Role: RoleUser, Content: "Hi"}},
		VectorStoreIDs: []string{"vs_1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "thread_1", thread.ID)
}

func TestCreateThread_OmitsEmptyScope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotContains(t, body, "tool_resources")
		assert.NotContains(t, body, "messages")
		writeJSON(w, http.StatusOK, map[string]any{"id": "thread_2"})
	})

	thread, err := client.CreateThread(context.Background(), CreateThreadRequest{})
	require.NoError(t, err)
	assert.Equal(t, "thread_2", thread.ID)
}

func TestListMessages_QueryAndDecode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/threads/thread_1/messages", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("limit"))
		assert.Equal(t, "desc", r.URL.Query().Get("order"))
		writeJSON(w, http.StatusOK, map[string]any{
			"data": []any{
				map[string]any{
					"id":   "msg_2",
					"role": "assistant",
					"content": []any{
						map[string]any{"type": "image_file"},
						map[string]any{"type": "text", "text": map[string]any{"value": "At ten."}},
					},
				},
			},
		})
	})

	msgs, err := client.ListMessages(context.Background(), "thread_1", ListMessagesParams{Limit: 3, Order: "desc"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	text, ok := msgs[0].FirstText()
	assert.True(t, ok)
	assert.Equal(t, "At ten.", text)
}

func TestRunLifecycleEndpoints(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/threads/t1/runs":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "asst_1", body["assistant_id"])
			writeJSON(w, http.StatusOK, map[string]any{"id": "run_1", "status": "queued"})
		case r.Method == http.MethodGet && r.URL.Path == "/threads/t1/runs/run_1":
			writeJSON(w, http.StatusOK, map[string]any{"id": "run_1", "status": "completed"})
		case r.Method == http.MethodPost && r.URL.Path == "/threads/t1/runs/run_1/cancel":
			writeJSON(w, http.StatusOK, map[string]any{"id": "run_1", "status": "cancelling"})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	ctx := context.Background()
	run, err := client.CreateRun(ctx, "t1", "asst_1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusQueued, run.Status)

	run, err = client.GetRun(ctx, "t1", "run_1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, run.Status)

	run, err = client.CancelRun(ctx, "t1", "run_1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusCancelling, run.Status)
}

func TestErrorResponse_BecomesTransportError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error": map[string]any{"message": "No thread found with id 'gone'.", "type": "invalid_request_error"},
		})
	})

	_, err := client.CreateMessage(context.Background(), "gone", MessageInput{Role: RoleUser, Content: "hello"})
	require.Error(t, err)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusNotFound, te.StatusCode)
	assert.Equal(t, "invalid_request_error", te.Type)
	assert.Contains(t, err.Error(), "No thread found")
	assert.True(t, IsNotFound(err))
	assert.False(t, IsRetryable(err))
}

func TestUnreachableProvider_IsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := NewClient("sk-test", WithBaseURL(srv.URL))

	_, err := client.GetRun(context.Background(), "t", "r")
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.False(t, IsNotFound(err))
}

func TestIsRetryable_StatusCodes(t *testing.T) {
	assert.True(t, IsRetryable(&TransportError{StatusCode: 429}))
	assert.True(t, IsRetryable(&TransportError{StatusCode: 503}))
	assert.False(t, IsRetryable(&TransportError{StatusCode: 400}))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestUploadFile_Multipart(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files", r.URL.Path)
		assert.Empty(t, r.Header.Get("OpenAI-Beta"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "assistants", r.FormValue("purpose"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "minutes.txt", hdr.Filename)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "board minutes", string(data))

		writeJSON(w, http.StatusOK, map[string]any{"id": "file_1", "filename": hdr.Filename})
	})

	path := filepath.Join(t.TempDir(), "staged-123")
	require.NoError(t, os.WriteFile(path, []byte("board minutes"), 0o644))

	file, err := client.UploadFile(context.Background(), path, "minutes.txt", PurposeAssistants)
	require.NoError(t, err)
	assert.Equal(t, "file_1", file.ID)
}

func TestUploadFile_MissingID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{})
	})
	path := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := client.UploadFile(context.Background(), path, "", PurposeAssistants)
	require.Error(t, err)
}

func TestDeleteFile(t *testing.T) {
	deleted := true
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/files/file_1", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{"id": "file_1", "deleted": deleted})
	})

	require.NoError(t, client.DeleteFile(context.Background(), "file_1"))

	deleted = false
	assert.Error(t, client.DeleteFile(context.Background(), "file_1"))
}

func TestVectorStoreFileEndpoints(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/vector_stores/vs_1/files":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "file_1", body["file_id"])
			writeJSON(w, http.StatusOK, map[string]any{"id": "file_1", "status": "in_progress"})
		case r.Method == http.MethodGet && r.URL.Path == "/vector_stores/vs_1/files/file_1":
			writeJSON(w, http.StatusOK, map[string]any{"id": "file_1", "status": "completed"})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	vsf, err := client.AttachVectorStoreFile(context.Background(), "vs_1", "file_1")
	require.NoError(t, err)
	assert.Equal(t, "in_progress", vsf.Status)

	vsf, err = client.GetVectorStoreFile(context.Background(), "vs_1", "file_1")
	require.NoError(t, err)
	assert.Equal(t, "completed", vsf.Status)
}

func TestTranscribe(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "en", r.FormValue("language"))
		writeJSON(w, http.StatusOK, map[string]any{"text": "When is the board meeting?"})
	})

	path := filepath.Join(t.TempDir(), "clip.webm")
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o644))

	text, err := client.Transcribe(context.Background(), TranscriptionRequest{AudioPath: path, Model: "whisper-1", Language: "en"})
	require.NoError(t, err)
	assert.Equal(t, "When is the board meeting?", text)
}

func TestSpeech_ReturnsBinary(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/speech", r.URL.Path)
		var body SpeechRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "alloy", body.Voice)
		assert.Equal(t, "Hello board", body.Input)
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3-audio"))
	})

	audio, err := client.Speech(context.Background(), SpeechRequest{Model: "gpt-4o-mini-tts", Input: "Hello board", Voice: "alloy"})
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3-audio"), audio)
}

func TestCreateAssistant(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/assistants", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body["model"])
		tools := body["tools"].([]any)
		assert.Equal(t, "file_search", tools[0].(map[string]any)["type"])
		writeJSON(w, http.StatusOK, map[string]any{"id": "asst_9", "model": "gpt-4o-mini"})
	})

	assistant, err := client.CreateAssistant(context.Background(), CreateAssistantRequest{
		Name:           "Boardroom Research Assistant",
		Instructions:   "Answer from the meeting documents.",
		Model:          "gpt-4o-mini",
		VectorStoreIDs: []string{"vs_1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "asst_9", assistant.ID)
}

func TestRateLimit_RespectsContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": "run_1", "status": "queued"})
	})
	WithRateLimit(0.001)(client)

	_, err := client.GetRun(context.Background(), "t", "r")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.GetRun(ctx, "t", "r")
	require.Error(t, err)
}
