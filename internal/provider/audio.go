package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Transcribe converts the audio file at req.AudioPath to text.
func (c *Client) Transcribe(ctx context.Context, req TranscriptionRequest) (string, error) {
	const op = "transcribe"
	body, contentType, err := multipartFile(req.AudioPath, "", map[string]string{
		"model":    req.Model,
		"language": req.Language,
	})
	if err != nil {
		return "", &TransportError{Op: op, Err: err}
	}

	respBody, err := c.do(ctx, requestSpec{
		op:          op,
		method:      http.MethodPost,
		path:        "/audio/transcriptions",
		body:        body,
		contentType: contentType,
	})
	if err != nil {
		return "", err
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := decode(op, respBody, &result); err != nil {
		return "", err
	}
	return result.Text, nil
}

// Speech synthesizes req.Input and returns the encoded audio.
func (c *Client) Speech(ctx context.Context, req SpeechRequest) ([]byte, error) {
	const op = "speech"
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}
	return c.do(ctx, requestSpec{
		op:          op,
		method:      http.MethodPost,
		path:        "/audio/speech",
		body:        bytes.NewReader(payload),
		contentType: "application/json",
	})
}

func decode(op string, body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	return nil
}
