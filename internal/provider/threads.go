package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

type fileSearchResources struct {
	VectorStoreIDs []string `json:"vector_store_ids"`
}

type toolResources struct {
	FileSearch *fileSearchResources `json:"file_search,omitempty"`
}

func newToolResources(vectorStoreIDs []string) *toolResources {
	if len(vectorStoreIDs) == 0 {
		return nil
	}
	return &toolResources{FileSearch: &fileSearchResources{VectorStoreIDs: vectorStoreIDs}}
}

// CreateThread creates a conversation thread.
func (c *Client) CreateThread(ctx context.Context, req CreateThreadRequest) (*Thread, error) {
	payload := struct {
		Messages      []MessageInput `json:"messages,omitempty"`
		ToolResources *toolResources `json:"tool_resources,omitempty"`
	}{
		Messages:      req.Messages,
		ToolResources: newToolResources(req.VectorStoreIDs),
	}

	var thread Thread
	if err := c.doJSON(ctx, "create thread", http.MethodPost, "/threads", payload, &thread); err != nil {
		return nil, err
	}
	return &thread, nil
}

// CreateMessage appends a message to a thread.
func (c *Client) CreateMessage(ctx context.Context, threadID string, msg MessageInput) (*Message, error) {
	var created Message
	path := fmt.Sprintf("/threads/%s/messages", url.PathEscape(threadID))
	if err := c.doJSON(ctx, "create message", http.MethodPost, path, msg, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// ListMessages returns the messages of a thread.
func (c *Client) ListMessages(ctx context.Context, threadID string, params ListMessagesParams) ([]Message, error) {
	query := url.Values{}
	if params.Limit > 0 {
		query.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Order != "" {
		query.Set("order", params.Order)
	}
	path := fmt.Sprintf("/threads/%s/messages", url.PathEscape(threadID))
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var page struct {
		Data []Message `json:"data"`
	}
	if err := c.doJSON(ctx, "list messages", http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return page.Data, nil
}

// CreateRun starts the assistant on a thread.
func (c *Client) CreateRun(ctx context.Context, threadID, assistantID string) (*Run, error) {
	payload := map[string]string{"assistant_id": assistantID}
	var run Run
	path := fmt.Sprintf("/threads/%s/runs", url.PathEscape(threadID))
	if err := c.doJSON(ctx, "create run", http.MethodPost, path, payload, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRun fetches the current state of a run.
func (c *Client) GetRun(ctx context.Context, threadID, runID string) (*Run, error) {
	var run Run
	path := fmt.Sprintf("/threads/%s/runs/%s", url.PathEscape(threadID), url.PathEscape(runID))
	if err := c.doJSON(ctx, "get run", http.MethodGet, path, nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// CancelRun asks the provider to stop a run.
func (c *Client) CancelRun(ctx context.Context, threadID, runID string) (*Run, error) {
	var run Run
	path := fmt.Sprintf("/threads/%s/runs/%s/cancel", url.PathEscape(threadID), url.PathEscape(runID))
	if err := c.doJSON(ctx, "cancel run", http.MethodPost, path, nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}
