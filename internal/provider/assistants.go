package provider

import (
	"context"
	"net/http"
)

// CreateAssistant creates a file-search assistant.
func (c *Client) CreateAssistant(ctx context.Context, req CreateAssistantRequest) (*Assistant, error) {
	payload := struct {
		Name          string              `json:"name"`
		Instructions  string              `json:"instructions"`
		Model         string              `json:"model"`
		Tools         []map[string]string `json:"tools"`
		ToolResources *toolResources      `json:"tool_resources,omitempty"`
	}{
		Name:          req.Name,
		Instructions:  req.Instructions,
		Model:         req.Model,
		Tools:         []map[string]string{{"type": "file_search"}},
		ToolResources: newToolResources(req.VectorStoreIDs),
	}

	var assistant Assistant
	if err := c.doJSON(ctx, "create assistant", http.MethodPost, "/assistants", payload, &assistant); err != nil {
		return nil, err
	}
	return &assistant, nil
}
