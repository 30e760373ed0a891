package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
)

const PurposeAssistants = "assistants"

// multipartFile builds a multipart body holding the file at path under the
// "file" field plus the given plain fields.
func multipartFile(path, filename string, fields map[string]string) (*bytes.Buffer, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if filename == "" {
		filename = filepath.Base(path)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("failed to copy file data: %w", err)
	}
	for name, value := range fields {
		if value == "" {
			continue
		}
		if err := writer.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("failed to write %s field: %w", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

// UploadFile uploads the file at path. filename is the name the provider
// records; it defaults to the base name of path.
func (c *Client) UploadFile(ctx context.Context, path, filename, purpose string) (*File, error) {
	const op = "upload file"
	body, contentType, err := multipartFile(path, filename, map[string]string{"purpose": purpose})
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	respBody, err := c.do(ctx, requestSpec{
		op:          op,
		method:      http.MethodPost,
		path:        "/files",
		body:        body,
		contentType: contentType,
	})
	if err != nil {
		return nil, err
	}

	var file File
	if err := decode(op, respBody, &file); err != nil {
		return nil, err
	}
	if file.ID == "" {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("response carried no file id")}
	}
	return &file, nil
}

// DeleteFile deletes a file; the provider also detaches it from every
// vector store.
func (c *Client) DeleteFile(ctx context.Context, fileID string) error {
	var resp struct {
		ID      string `json:"id"`
		Deleted bool   `json:"deleted"`
	}
	if err := c.doJSON(ctx, "delete file", http.MethodDelete, "/files/"+url.PathEscape(fileID), nil, &resp); err != nil {
		return err
	}
	if !resp.Deleted {
		return &TransportError{Op: "delete file", StatusCode: http.StatusOK, Message: "provider reported file not deleted"}
	}
	return nil
}

// AttachVectorStoreFile links an uploaded file into a vector store.
func (c *Client) AttachVectorStoreFile(ctx context.Context, vectorStoreID, fileID string) (*VectorStoreFile, error) {
	var vsf VectorStoreFile
	path := fmt.Sprintf("/vector_stores/%s/files", url.PathEscape(vectorStoreID))
	if err := c.doJSON(ctx, "attach vector store file", http.MethodPost, path, map[string]string{"file_id": fileID}, &vsf); err != nil {
		return nil, err
	}
	return &vsf, nil
}

// GetVectorStoreFile reports the indexing state of a linked file.
func (c *Client) GetVectorStoreFile(ctx context.Context, vectorStoreID, fileID string) (*VectorStoreFile, error) {
	var vsf VectorStoreFile
	path := fmt.Sprintf("/vector_stores/%s/files/%s", url.PathEscape(vectorStoreID), url.PathEscape(fileID))
	if err := c.doJSON(ctx, "get vector store file", http.MethodGet, path, nil, &vsf); err != nil {
		return nil, err
	}
	return &vsf, nil
}
