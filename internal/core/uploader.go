package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Client talks to the keepsake server's upload endpoints.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	ChunkSize  int64
}

// NewClient creates an upload client with a 5MB chunk size.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Minute},
		ChunkSize:  5 * 1024 * 1024,
	}
}

// UploadBatch sends several whole files in one multipart request to /upload.
// The request body is streamed through a pipe so batches never need to fit
// in memory.
func (c *Client) UploadBatch(ctx context.Context, files []Result) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		for _, f := range files {
			if err := writeFilePart(mw, f); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/upload", pr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	return checkResponse(resp)
}

// UploadChunked drives the chunked protocol for one large file: init,
// sequential chunk posts, then complete. The loop checks ctx between
// chunks so an abort stops promptly; the server's sweeper reclaims
// whatever was already sent.
func (c *Client) UploadChunked(ctx context.Context, f Result, progress func(sent, total int)) error {
	file, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", f.Path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", f.Path, err)
	}

	totalChunks := int((info.Size() + c.ChunkSize - 1) / c.ChunkSize)
	if totalChunks == 0 {
		totalChunks = 1
	}

	uploadID, err := c.initSession(ctx, f.Name, info.Size(), totalChunks)
	if err != nil {
		return err
	}

	buf := make([]byte, c.ChunkSize)
	for i := 0; i < totalChunks; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := io.ReadFull(file, buf)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return fmt.Errorf("failed to read chunk %d: %w", i, err)
		}

		if err := c.sendChunk(ctx, uploadID, i, buf[:n]); err != nil {
			return err
		}

		if progress != nil {
			progress(i+1, totalChunks)
		}
	}

	return c.completeSession(ctx, uploadID, f.Name, totalChunks)
}

func (c *Client) initSession(ctx context.Context, filename string, filesize int64, totalChunks int) (string, error) {
	body, _ := json.Marshal(map[string]any{
		"filename":    filename,
		"filesize":    filesize,
		"totalChunks": totalChunks,
	})

	resp, err := c.postJSON(ctx, "/api/upload/init", body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return "", err
	}

	var out struct {
		UploadID string `json:"uploadId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode init response: %w", err)
	}
	if out.UploadID == "" {
		return "", fmt.Errorf("server returned no upload id")
	}
	return out.UploadID, nil
}

func (c *Client) sendChunk(ctx context.Context, uploadID string, index int, data []byte) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("chunk", "blob")
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/upload/chunk/%s/%d", c.BaseURL, uploadID, index)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("chunk %d upload failed: %w", index, err)
	}
	defer resp.Body.Close()

	return checkResponse(resp)
}

func (c *Client) completeSession(ctx context.Context, uploadID, filename string, totalChunks int) error {
	body, _ := json.Marshal(map[string]any{
		"uploadId":    uploadID,
		"filename":    filename,
		"totalChunks": totalChunks,
	})

	resp, err := c.postJSON(ctx, "/api/upload/complete", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return checkResponse(resp)
}

func (c *Client) postJSON(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	return resp, nil
}

func writeFilePart(mw *multipart.Writer, f Result) error {
	file, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", f.Path, err)
	}
	defer file.Close()

	// CreateFormFile would declare application/octet-stream, which the
	// server's MIME allow-list rejects; declare the real media type.
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="files"; filename="%s"`, escapeQuotes(f.Name)))
	if ct := contentTypeFor(f.Name); ct != "" {
		header.Set("Content-Type", ct)
	}

	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("failed to stream %s: %w", f.Path, err)
	}
	return nil
}

// contentTypeFor maps a filename to its declared Content-Type, covering the
// video extensions the stdlib mime table leaves out.
func contentTypeFor(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".avi":
		return "video/x-msvideo"
	case ".wmv":
		return "video/x-ms-wmv"
	case ".flv":
		return "video/x-flv"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	}
	return mime.TypeByExtension(ext)
}

var quoteReplacer = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteReplacer.Replace(s)
}

// checkResponse surfaces the server's error message on non-2xx responses.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var apiErr struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
		return fmt.Errorf("server rejected request (%d): %s", resp.StatusCode, apiErr.Error)
	}
	return fmt.Errorf("server rejected request: %s", resp.Status)
}
