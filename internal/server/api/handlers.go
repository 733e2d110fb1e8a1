package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"keepsake/internal/server/service"
	"keepsake/internal/server/session"

	"github.com/labstack/echo/v4"
)

// Handler contains the HTTP handlers for the Keepsake API.
type Handler struct {
	svc *service.UploadService
}

// NewHandler creates a new handler with the given service dependency.
func NewHandler(svc *service.UploadService) *Handler {
	return &Handler{svc: svc}
}

// HandleGallery handles GET /api/gallery.
// Returns every stored media item, newest first.
func (h *Handler) HandleGallery(c echo.Context) error {
	items, err := h.svc.Gallery(c.Request().Context())
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

// HandleUpload handles POST /upload.
// Accepts a multipart form with one or more "files" fields.
func (h *Handler) HandleUpload(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "expected multipart form data (field 'files')",
		})
	}

	headers := form.File["files"]
	files := make([]service.IncomingFile, 0, len(headers))
	for _, fh := range headers {
		fh := fh
		files = append(files, service.IncomingFile{
			Name:        fh.Filename,
			Size:        fh.Size,
			ContentType: fh.Header.Get("Content-Type"),
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}

	stored, err := h.svc.ProcessUpload(c.Request().Context(), files)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": fmt.Sprintf("%d file(s) uploaded successfully", len(stored)),
		"files":   stored,
	})
}

type initRequest struct {
	Filename    string `json:"filename"`
	Filesize    int64  `json:"filesize"`
	TotalChunks int    `json:"totalChunks"`
}

// HandleUploadInit handles POST /api/upload/init.
// Starts a chunked upload session.
func (h *Handler) HandleUploadInit(c echo.Context) error {
	var req initRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	uploadID, err := h.svc.InitChunked(c.Request().Context(), req.Filename, req.Filesize, req.TotalChunks)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"uploadId": uploadID})
}

// HandleUploadChunk handles POST /api/upload/chunk/:uploadId/:chunkIndex.
// Accepts a multipart form with a "chunk" field holding that chunk's bytes.
func (h *Handler) HandleUploadChunk(c echo.Context) error {
	uploadID := c.Param("uploadId")
	index, err := strconv.Atoi(c.Param("chunkIndex"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "chunk index must be an integer"})
	}

	fh, err := c.FormFile("chunk")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "chunk data is required (use form field 'chunk')",
		})
	}

	src, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to read chunk data"})
	}
	defer src.Close()

	n, err := h.svc.WriteChunk(c.Request().Context(), uploadID, index, src)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":    true,
		"chunkIndex": index,
		"size":       n,
	})
}

type completeRequest struct {
	UploadID    string `json:"uploadId"`
	Filename    string `json:"filename"`
	TotalChunks int    `json:"totalChunks"`
}

// HandleUploadComplete handles POST /api/upload/complete.
// Verifies all chunks arrived, finalizes the file, and returns its metadata.
func (h *Handler) HandleUploadComplete(c echo.Context) error {
	var req completeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	stored, err := h.svc.CompleteChunked(c.Request().Context(), req.UploadID, req.TotalChunks)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "upload completed successfully",
		"file":    stored,
	})
}

// HandleDownloadAll handles GET /api/gallery/download.
// Streams a zip archive of every media file.
func (h *Handler) HandleDownloadAll(c echo.Context) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "application/zip")
	res.Header().Set(echo.HeaderContentDisposition, `attachment; filename="gallery.zip"`)

	if err := h.svc.Archive(c.Request().Context(), res); err != nil {
		if res.Committed {
			// Bytes are already on the wire; all we can do is log and drop.
			return err
		}
		res.Header().Del(echo.HeaderContentDisposition)
		return mapServiceError(c, err)
	}

	return nil
}

// HandleHealth handles GET /health.
// Returns the health status of the server, including media store access.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	store := "readable"

	if _, err := h.svc.Gallery(c.Request().Context()); err != nil {
		status = "degraded"
		store = fmt.Sprintf("error: %v", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":      status,
		"media_store": store,
	})
}

// mapServiceError translates service and session errors into HTTP responses.
func mapServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrNoFiles):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "no files uploaded"})
	case errors.Is(err, service.ErrDisallowedType):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "only images and videos are allowed"})
	case errors.Is(err, service.ErrMalformed):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed upload request"})
	case errors.Is(err, service.ErrFileTooLarge):
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{
			"error": "file exceeds maximum allowed size",
		})
	case errors.Is(err, service.ErrNoMedia):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no media files to download"})
	case errors.Is(err, session.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "upload session not found"})
	case errors.Is(err, session.ErrBadChunkIndex):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "chunk index out of range"})
	case errors.Is(err, session.ErrIncomplete):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "upload is missing chunks"})
	case errors.Is(err, session.ErrCountMismatch):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "chunk count does not match session"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}
