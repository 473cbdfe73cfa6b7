// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api is the HTTP presentation layer. It turns a multipart upload and
// a question into a call to the analysis workflow and renders the result.
//
// Routes (mounted under /api/v1 by the server):
//   - POST /analyze: form fields "video" (file) and "query" (text).
//   - GET /formats: accepted container formats and their MIME types.
//   - GET /stats: outcome counters.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/h2non/filetype"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// sniffLen is the number of leading bytes inspected for content type.
const sniffLen = 261

// RequestHandler runs one analysis request.
type RequestHandler interface {
	HandleRequest(ctx context.Context, media *model.UploadedMedia, query string) *model.AnalysisResult
}

// Handler serves the analysis routes.
type Handler struct {
	Workflow       RequestHandler
	Formats        []model.MediaFormat
	MaxUploadBytes int64
	Stats          *Stats
}

// ErrorResponse is the body of every non-2xx analyze response.
type ErrorResponse struct {
	RequestID string          `json:"request_id,omitempty"`
	Error     string          `json:"error"`
	Kind      model.ErrorKind `json:"kind,omitempty"`
	Retryable bool            `json:"retryable"`
}

// FormatInfo describes one accepted format.
type FormatInfo struct {
	Format   model.MediaFormat `json:"format"`
	MIMEType string            `json:"mime_type"`
}

// Register mounts the routes on r.
func (h *Handler) Register(r *gin.RouterGroup) {
	r.POST("/analyze", h.Analyze)
	r.GET("/formats", h.ListFormats)
	Dashboard(r, h.Stats)
}

// ListFormats returns the accepted formats.
func (h *Handler) ListFormats(c *gin.Context) {
	out := make([]FormatInfo, 0, len(h.Formats))
	for _, f := range h.Formats {
		out = append(out, FormatInfo{Format: f, MIMEType: f.MIMEType()})
	}
	c.JSON(http.StatusOK, out)
}

// Analyze validates the upload and runs the workflow.
func (h *Handler) Analyze(c *gin.Context) {
	if h.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)
	}

	header, err := c.FormFile("video")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			reject(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("the video exceeds the %d byte upload limit", h.MaxUploadBytes))
			return
		}
		reject(c, http.StatusBadRequest, "a video file is required in the \"video\" field")
		return
	}

	format, err := model.ParseMediaFormat(filepath.Ext(header.Filename))
	if err != nil || !slices.Contains(h.Formats, format) {
		reject(c, http.StatusUnsupportedMediaType, fmt.Sprintf("unsupported video format %q, accepted: %s", filepath.Ext(header.Filename), h.formatList()))
		return
	}

	file, err := header.Open()
	if err != nil {
		reject(c, http.StatusBadRequest, "the uploaded video could not be read")
		return
	}
	defer file.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		reject(c, http.StatusBadRequest, "the uploaded video could not be read")
		return
	}
	head = head[:n]

	media := &model.UploadedMedia{
		Name:    filepath.Base(header.Filename),
		Format:  format,
		Content: io.MultiReader(bytes.NewReader(head), file),
	}
	kind, _ := filetype.Match(head)
	if kind != filetype.Unknown {
		if !filetype.IsVideo(head) {
			reject(c, http.StatusUnsupportedMediaType, fmt.Sprintf("the uploaded file is %s, not a video", kind.MIME.Value))
			return
		}
		media.MIMEType = kind.MIME.Value
	}

	result := h.Workflow.HandleRequest(c.Request.Context(), media, c.PostForm("query"))
	if h.Stats != nil {
		h.Stats.Record(result)
	}

	if result.Err != nil {
		c.JSON(result.Err.StatusCode(), ErrorResponse{
			RequestID: result.RequestID,
			Error:     result.UserMessage(),
			Kind:      result.Err.Kind,
			Retryable: result.Err.Retryable(),
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) formatList() string {
	names := make([]string, 0, len(h.Formats))
	for _, f := range h.Formats {
		names = append(names, string(f))
	}
	return strings.Join(names, ", ")
}

func reject(c *gin.Context, status int, message string) {
	slog.InfoContext(c.Request.Context(), "rejected upload", "status", status, "reason", message)
	c.JSON(status, ErrorResponse{Error: message})
}
