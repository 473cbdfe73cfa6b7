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

// Package model defines the core data structures for the application.
// This file, `transient.go`, contains the request-scoped objects that flow
// through a single video analysis request. None of them outlive the request
// that created them: they are handed from command to command through the
// chain context and discarded once the result has been rendered.
package model

import (
	"fmt"
	"io"
	"strings"
)

// MediaFormat is one of the video container formats accepted for analysis.
type MediaFormat string

const (
	FormatMP4 MediaFormat = "mp4"
	FormatMOV MediaFormat = "mov"
	FormatAVI MediaFormat = "avi"
)

// SupportedFormats lists every container format the service knows how to submit.
var SupportedFormats = []MediaFormat{FormatMP4, FormatMOV, FormatAVI}

var formatMIMETypes = map[MediaFormat]string{
	FormatMP4: "video/mp4",
	FormatMOV: "video/quicktime",
	FormatAVI: "video/x-msvideo",
}

// ParseMediaFormat converts a file extension (with or without the leading dot,
// any case) into a MediaFormat.
func ParseMediaFormat(in string) (MediaFormat, error) {
	f := MediaFormat(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(in), ".")))
	if _, ok := formatMIMETypes[f]; !ok {
		return "", fmt.Errorf("unsupported media format %q", in)
	}
	return f, nil
}

// Suffix returns the file name suffix used for temporary copies, e.g. ".mov".
func (f MediaFormat) Suffix() string {
	return "." + string(f)
}

// MIMEType returns the canonical MIME type for the container format.
func (f MediaFormat) MIMEType() string {
	if m, ok := formatMIMETypes[f]; ok {
		return m
	}
	return "application/octet-stream"
}

// UploadedMedia is the raw upload received from the presentation layer. It is
// owned by the pipeline invocation that receives it.
type UploadedMedia struct {
	Name     string      // Original file name as supplied by the user.
	Format   MediaFormat // Declared container format.
	MIMEType string      // Sniffed MIME type; empty means "use the format default".
	Content  io.Reader   // The raw bytes of the upload.
}

// GetMIMEType returns the sniffed MIME type when present, otherwise the
// default for the declared format.
func (m *UploadedMedia) GetMIMEType() string {
	if m.MIMEType != "" {
		return m.MIMEType
	}
	return m.Format.MIMEType()
}

// TemporaryFileHandle points at the scoped local copy of an upload. Exactly one
// handle exists per request and it must be released exactly once.
type TemporaryFileHandle struct {
	Path        string
	DisplayName string
	Format      MediaFormat
	MIMEType    string
	Size        int64
}

// RemoteState is the server-side processing state of submitted media.
type RemoteState string

const (
	RemoteStateProcessing RemoteState = "PROCESSING"
	RemoteStateReady      RemoteState = "READY"
	RemoteStateFailed     RemoteState = "FAILED"
)

// RemoteMediaReference is the opaque handle returned by the remote service once
// media has been submitted. Its state only changes when it is re-fetched.
type RemoteMediaReference struct {
	Name          string      // Identifier used to re-fetch state (e.g. "files/abc123").
	DisplayName   string      // Human-readable name, used by text-only prompts.
	URI           string      // URI handed to content generation.
	MIMEType      string      // MIME type of the submitted media.
	State         RemoteState // Last observed processing state.
	FailureReason string      // Populated by the service when State is FAILED.
	Degraded      bool        // True when the media itself never reached the model.
}

// IsProcessing reports whether the remote service is still ingesting the media.
func (r *RemoteMediaReference) IsProcessing() bool {
	return r.State == RemoteStateProcessing
}

// AnalysisRequest pairs a ready media reference with the user's question.
type AnalysisRequest struct {
	ID    string
	Media *RemoteMediaReference
	Query string
}

// AnalysisResult is the single outcome of a request: generated text, a
// user-correctable warning, or a classified error.
type AnalysisResult struct {
	RequestID string         `json:"request_id"`
	Text      string         `json:"answer,omitempty"`
	Warning   string         `json:"warning,omitempty"`
	Err       *AnalysisError `json:"-"`
	Degraded  bool           `json:"degraded,omitempty"`
	Polls     int            `json:"-"`
}

// OK reports whether the result carries generated text.
func (r *AnalysisResult) OK() bool {
	return r.Err == nil && r.Warning == ""
}

// UserMessage flattens the result into the single string shown to the user.
func (r *AnalysisResult) UserMessage() string {
	switch {
	case r.Err != nil:
		return r.Err.UserMessage()
	case r.Warning != "":
		return r.Warning
	default:
		return r.Text
	}
}
