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

// Package model_test contains unit tests for the request-scoped data model and
// the error taxonomy.
package model_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/stretchr/testify/assert"
)

// TestParseMediaFormat verifies that extensions are normalised and that only
// the enumerated containers are accepted.
func TestParseMediaFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    model.MediaFormat
		wantErr bool
	}{
		{in: "mp4", want: model.FormatMP4},
		{in: ".MOV", want: model.FormatMOV},
		{in: " avi ", want: model.FormatAVI},
		{in: ".mkv", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := model.ParseMediaFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMediaFormatSuffixAndMIME(t *testing.T) {
	assert.Equal(t, ".mov", model.FormatMOV.Suffix())
	assert.Equal(t, "video/quicktime", model.FormatMOV.MIMEType())
	assert.Equal(t, "video/x-msvideo", model.FormatAVI.MIMEType())
	assert.Equal(t, "application/octet-stream", model.MediaFormat("webm").MIMEType())

	m := &model.UploadedMedia{Format: model.FormatMP4}
	assert.Equal(t, "video/mp4", m.GetMIMEType())
	m.MIMEType = "video/x-m4v"
	assert.Equal(t, "video/x-m4v", m.GetMIMEType())
}

// TestAnalysisErrorIs checks that wrapped errors still match their kind sentinel
// and not any other.
func TestAnalysisErrorIs(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("store: %w", model.NewError(model.KindIOFailure, "store-media", "", cause))

	assert.ErrorIs(t, err, model.ErrIOFailure)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, model.ErrRemoteTimeout)
	assert.Equal(t, model.KindIOFailure, model.KindOf(err))
	assert.Equal(t, model.ErrorKind(""), model.KindOf(cause))
}

func TestAnalysisErrorUserMessage(t *testing.T) {
	contentErr := model.NewError(model.KindRemoteContentError, "generate", "quota exceeded", nil)
	assert.Equal(t, "An error occurred during analysis: quota exceeded", contentErr.UserMessage())
	assert.Equal(t, http.StatusBadGateway, contentErr.StatusCode())
	assert.False(t, contentErr.Retryable())

	timeout := model.NewError(model.KindRemoteTimeout, "await-media", "still processing", nil)
	assert.True(t, timeout.Retryable())
	assert.Equal(t, http.StatusGatewayTimeout, timeout.StatusCode())
	assert.Contains(t, timeout.Error(), "remote_timeout")
}

func TestAsAnalysisError(t *testing.T) {
	assert.Nil(t, model.AsAnalysisError(nil, "op", model.KindRemoteCallFailure))

	plain := model.AsAnalysisError(errors.New("connection reset"), "generate", model.KindRemoteCallFailure)
	assert.Equal(t, model.KindRemoteCallFailure, plain.Kind)
	assert.Equal(t, "connection reset", plain.Message)

	original := model.NewError(model.KindRemoteTimeout, "await-media", "", nil)
	assert.Same(t, original, model.AsAnalysisError(fmt.Errorf("wrapped: %w", original), "x", model.KindIOFailure))
}

func TestAnalysisResultUserMessage(t *testing.T) {
	ok := &model.AnalysisResult{Text: "Summary text"}
	assert.True(t, ok.OK())
	assert.Equal(t, "Summary text", ok.UserMessage())

	warn := &model.AnalysisResult{Warning: model.EmptyQueryWarning}
	assert.False(t, warn.OK())
	assert.Equal(t, model.EmptyQueryWarning, warn.UserMessage())

	failed := &model.AnalysisResult{Err: model.NewError(model.KindIOFailure, "store-media", "", errors.New("x"))}
	assert.False(t, failed.OK())
	assert.Contains(t, failed.UserMessage(), "could not be stored")
}
