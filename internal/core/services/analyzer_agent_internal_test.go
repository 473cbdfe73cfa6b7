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

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	legacy "github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

func apiError(t *testing.T, err error) *apierror.APIError {
	t.Helper()
	ae, ok := apierror.FromError(err)
	require.True(t, ok, "not an api error: %v", err)
	return ae
}

func TestRemoteStateFromLegacyFile(t *testing.T) {
	tests := []struct {
		in   legacy.FileState
		want model.RemoteState
	}{
		{in: legacy.FileStateUnspecified, want: model.RemoteStateProcessing},
		{in: legacy.FileStateProcessing, want: model.RemoteStateProcessing},
		{in: legacy.FileStateActive, want: model.RemoteStateReady},
		{in: legacy.FileStateFailed, want: model.RemoteStateFailed},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, remoteStateFromLegacyFile(tt.in))
		})
	}
}

func TestReferenceFromLegacyFile(t *testing.T) {
	ref := referenceFromLegacyFile(&legacy.File{
		Name:     "files/xyz",
		URI:      "https://files/xyz",
		MIMEType: "video/mp4",
		State:    legacy.FileStateActive,
	}, "clip.mp4")

	assert.Equal(t, "files/xyz", ref.Name)
	assert.Equal(t, "clip.mp4", ref.DisplayName)
	assert.Equal(t, "https://files/xyz", ref.URI)
	assert.Equal(t, model.RemoteStateReady, ref.State)
	assert.Empty(t, ref.FailureReason)

	failed := referenceFromLegacyFile(&legacy.File{
		Name:        "files/xyz",
		DisplayName: "remote-name.mp4",
		State:       legacy.FileStateFailed,
		Error:       apiError(t, status.Error(codes.InvalidArgument, "unsupported codec")),
	}, "clip.mp4")

	assert.Equal(t, "remote-name.mp4", failed.DisplayName)
	assert.Equal(t, model.RemoteStateFailed, failed.State)
	assert.Equal(t, "unsupported codec", failed.FailureReason)
}

func TestLegacyResponseText(t *testing.T) {
	text := func(parts ...legacy.Part) *legacy.Candidate {
		return &legacy.Candidate{Content: &legacy.Content{Parts: parts}}
	}
	tests := map[string]struct {
		resp    *legacy.GenerateContentResponse
		want    string
		blocked bool
		empty   bool
	}{
		"concatenates text parts": {
			resp: &legacy.GenerateContentResponse{Candidates: []*legacy.Candidate{
				text(legacy.Text("Two people "), legacy.Blob{MIMEType: "image/png"}, legacy.Text("talk.")),
			}},
			want: "Two people talk.",
		},
		"blocked prompt": {
			resp:    &legacy.GenerateContentResponse{PromptFeedback: &legacy.PromptFeedback{BlockReason: legacy.BlockReasonSafety}},
			blocked: true,
		},
		"safety stop without text": {
			resp:    &legacy.GenerateContentResponse{Candidates: []*legacy.Candidate{{FinishReason: legacy.FinishReasonSafety}}},
			blocked: true,
		},
		"no candidates": {
			resp:  &legacy.GenerateContentResponse{},
			empty: true,
		},
		"nil response": {
			empty: true,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			out, err := legacyResponseText(tt.resp)
			switch {
			case tt.blocked:
				var blocked *cloud.ContentBlockedError
				require.ErrorAs(t, err, &blocked)
				assert.Equal(t, model.KindRemoteContentError, classifyGenerateError("generate", err).Kind)
			case tt.empty:
				assert.ErrorIs(t, err, cloud.ErrEmptyResponse)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, out)
			}
		})
	}
}

func TestIsAPINotFound(t *testing.T) {
	tests := map[string]struct {
		err  error
		want bool
	}{
		"grpc not found":    {err: apiError(t, status.Error(codes.NotFound, "no file")), want: true},
		"http not found":    {err: apiError(t, &googleapi.Error{Code: http.StatusNotFound}), want: true},
		"wrapped not found": {err: fmt.Errorf("delete: %w", apiError(t, status.Error(codes.NotFound, "no file"))), want: true},
		"grpc denied":       {err: apiError(t, status.Error(codes.PermissionDenied, "denied")), want: false},
		"http server error": {err: apiError(t, &googleapi.Error{Code: http.StatusInternalServerError}), want: false},
		"plain error":       {err: errors.New("connection reset"), want: false},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, isAPINotFound(tt.err))
		})
	}
}

func TestNewAgentAnalyzerPersona(t *testing.T) {
	client, err := legacy.NewClient(context.Background(), option.WithAPIKey("test-key"))
	require.NoError(t, err)
	defer client.Close()

	prompts, err := NewPromptBuilder(cloud.PromptTemplates{})
	require.NoError(t, err)
	agent := cloud.NewConfig().GetAgentModel()

	a := NewAgentAnalyzer(client, agent, prompts)

	assert.Equal(t, cloud.TransportAgent, a.Transport())
	assert.Equal(t, UploadThenPoll, a.Mode())
	require.NotNil(t, a.model.SystemInstruction)
	require.Len(t, a.model.SystemInstruction.Parts, 1)
	assert.Equal(t, legacy.Text(cloud.AgentInstructions(agent)), a.model.SystemInstruction.Parts[0])
	assert.Len(t, a.model.SafetySettings, 4)
	assert.NoError(t, a.ReleaseMedia(context.Background(), nil))
}
