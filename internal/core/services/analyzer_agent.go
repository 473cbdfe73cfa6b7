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

// Package services contains the components that talk to the outside world.
// This file implements the agent transport on the generative-ai-go SDK. The
// model is configured as a named persona with its own system instruction and
// answers in Markdown when the agent asks for it.
package services

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	legacy "github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/codes"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// AgentAnalyzer is the upload-then-poll transport on generative-ai-go.
type AgentAnalyzer struct {
	client   *legacy.Client
	model    *legacy.GenerativeModel
	limiter  *rate.Limiter
	prompts  *PromptBuilder
	counters geminiCounters
}

// NewAgentAnalyzer configures the agent persona on client.
func NewAgentAnalyzer(client *legacy.Client, agent cloud.VertexAiLLMModel, prompts *PromptBuilder) *AgentAnalyzer {
	m := client.GenerativeModel(agent.Model)
	m.SystemInstruction = &legacy.Content{Parts: []legacy.Part{legacy.Text(cloud.AgentInstructions(agent))}}
	if agent.Temperature > 0 {
		m.SetTemperature(agent.Temperature)
	}
	if agent.TopP > 0 {
		m.SetTopP(agent.TopP)
	}
	if agent.TopK > 0 {
		m.SetTopK(int32(agent.TopK))
	}
	if agent.MaxTokens > 0 {
		m.SetMaxOutputTokens(agent.MaxTokens)
	}
	m.ResponseMIMEType = agent.OutputFormat
	m.SafetySettings = []*legacy.SafetySetting{
		{Category: legacy.HarmCategoryDangerousContent, Threshold: legacy.HarmBlockNone},
		{Category: legacy.HarmCategoryHarassment, Threshold: legacy.HarmBlockNone},
		{Category: legacy.HarmCategoryHateSpeech, Threshold: legacy.HarmBlockNone},
		{Category: legacy.HarmCategorySexuallyExplicit, Threshold: legacy.HarmBlockNone},
	}

	return &AgentAnalyzer{
		client:   client,
		model:    m,
		limiter:  rate.NewLimiter(rate.Every(time.Second/time.Duration(agent.RateLimit)), agent.RateLimit),
		prompts:  prompts,
		counters: newGeminiCounters(cloud.TransportAgent),
	}
}

func (a *AgentAnalyzer) Transport() string    { return cloud.TransportAgent }
func (a *AgentAnalyzer) Mode() SubmissionMode { return UploadThenPoll }

func (a *AgentAnalyzer) SubmitMedia(ctx context.Context, handle *model.TemporaryFileHandle) (*model.RemoteMediaReference, error) {
	file, err := a.client.UploadFileFromPath(ctx, handle.Path, &legacy.UploadFileOptions{
		DisplayName: handle.DisplayName,
		MIMEType:    handle.MIMEType,
	})
	if err != nil {
		return nil, model.NewError(model.KindRemoteCallFailure, "submit_media", "", err)
	}
	return referenceFromLegacyFile(file, handle.DisplayName), nil
}

func (a *AgentAnalyzer) FetchMedia(ctx context.Context, ref *model.RemoteMediaReference) (*model.RemoteMediaReference, error) {
	file, err := a.client.GetFile(ctx, ref.Name)
	if err != nil {
		return nil, model.NewError(model.KindRemoteCallFailure, "fetch_media", "", err)
	}
	return referenceFromLegacyFile(file, ref.DisplayName), nil
}

// Generate asks the agent about the uploaded file, retrying transport errors
// up to cloud.MaxRetries times.
func (a *AgentAnalyzer) Generate(ctx context.Context, request *model.AnalysisRequest) (string, error) {
	const op = "generate"
	prompt, err := a.prompts.Analysis(request)
	if err != nil {
		return "", model.NewError(model.KindRemoteCallFailure, op, "", err)
	}
	parts := []legacy.Part{
		legacy.FileData{URI: request.Media.URI, MIMEType: request.Media.MIMEType},
		legacy.Text(prompt),
	}

	var resp *legacy.GenerateContentResponse
	for try := 0; ; try++ {
		if err = a.limiter.Wait(ctx); err != nil {
			return "", model.NewError(model.KindRemoteCallFailure, op, "", err)
		}
		resp, err = a.model.GenerateContent(ctx, parts...)
		if err == nil || try >= cloud.MaxRetries || ctx.Err() != nil {
			break
		}
		a.counters.retry.Add(ctx, 1)
		slog.WarnContext(ctx, "retrying agent generation", "attempt", try+1, "error", err)
	}
	if err != nil {
		return "", model.NewError(model.KindRemoteCallFailure, op, "", err)
	}
	if resp.UsageMetadata != nil {
		a.counters.input.Add(ctx, int64(resp.UsageMetadata.PromptTokenCount))
		a.counters.output.Add(ctx, int64(resp.UsageMetadata.CandidatesTokenCount))
	}
	out, err := legacyResponseText(resp)
	if err != nil {
		return "", classifyGenerateError(op, err)
	}
	return out, nil
}

func (a *AgentAnalyzer) ReleaseMedia(ctx context.Context, ref *model.RemoteMediaReference) error {
	if ref == nil || ref.Name == "" {
		return nil
	}
	if err := a.client.DeleteFile(ctx, ref.Name); err != nil && !isAPINotFound(err) {
		return model.NewError(model.KindRemoteCallFailure, "release_media", "", err)
	}
	return nil
}

// legacyResponseText concatenates the text parts of every candidate.
func legacyResponseText(resp *legacy.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", cloud.ErrEmptyResponse
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != legacy.BlockReasonUnspecified {
		return "", &cloud.ContentBlockedError{Reason: fb.BlockReason.String()}
	}
	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil {
			continue
		}
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if text, ok := part.(legacy.Text); ok {
					sb.WriteString(string(text))
				}
			}
		}
		if sb.Len() == 0 && candidate.FinishReason == legacy.FinishReasonSafety {
			return "", &cloud.ContentBlockedError{Reason: candidate.FinishReason.String()}
		}
	}
	if sb.Len() == 0 {
		return "", cloud.ErrEmptyResponse
	}
	return sb.String(), nil
}

func referenceFromLegacyFile(file *legacy.File, displayName string) *model.RemoteMediaReference {
	ref := &model.RemoteMediaReference{
		Name:        file.Name,
		DisplayName: displayName,
		URI:         file.URI,
		MIMEType:    file.MIMEType,
		State:       remoteStateFromLegacyFile(file.State),
	}
	if file.DisplayName != "" {
		ref.DisplayName = file.DisplayName
	}
	if file.Error != nil {
		ref.FailureReason = file.Error.Error()
		if st := file.Error.GRPCStatus(); st != nil && st.Message() != "" {
			ref.FailureReason = st.Message()
		}
	}
	return ref
}

func remoteStateFromLegacyFile(state legacy.FileState) model.RemoteState {
	switch state {
	case legacy.FileStateActive:
		return model.RemoteStateReady
	case legacy.FileStateFailed:
		return model.RemoteStateFailed
	default:
		return model.RemoteStateProcessing
	}
}

// isAPINotFound reports a 404 from either the REST or the gRPC surface.
func isAPINotFound(err error) bool {
	var ae *apierror.APIError
	if !errors.As(err, &ae) {
		return false
	}
	if ae.HTTPCode() == http.StatusNotFound {
		return true
	}
	return ae.GRPCStatus() != nil && ae.GRPCStatus().Code() == codes.NotFound
}
