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
// This file implements the genai transport: media is uploaded to the Gemini
// Files API, its state is polled by name, and generation references the file
// URI next to the rendered prompt.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/genai"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// FileService is the part of genai.Files used by the genai transport.
type FileService interface {
	UploadFromPath(ctx context.Context, path string, config *genai.UploadFileConfig) (*genai.File, error)
	Get(ctx context.Context, name string, config *genai.GetFileConfig) (*genai.File, error)
	Delete(ctx context.Context, name string, config *genai.DeleteFileConfig) (*genai.DeleteFileResponse, error)
}

// geminiCounters are the token and retry counters of one transport.
type geminiCounters struct {
	input  metric.Int64Counter
	output metric.Int64Counter
	retry  metric.Int64Counter
}

func newGeminiCounters(transport string) geminiCounters {
	meter := otel.Meter(cor.MeterName)
	var c geminiCounters
	c.input, _ = meter.Int64Counter(fmt.Sprintf("%s.gemini.token.input", transport))
	c.output, _ = meter.Int64Counter(fmt.Sprintf("%s.gemini.token.output", transport))
	c.retry, _ = meter.Int64Counter(fmt.Sprintf("%s.gemini.token.retry", transport))
	return c
}

// GenAIAnalyzer is the upload-then-poll transport on the Gemini Files API.
type GenAIAnalyzer struct {
	files    FileService
	model    cloud.ContentGenerator
	prompts  *PromptBuilder
	counters geminiCounters
}

// NewGenAIAnalyzer returns a genai transport.
func NewGenAIAnalyzer(files FileService, generator cloud.ContentGenerator, prompts *PromptBuilder) *GenAIAnalyzer {
	return &GenAIAnalyzer{
		files:    files,
		model:    generator,
		prompts:  prompts,
		counters: newGeminiCounters(cloud.TransportGenAI),
	}
}

func (a *GenAIAnalyzer) Transport() string    { return cloud.TransportGenAI }
func (a *GenAIAnalyzer) Mode() SubmissionMode { return UploadThenPoll }

// SubmitMedia uploads the local file to the Files API.
func (a *GenAIAnalyzer) SubmitMedia(ctx context.Context, handle *model.TemporaryFileHandle) (*model.RemoteMediaReference, error) {
	file, err := a.files.UploadFromPath(ctx, handle.Path, &genai.UploadFileConfig{
		MIMEType:    handle.MIMEType,
		DisplayName: handle.DisplayName,
	})
	if err != nil {
		return nil, model.NewError(model.KindRemoteCallFailure, "submit_media", "", err)
	}
	slog.DebugContext(ctx, "uploaded media", "name", file.Name, "state", file.State)
	return referenceFromFile(file, handle.DisplayName), nil
}

// FetchMedia re-reads the file state.
func (a *GenAIAnalyzer) FetchMedia(ctx context.Context, ref *model.RemoteMediaReference) (*model.RemoteMediaReference, error) {
	file, err := a.files.Get(ctx, ref.Name, nil)
	if err != nil {
		return nil, model.NewError(model.KindRemoteCallFailure, "fetch_media", "", err)
	}
	return referenceFromFile(file, ref.DisplayName), nil
}

// Generate sends the rendered prompt with a file-data part.
func (a *GenAIAnalyzer) Generate(ctx context.Context, request *model.AnalysisRequest) (string, error) {
	return generateWithFile(ctx, a.model, a.counters, a.prompts, request)
}

// ReleaseMedia deletes the uploaded file. A file that no longer exists is
// treated as released.
func (a *GenAIAnalyzer) ReleaseMedia(ctx context.Context, ref *model.RemoteMediaReference) error {
	if ref == nil || ref.Name == "" {
		return nil
	}
	if _, err := a.files.Delete(ctx, ref.Name, nil); err != nil && !isNotFound(err) {
		return model.NewError(model.KindRemoteCallFailure, "release_media", "", err)
	}
	return nil
}

// generateWithFile is shared by the SDK transports that send a file URI.
func generateWithFile(ctx context.Context, generator cloud.ContentGenerator, counters geminiCounters, prompts *PromptBuilder, request *model.AnalysisRequest) (string, error) {
	const op = "generate"
	prompt, err := prompts.Analysis(request)
	if err != nil {
		return "", model.NewError(model.KindRemoteCallFailure, op, "", err)
	}
	contents := []*genai.Content{
		{Parts: []*genai.Part{
			{Text: prompt},
			{FileData: &genai.FileData{
				FileURI:  request.Media.URI,
				MIMEType: request.Media.MIMEType,
			}},
		},
			Role: "user"},
	}
	out, err := cloud.GenerateMultiModalResponse(ctx, counters.input, counters.output, counters.retry, 0, generator, contents)
	if err != nil {
		return "", classifyGenerateError(op, err)
	}
	return out, nil
}

// referenceFromFile maps a Files API file onto a media reference.
func referenceFromFile(file *genai.File, displayName string) *model.RemoteMediaReference {
	ref := &model.RemoteMediaReference{
		Name:        file.Name,
		DisplayName: displayName,
		URI:         file.URI,
		MIMEType:    file.MIMEType,
		State:       remoteStateFromFile(file.State),
	}
	if file.DisplayName != "" {
		ref.DisplayName = file.DisplayName
	}
	if file.Error != nil {
		ref.FailureReason = file.Error.Message
	}
	return ref
}

// remoteStateFromFile collapses the Files API states onto the three the
// pipeline understands. An unspecified state is still being processed.
func remoteStateFromFile(state genai.FileState) model.RemoteState {
	switch state {
	case genai.FileStateActive:
		return model.RemoteStateReady
	case genai.FileStateFailed:
		return model.RemoteStateFailed
	default:
		return model.RemoteStateProcessing
	}
}

func isNotFound(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Code == http.StatusNotFound
	}
	return false
}
