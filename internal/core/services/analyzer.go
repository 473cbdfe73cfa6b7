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
// This file defines RemoteAnalyzer, the capability shared by every transport
// to the hosted model, and the factory that picks one from configuration.
//
// Transports:
//   - genai: Gemini Files API upload, status polling, generation.
//   - agent: the same flow on the generative-ai-go SDK with an agent persona.
//   - vertex: media staged in Cloud Storage, generation on Vertex AI.
//   - rest: a single text-only request; the media never reaches the model.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// SubmissionMode tells the pipeline how media reaches the model.
type SubmissionMode int

const (
	// UploadThenPoll uploads the media and waits for it to become ready.
	UploadThenPoll SubmissionMode = iota
	// SingleShot sends only text; answers are degraded.
	SingleShot
)

func (m SubmissionMode) String() string {
	switch m {
	case UploadThenPoll:
		return "upload-then-poll"
	case SingleShot:
		return "single-shot"
	default:
		return fmt.Sprintf("SubmissionMode(%d)", int(m))
	}
}

// RemoteAnalyzer is the client of the hosted analysis service. Every error
// returned is a *model.AnalysisError.
type RemoteAnalyzer interface {
	// Transport returns the configured transport name.
	Transport() string

	// Mode returns how media reaches the model.
	Mode() SubmissionMode

	// SubmitMedia uploads the file behind handle and returns its reference
	// in state PROCESSING or READY.
	SubmitMedia(ctx context.Context, handle *model.TemporaryFileHandle) (*model.RemoteMediaReference, error)

	// FetchMedia re-reads the state of ref by name.
	FetchMedia(ctx context.Context, ref *model.RemoteMediaReference) (*model.RemoteMediaReference, error)

	// Generate answers request.Query about request.Media.
	Generate(ctx context.Context, request *model.AnalysisRequest) (string, error)

	// ReleaseMedia deletes the remote copy. Missing media is not an error.
	ReleaseMedia(ctx context.Context, ref *model.RemoteMediaReference) error
}

// NewRemoteAnalyzer returns the analyzer for config.Application.Transport.
func NewRemoteAnalyzer(config *cloud.Config, clients *cloud.ServiceClients) (RemoteAnalyzer, error) {
	prompts, err := NewPromptBuilder(config.PromptTemplates)
	if err != nil {
		return nil, err
	}
	agent := config.GetAgentModel()
	// Only the genai request config carries the Google Search tool.
	transport := config.Application.Transport
	prompts.WithWebSearch(agent.EnableGoogle && (transport == cloud.TransportGenAI || transport == cloud.TransportVertex))

	switch transport {
	case cloud.TransportGenAI:
		if clients.GenAIClient == nil || clients.AgentModel == nil {
			return nil, errors.New("genai transport requires a genai client")
		}
		return NewGenAIAnalyzer(clients.GenAIClient.Files, clients.AgentModel, prompts), nil
	case cloud.TransportAgent:
		if clients.LegacyClient == nil {
			return nil, errors.New("agent transport requires a generative-ai-go client")
		}
		return NewAgentAnalyzer(clients.LegacyClient, agent, prompts), nil
	case cloud.TransportVertex:
		if clients.StorageClient == nil || clients.AgentModel == nil {
			return nil, errors.New("vertex transport requires storage and genai clients")
		}
		return NewVertexAnalyzer(clients.StorageClient, config.Storage, clients.AgentModel, prompts), nil
	case cloud.TransportREST:
		return NewRestAnalyzer(clients.HTTPClient, config.Rest.BaseURL, agent.Model, config.Application.APIKey, prompts), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", config.Application.Transport)
	}
}

// classifyGenerateError maps generation errors to the error taxonomy: blocked
// or empty responses are content errors, everything else is a call failure.
func classifyGenerateError(op string, err error) *model.AnalysisError {
	var ae *model.AnalysisError
	if errors.As(err, &ae) {
		return ae
	}
	var blocked *cloud.ContentBlockedError
	if errors.As(err, &blocked) || errors.Is(err, cloud.ErrEmptyResponse) {
		return model.NewError(model.KindRemoteContentError, op, "", err)
	}
	return model.NewError(model.KindRemoteCallFailure, op, "", err)
}
