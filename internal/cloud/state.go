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

// Package cloud provides components for interacting with Google Cloud services.
// This file creates the clients the configured transport needs and bundles
// them in ServiceClients, which is passed to the analyzers at startup.
//
// Logic Flow:
//  1. NewCloudServiceClients is called once from main with the loaded config.
//  2. An HTTP client instrumented with otelhttp is always created.
//  3. Depending on application.transport, the genai client (Gemini API or
//     Vertex backend), the legacy generative-ai-go client, or the storage
//     client is created. Clients a transport does not use stay nil.
//  4. For the SDK transports the agent model is wrapped in a rate limiter.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	legacy "github.com/google/generative-ai-go/genai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/api/option"
	"google.golang.org/genai"
)

// MarkdownInstruction is appended to the system instruction of agents that
// answer in Markdown.
const MarkdownInstruction = "Format every answer as Markdown."

// DefaultAgentInstruction is the persona used when an agent model has a name
// but no system instructions of its own.
const DefaultAgentInstruction = "You are %s, an assistant that answers questions about the content and context of uploaded videos."

// ServiceClients holds the connections to external services.
type ServiceClients struct {
	HTTPClient    *http.Client                 // Instrumented client for the REST transport.
	GenAIClient   *genai.Client                // Gemini API or Vertex AI client.
	LegacyClient  *legacy.Client               // generative-ai-go client for the agent transport.
	StorageClient *storage.Client              // Staging bucket access for the vertex transport.
	AgentModel    *QuotaAwareGenerativeAIModel // Rate-limited model used by the genai and vertex transports.
}

// Close releases the clients that hold connections.
func (c *ServiceClients) Close() error {
	var errs []error
	if c.LegacyClient != nil {
		errs = append(errs, c.LegacyClient.Close())
	}
	if c.StorageClient != nil {
		errs = append(errs, c.StorageClient.Close())
	}
	if c.HTTPClient != nil {
		c.HTTPClient.CloseIdleConnections()
	}
	return errors.Join(errs...)
}

// NewInstrumentedHTTPClient returns an http.Client whose requests are traced.
func NewInstrumentedHTTPClient(config *Config) *http.Client {
	timeout := config.Rest.TimeoutInSeconds
	client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	if timeout > 0 {
		client.Timeout = time.Duration(timeout) * time.Second
	}
	return client
}

// NewCloudServiceClients creates the clients required by the configured transport.
func NewCloudServiceClients(ctx context.Context, config *Config) (*ServiceClients, error) {
	clients := &ServiceClients{HTTPClient: NewInstrumentedHTTPClient(config)}
	agent := config.GetAgentModel()

	switch config.Application.Transport {
	case TransportGenAI:
		gc, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:     config.Application.APIKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: clients.HTTPClient,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating genai client: %w", err)
		}
		clients.GenAIClient = gc
		clients.AgentModel = NewQuotaAwareModel(NewGenerateContentConfig(agent), agent.Model, gc.Models, agent.RateLimit)

	case TransportVertex:
		gc, err := genai.NewClient(ctx, &genai.ClientConfig{
			Project:  config.Application.GoogleProjectId,
			Location: config.Application.GoogleLocation,
			Backend:  genai.BackendVertexAI,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating vertex genai client: %w", err)
		}
		sc, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("error creating storage client: %w", err)
		}
		clients.GenAIClient = gc
		clients.StorageClient = sc
		clients.AgentModel = NewQuotaAwareModel(NewGenerateContentConfig(agent), agent.Model, gc.Models, agent.RateLimit)

	case TransportAgent:
		lc, err := legacy.NewClient(ctx, option.WithAPIKey(config.Application.APIKey))
		if err != nil {
			return nil, fmt.Errorf("error creating generative-ai-go client: %w", err)
		}
		clients.LegacyClient = lc

	case TransportREST:
		// The REST transport only needs the HTTP client.

	default:
		return nil, fmt.Errorf("unknown transport %q", config.Application.Transport)
	}

	slog.Info("cloud clients created",
		"transport", config.Application.Transport,
		"model", agent.Model,
		"agent", agent.Name)
	return clients, nil
}

// AgentInstructions returns the system instruction for an agent model: its
// own instructions, or the persona built from its name, plus the Markdown
// instruction when asked for. Every SDK transport uses it.
func AgentInstructions(values VertexAiLLMModel) string {
	instructions := values.SystemInstructions
	if instructions == "" && values.Name != "" {
		instructions = fmt.Sprintf(DefaultAgentInstruction, values.Name)
	}
	if values.Markdown {
		if instructions != "" {
			instructions += "\n"
		}
		instructions += MarkdownInstruction
	}
	return instructions
}

// NewGenerateContentConfig maps an agent model onto the genai request config.
func NewGenerateContentConfig(values VertexAiLLMModel) *genai.GenerateContentConfig {
	instructions := AgentInstructions(values)

	config := &genai.GenerateContentConfig{
		MaxOutputTokens:  values.MaxTokens,
		SafetySettings:   DefaultSafetySettings,
		ResponseMIMEType: values.OutputFormat,
		Tools:            []*genai.Tool{},
	}
	if values.Temperature > 0 {
		config.Temperature = genai.Ptr[float32](values.Temperature)
	}
	if values.TopP > 0 {
		config.TopP = genai.Ptr[float32](values.TopP)
	}
	if values.TopK > 0 {
		config.TopK = genai.Ptr[float32](values.TopK)
	}
	if instructions != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: instructions}}}
	}
	if values.EnableGoogle {
		config.Tools = append(config.Tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
	}
	return config
}
