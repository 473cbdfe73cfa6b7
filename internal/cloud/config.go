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

// Package cloud defines the application configuration, loaded from TOML files,
// and the clients used to reach the hosted Gemini model.
//
// Structs:
//   - Application: service name, project, transport selection and credentials.
//   - Server: HTTP listener settings for the presentation adapter.
//   - Media: temporary storage and polling settings.
//   - Storage: GCS staging bucket used by the Vertex transport.
//   - Rest: endpoint settings for the single-shot REST transport.
//   - Telemetry: logging and OpenTelemetry export settings.
//   - PromptTemplates: Go templates for the prompts sent to the model.
//   - VertexAiLLMModel: per-agent model parameters.
//   - Config: the root of the configuration tree.
package cloud

import (
	"time"

	"google.golang.org/genai"
)

// Transport names accepted in application.transport.
const (
	TransportGenAI  = "genai"
	TransportAgent  = "agent"
	TransportVertex = "vertex"
	TransportREST   = "rest"
)

// DefaultModel is the model used when an agent model does not name one.
const DefaultModel = "gemini-2.0-flash-exp"

// DefaultAnalysisPrompt asks the model to answer the user's question from the
// video content. Web research is only requested when a search tool is attached.
const DefaultAnalysisPrompt = `Analyze the uploaded video for content and context.
Respond to the following query using video insights{{if .WebSearch}} and supplementary web research{{end}}:
{{.Query}}

Provide a detailed, user-friendly, and actionable response.`

// DefaultSingleShotPrompt is used when the transport cannot send the media; the
// model only learns the file name.
const DefaultSingleShotPrompt = `A user uploaded a video file named "{{.MediaName}}" ({{.MIMEType}}).
The video content itself is not available to you. Answer the following query as well as
possible from the file name and general knowledge, and state clearly that the video was not viewed:
{{.Query}}`

// DefaultSafetySettings leaves every harm category unblocked; uploads come from
// the operator's own users and answers are advisory.
var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
}

// Application holds general application settings.
type Application struct {
	Name                    string `toml:"name"`                       // Service name reported to telemetry.
	GoogleProjectId         string `toml:"google_project_id"`          // Google Cloud project (Vertex transport, exporters).
	GoogleLocation          string `toml:"location"`                   // Google Cloud location (Vertex transport).
	Transport               string `toml:"transport"`                  // One of genai, agent, vertex, rest.
	AgentModel              string `toml:"agent_model"`                // Key into AgentModels used for generation.
	APIKeyEnv               string `toml:"api_key_env"`                // Environment variable holding the API key.
	RequestTimeoutInSeconds int    `toml:"request_timeout_in_seconds"` // Upper bound for one request, 0 for none.

	// APIKey is resolved from APIKeyEnv at startup and never read from files.
	APIKey string `toml:"-"`
}

// Server holds the HTTP listener settings.
type Server struct {
	Port        int `toml:"port"`
	MaxUploadMB int `toml:"max_upload_mb"`
}

// Media holds temporary storage and polling settings.
type Media struct {
	TempDir               string   `toml:"temp_dir"`                 // Directory for temporary copies; empty for os.TempDir.
	TempFilePrefix        string   `toml:"temp_file_prefix"`         // Prefix of temporary file names.
	AcceptedFormats       []string `toml:"accepted_formats"`         // Container extensions accepted from users.
	PollIntervalInSeconds float64  `toml:"poll_interval_in_seconds"` // Wait between status checks.
	MaxPollAttempts       int      `toml:"max_poll_attempts"`        // Status re-fetches before giving up.
}

// PollInterval returns the configured interval as a duration.
func (m Media) PollInterval() time.Duration {
	return time.Duration(m.PollIntervalInSeconds * float64(time.Second))
}

// Storage represents the configuration for the staging bucket.
type Storage struct {
	StagingBucket string `toml:"staging_bucket"` // Bucket that holds uploads for the Vertex transport.
	StagingPrefix string `toml:"staging_prefix"` // Object name prefix inside the bucket.
}

// Rest holds settings for the single-shot REST transport.
type Rest struct {
	BaseURL          string `toml:"base_url"`
	TimeoutInSeconds int    `toml:"timeout_in_seconds"`
}

// Telemetry holds logging and export settings.
type Telemetry struct {
	Enabled bool   `toml:"enabled"`  // Export traces and metrics to Google Cloud.
	LogFile string `toml:"log_file"` // Optional file that receives a copy of the logs.
}

// PromptTemplates holds the Go templates for prompts.
type PromptTemplates struct {
	AnalysisPrompt   string `toml:"analysis"`
	SingleShotPrompt string `toml:"single_shot"`
}

// VertexAiLLMModel represents the configuration of a generative model persona.
type VertexAiLLMModel struct {
	Name               string  `toml:"name"`                // Display name of the agent persona.
	Model              string  `toml:"model"`               // Model id, e.g. gemini-2.0-flash-exp.
	SystemInstructions string  `toml:"system_instructions"` // System instructions for the model.
	Temperature        float32 `toml:"temperature"`
	TopP               float32 `toml:"top_p"`
	TopK               float32 `toml:"top_k"`
	MaxTokens          int32   `toml:"max_tokens"`
	OutputFormat       string  `toml:"output_format"` // Response MIME type, e.g. text/plain.
	Markdown           bool    `toml:"markdown"`      // Ask for Markdown formatted answers.
	EnableGoogle       bool    `toml:"enable_google"` // Ground answers with Google Search.
	RateLimit          int     `toml:"rate_limit"`    // Requests per second.
}

// Config is the root of the configuration tree.
type Config struct {
	Application     Application                 `toml:"application"`
	Server          Server                      `toml:"server"`
	Media           Media                       `toml:"media"`
	Storage         Storage                     `toml:"storage"`
	Rest            Rest                        `toml:"rest"`
	Telemetry       Telemetry                   `toml:"telemetry"`
	PromptTemplates PromptTemplates             `toml:"prompt_templates"`
	AgentModels     map[string]VertexAiLLMModel `toml:"agent_models"`
}

// NewConfig returns a Config populated with defaults. Values decoded from TOML
// files overwrite these.
func NewConfig() *Config {
	return &Config{
		Application: Application{
			Name:                    "video-insights",
			GoogleLocation:          "us-central1",
			Transport:               TransportGenAI,
			AgentModel:              "video-analyst",
			APIKeyEnv:               "GOOGLE_API_KEY",
			RequestTimeoutInSeconds: 600,
		},
		Server: Server{Port: 8080, MaxUploadMB: 200},
		Media: Media{
			TempFilePrefix:        "video-upload-",
			AcceptedFormats:       []string{"mp4", "mov", "avi"},
			PollIntervalInSeconds: 1,
			MaxPollAttempts:       30,
		},
		Storage: Storage{StagingPrefix: "video-insights/"},
		Rest: Rest{
			BaseURL:          "https://generativelanguage.googleapis.com/v1beta",
			TimeoutInSeconds: 120,
		},
		PromptTemplates: PromptTemplates{
			AnalysisPrompt:   DefaultAnalysisPrompt,
			SingleShotPrompt: DefaultSingleShotPrompt,
		},
		AgentModels: map[string]VertexAiLLMModel{
			"video-analyst": {
				Name:         "Video Summarizer Agentic AI",
				Model:        DefaultModel,
				Temperature:  0.4,
				TopP:         0.95,
				TopK:         40,
				MaxTokens:    8192,
				OutputFormat: "text/plain",
				Markdown:     true,
				EnableGoogle: true,
				RateLimit:    5,
			},
		},
	}
}

// GetAgentModel returns the model configured for generation, falling back to
// DefaultModel when the key is missing.
func (c *Config) GetAgentModel() VertexAiLLMModel {
	m, ok := c.AgentModels[c.Application.AgentModel]
	if !ok {
		m = VertexAiLLMModel{Name: c.Application.AgentModel, RateLimit: 1}
	}
	if m.Model == "" {
		m.Model = DefaultModel
	}
	if m.RateLimit <= 0 {
		m.RateLimit = 1
	}
	return m
}

// RequestTimeout returns the per-request timeout; zero means none.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Application.RequestTimeoutInSeconds) * time.Second
}
