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

// Package cloud provides configuration loading and helpers around the Gemini
// SDK. This file contains:
//   - LoadConfig: layered TOML loading (base file, then a runtime override).
//   - ResolveCredentials / Validate: startup checks on the loaded config.
//   - GenerateMultiModalResponse: a retrying generation call that records token
//     usage and flattens the response into text.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/genai"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

const (
	ConfigFileBaseName  = ".env"              // Base name of configuration files (".env.toml").
	ConfigFileExtension = ".toml"             // Extension of configuration files.
	ConfigSeparator     = "."                 // Separator in runtime file names (".env.local.toml").
	EnvConfigFilePrefix = "GCP_CONFIG_PREFIX" // Directory holding the configuration files.
	EnvConfigRuntime    = "GCP_RUNTIME"       // Runtime name selecting the override file.
	MaxRetries          = 3                   // Retries of a failed generation call.
)

func fileExists(in string) bool {
	_, err := os.Stat(in)
	return !errors.Is(err, os.ErrNotExist)
}

// LoadConfig decodes the base configuration file and then the runtime override
// into baseConfig. Missing files are skipped; malformed files are an error.
func LoadConfig(baseConfig interface{}) error {
	configurationFilePrefix := os.Getenv(EnvConfigFilePrefix)
	if len(configurationFilePrefix) > 0 && !strings.HasSuffix(configurationFilePrefix, string(os.PathSeparator)) {
		configurationFilePrefix = configurationFilePrefix + string(os.PathSeparator)
	}

	runtimeEnvironment := os.Getenv(EnvConfigRuntime)
	if runtimeEnvironment == "" {
		runtimeEnvironment = "test"
	}

	baseConfigFileName := configurationFilePrefix + ConfigFileBaseName + ConfigFileExtension
	envConfigFileName := configurationFilePrefix + ConfigFileBaseName + ConfigSeparator + runtimeEnvironment + ConfigFileExtension

	for _, name := range []string{baseConfigFileName, envConfigFileName} {
		if !fileExists(name) {
			slog.Debug("configuration file not found, skipping", "file", name)
			continue
		}
		if _, err := toml.DecodeFile(name, baseConfig); err != nil {
			return fmt.Errorf("failed to decode configuration file %s: %w", name, err)
		}
		slog.Info("loaded configuration file", "file", name)
	}
	return nil
}

// transportNeedsAPIKey reports whether the transport authenticates with an API
// key rather than application default credentials.
func transportNeedsAPIKey(transport string) bool {
	return transport != TransportVertex
}

// ResolveCredentials copies the API key from the environment into the config.
// The key is process-wide and read once; everything downstream receives it
// through the Config value.
func ResolveCredentials(config *Config) error {
	if config.Application.APIKey != "" {
		return nil
	}
	name := config.Application.APIKeyEnv
	if name == "" {
		name = "GOOGLE_API_KEY"
	}
	config.Application.APIKey = os.Getenv(name)
	if config.Application.APIKey == "" && transportNeedsAPIKey(config.Application.Transport) {
		return fmt.Errorf("missing API key: set %s for the %q transport", name, config.Application.Transport)
	}
	return nil
}

// Validate checks the settings every component relies on.
func (c *Config) Validate() error {
	var errs []error
	known := []string{TransportGenAI, TransportAgent, TransportVertex, TransportREST}
	if !slices.Contains(known, c.Application.Transport) {
		errs = append(errs, fmt.Errorf("unknown transport %q, expected one of %v", c.Application.Transport, known))
	}
	if c.Application.Transport == TransportVertex {
		if c.Application.GoogleProjectId == "" {
			errs = append(errs, errors.New("vertex transport requires application.google_project_id"))
		}
		if c.Storage.StagingBucket == "" {
			errs = append(errs, errors.New("vertex transport requires storage.staging_bucket"))
		}
	}
	if c.Media.MaxPollAttempts <= 0 {
		errs = append(errs, errors.New("media.max_poll_attempts must be positive"))
	}
	if c.Media.PollIntervalInSeconds < 0 {
		errs = append(errs, errors.New("media.poll_interval_in_seconds must not be negative"))
	}
	if len(c.Media.AcceptedFormats) == 0 {
		errs = append(errs, errors.New("media.accepted_formats must not be empty"))
	}
	for _, f := range c.Media.AcceptedFormats {
		if _, err := model.ParseMediaFormat(f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AcceptedFormats returns the configured formats as MediaFormat values,
// skipping anything unknown.
func (c *Config) AcceptedFormats() []model.MediaFormat {
	out := make([]model.MediaFormat, 0, len(c.Media.AcceptedFormats))
	for _, f := range c.Media.AcceptedFormats {
		if mf, err := model.ParseMediaFormat(f); err == nil {
			out = append(out, mf)
		}
	}
	return out
}

// ContentBlockedError reports a response that carries no usable text because
// the service refused or stopped generation.
type ContentBlockedError struct {
	Reason  string
	Message string
}

func (e *ContentBlockedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("content blocked (%s): %s", e.Reason, e.Message)
	}
	return fmt.Sprintf("content blocked (%s)", e.Reason)
}

// ErrEmptyResponse is returned when a response has no candidate text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// ContentGenerator is the subset of the model wrapper used for generation.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, content []*genai.Content) (*genai.GenerateContentResponse, error)
}

// GenerateMultiModalResponse sends content to the model, retrying transport
// failures up to MaxRetries times, and returns the concatenated candidate text.
// A blocked prompt or blocked candidate is returned as *ContentBlockedError and
// is not retried.
func GenerateMultiModalResponse(
	ctx context.Context,
	inputTokenCounter metric.Int64Counter,
	outputTokenCounter metric.Int64Counter,
	retryCounter metric.Int64Counter,
	tryCount int,
	generator ContentGenerator,
	content []*genai.Content) (value string, err error) {
	resp, err := generator.GenerateContent(ctx, content)
	if err != nil {
		if tryCount < MaxRetries && ctx.Err() == nil {
			retryCounter.Add(ctx, 1)
			slog.WarnContext(ctx, "retrying generation", "attempt", tryCount+1, "error", err)
			return GenerateMultiModalResponse(ctx, inputTokenCounter, outputTokenCounter, retryCounter, tryCount+1, generator, content)
		}
		return "", err
	}
	if resp.UsageMetadata != nil {
		inputTokenCounter.Add(ctx, int64(resp.UsageMetadata.PromptTokenCount))
		outputTokenCounter.Add(ctx, int64(resp.UsageMetadata.CandidatesTokenCount))
	}
	return ResponseText(resp)
}

// ResponseText flattens a response into its candidate text.
func ResponseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", ErrEmptyResponse
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return "", &ContentBlockedError{Reason: string(fb.BlockReason), Message: fb.BlockReasonMessage}
	}
	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil {
			continue
		}
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if part != nil {
					sb.WriteString(part.Text)
				}
			}
		}
		if sb.Len() == 0 && candidate.FinishReason == genai.FinishReasonSafety {
			return "", &ContentBlockedError{Reason: string(candidate.FinishReason), Message: candidate.FinishMessage}
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}
