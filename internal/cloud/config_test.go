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

// Package cloud_test covers configuration loading and the startup checks.
package cloud_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zeebo/assert"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	assert.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

// TestLoadConfigLayers checks that the runtime file overrides the base file
// and that keys absent from both keep their defaults.
func TestLoadConfigLayers(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env.toml", `
[application]
name = "from-base"
transport = "rest"

[media]
max_poll_attempts = 10
`)
	writeFile(t, dir, ".env.unit.toml", `
[media]
max_poll_attempts = 12
poll_interval_in_seconds = 0.5
`)
	t.Setenv(cloud.EnvConfigFilePrefix, dir)
	t.Setenv(cloud.EnvConfigRuntime, "unit")

	config := cloud.NewConfig()
	assert.NoError(t, cloud.LoadConfig(config))

	assert.Equal(t, "from-base", config.Application.Name)
	assert.Equal(t, cloud.TransportREST, config.Application.Transport)
	assert.Equal(t, 12, config.Media.MaxPollAttempts)
	assert.Equal(t, 500*time.Millisecond, config.Media.PollInterval())
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "GOOGLE_API_KEY", config.Application.APIKeyEnv)
}

func TestLoadConfigMissingFilesKeepDefaults(t *testing.T) {
	t.Setenv(cloud.EnvConfigFilePrefix, t.TempDir())
	t.Setenv(cloud.EnvConfigRuntime, "absent")

	config := cloud.NewConfig()
	assert.NoError(t, cloud.LoadConfig(config))
	assert.DeepEqual(t, cloud.NewConfig(), config)
}

func TestLoadConfigMalformedFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env.toml", "[application\nname = ")
	t.Setenv(cloud.EnvConfigFilePrefix, dir)

	assert.Error(t, cloud.LoadConfig(cloud.NewConfig()))
}

func TestResolveCredentials(t *testing.T) {
	t.Run("reads the named variable", func(t *testing.T) {
		t.Setenv("VIDEO_INSIGHTS_KEY", "secret")
		config := cloud.NewConfig()
		config.Application.APIKeyEnv = "VIDEO_INSIGHTS_KEY"

		assert.NoError(t, cloud.ResolveCredentials(config))
		assert.Equal(t, "secret", config.Application.APIKey)
	})

	t.Run("missing key is an error", func(t *testing.T) {
		t.Setenv("VIDEO_INSIGHTS_KEY", "")
		config := cloud.NewConfig()
		config.Application.APIKeyEnv = "VIDEO_INSIGHTS_KEY"

		assert.Error(t, cloud.ResolveCredentials(config))
	})

	t.Run("vertex uses default credentials", func(t *testing.T) {
		t.Setenv("VIDEO_INSIGHTS_KEY", "")
		config := cloud.NewConfig()
		config.Application.APIKeyEnv = "VIDEO_INSIGHTS_KEY"
		config.Application.Transport = cloud.TransportVertex

		assert.NoError(t, cloud.ResolveCredentials(config))
		assert.Equal(t, "", config.Application.APIKey)
	})
}

func TestValidate(t *testing.T) {
	assert.NoError(t, cloud.NewConfig().Validate())

	tests := map[string]func(c *cloud.Config){
		"unknown transport":   func(c *cloud.Config) { c.Application.Transport = "carrier-pigeon" },
		"vertex needs bucket": func(c *cloud.Config) { c.Application.Transport = cloud.TransportVertex; c.Application.GoogleProjectId = "p" },
		"no polls":            func(c *cloud.Config) { c.Media.MaxPollAttempts = 0 },
		"negative interval":   func(c *cloud.Config) { c.Media.PollIntervalInSeconds = -1 },
		"no formats":          func(c *cloud.Config) { c.Media.AcceptedFormats = nil },
		"unknown format":      func(c *cloud.Config) { c.Media.AcceptedFormats = []string{"mp4", "mkv"} },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			config := cloud.NewConfig()
			mutate(config)
			assert.Error(t, config.Validate())
		})
	}
}

func TestAcceptedFormats(t *testing.T) {
	config := cloud.NewConfig()
	config.Media.AcceptedFormats = []string{".MP4", "webm", "avi"}

	assert.DeepEqual(t, []model.MediaFormat{model.FormatMP4, model.FormatAVI}, config.AcceptedFormats())
}

func TestGetAgentModel(t *testing.T) {
	config := cloud.NewConfig()
	assert.Equal(t, "Video Summarizer Agentic AI", config.GetAgentModel().Name)

	config.Application.AgentModel = "unknown"
	m := config.GetAgentModel()
	assert.Equal(t, cloud.DefaultModel, m.Model)
	assert.Equal(t, 1, m.RateLimit)
}

func TestRequestTimeout(t *testing.T) {
	config := cloud.NewConfig()
	assert.Equal(t, 10*time.Minute, config.RequestTimeout())

	config.Application.RequestTimeoutInSeconds = 0
	assert.Equal(t, time.Duration(0), config.RequestTimeout())
}

// TestShippedConfiguration loads the files under configs/ to keep them in
// step with the Config struct.
func TestShippedConfiguration(t *testing.T) {
	t.Setenv(cloud.EnvConfigFilePrefix, filepath.Join("..", "..", "configs"))
	t.Setenv(cloud.EnvConfigRuntime, "local")

	config := cloud.NewConfig()
	assert.NoError(t, cloud.LoadConfig(config))
	assert.NoError(t, config.Validate())
	assert.Equal(t, 60, config.Media.MaxPollAttempts)
	assert.Equal(t, "app.log", config.Telemetry.LogFile)
}
