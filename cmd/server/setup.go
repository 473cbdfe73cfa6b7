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

package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jaycherian/gcp-go-video-insights/internal/api"
	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/workflow"
)

// StateManager holds the process-wide objects built at startup.
type StateManager struct {
	config  *cloud.Config
	cloud   *cloud.ServiceClients
	handler *api.Handler
}

var state = &StateManager{}

// Close releases the cloud clients.
func (s *StateManager) Close() {
	if s.cloud == nil {
		return
	}
	if err := s.cloud.Close(); err != nil {
		slog.Warn("failed to close cloud clients", "error", err)
	}
}

// SetupOS defaults the configuration directory and runtime when the
// environment does not set them.
func SetupOS() (err error) {
	if os.Getenv(cloud.EnvConfigFilePrefix) == "" {
		if err = os.Setenv(cloud.EnvConfigFilePrefix, "configs"); err != nil {
			return err
		}
	}
	if os.Getenv(cloud.EnvConfigRuntime) == "" {
		err = os.Setenv(cloud.EnvConfigRuntime, "local")
	}
	return err
}

// GetConfig loads, resolves and validates the configuration once.
func GetConfig() (*cloud.Config, error) {
	if state.config != nil {
		return state.config, nil
	}
	if err := SetupOS(); err != nil {
		return nil, err
	}
	config := cloud.NewConfig()
	if err := cloud.LoadConfig(config); err != nil {
		return nil, err
	}
	if err := cloud.ResolveCredentials(config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	state.config = config
	return config, nil
}

// InitState creates the clients, the analyzer, the workflow and the handler.
func InitState(ctx context.Context, config *cloud.Config) error {
	cloudClients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		return err
	}
	state.cloud = cloudClients

	analyzer, err := services.NewRemoteAnalyzer(config, cloudClients)
	if err != nil {
		return err
	}
	if analyzer.Mode() == services.SingleShot {
		slog.Warn("single-shot transport: the video is not sent to the model and answers are degraded",
			"transport", analyzer.Transport())
	}

	store := services.NewTempMediaStore(config.Media.TempDir, config.Media.TempFilePrefix)
	flow := workflow.NewVideoAnalysisWorkflow(store, analyzer, workflow.Options{
		PollInterval:   config.Media.PollInterval(),
		MaxPolls:       config.Media.MaxPollAttempts,
		RequestTimeout: config.RequestTimeout(),
	})

	state.handler = &api.Handler{
		Workflow:       flow,
		Formats:        config.AcceptedFormats(),
		MaxUploadBytes: int64(config.Server.MaxUploadMB) << 20,
		Stats:          api.NewStats(),
	}
	return nil
}
