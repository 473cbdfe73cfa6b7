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

// Package commands provides the concrete implementations of the Chain of
// Responsibility (COR) pattern's Command interface. This file defines the
// command that submits the temporary file to the remote analysis service.
//
// The returned reference may still be PROCESSING; MediaAwait waits for it.
// Deleting the remote copy is registered as a cleanup that runs on a context
// detached from the request, so a cancelled request still removes its upload.
package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
)

// DefaultReleaseTimeout bounds remote deletion during cleanup.
const DefaultReleaseTimeout = 30 * time.Second

// MediaUpload submits a local file to the remote analyzer.
type MediaUpload struct {
	cor.BaseCommand
	analyzer       services.RemoteAnalyzer
	releaseTimeout time.Duration
}

// NewMediaUpload is the constructor for the MediaUpload command.
func NewMediaUpload(name string, analyzer services.RemoteAnalyzer, releaseTimeout time.Duration) *MediaUpload {
	if releaseTimeout <= 0 {
		releaseTimeout = DefaultReleaseTimeout
	}
	return &MediaUpload{BaseCommand: *cor.NewBaseCommand(name), analyzer: analyzer, releaseTimeout: releaseTimeout}
}

// Execute uploads the file and registers the remote release.
func (v *MediaUpload) Execute(ctx cor.Context) {
	handle, ok := ctx.Get(v.GetInputParam()).(*model.TemporaryFileHandle)
	if !ok {
		v.Fail(ctx, model.NewError(model.KindIOFailure, v.GetName(), "no temporary file in context", nil))
		return
	}

	ref, err := v.analyzer.SubmitMedia(ctx.GetContext(), handle)
	if err != nil {
		v.Fail(ctx, err)
		return
	}

	detached := context.WithoutCancel(ctx.GetContext())
	ctx.AddCleanup(v.GetName(), func() error {
		releaseCtx, cancel := context.WithTimeout(detached, v.releaseTimeout)
		defer cancel()
		return v.analyzer.ReleaseMedia(releaseCtx, ref)
	})

	v.Succeed(ctx)
	slog.InfoContext(ctx.GetContext(), "media submitted",
		"transport", v.analyzer.Transport(),
		"name", ref.Name,
		"state", ref.State,
		"degraded", ref.Degraded)
	ctx.Add(ParamRemoteMedia, ref)
	ctx.Add(v.GetOutputParam(), ref)
}
