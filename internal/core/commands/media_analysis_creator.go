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
// command that asks the model the user's question about a ready reference.
package commands

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
)

// MediaAnalysisCreator generates the answer text.
type MediaAnalysisCreator struct {
	cor.BaseCommand
	analyzer services.RemoteAnalyzer
}

// NewMediaAnalysisCreator is the constructor for the MediaAnalysisCreator command.
func NewMediaAnalysisCreator(name string, analyzer services.RemoteAnalyzer) *MediaAnalysisCreator {
	return &MediaAnalysisCreator{BaseCommand: *cor.NewBaseCommand(name), analyzer: analyzer}
}

// IsExecutable additionally requires the query.
func (t *MediaAnalysisCreator) IsExecutable(chCtx cor.Context) bool {
	query, _ := chCtx.Get(ParamQuery).(string)
	return t.BaseCommand.IsExecutable(chCtx) && query != ""
}

// Execute calls the analyzer and stores the answer. A request deadline that
// expires during generation is a remote_timeout, as it is while polling.
func (t *MediaAnalysisCreator) Execute(chCtx cor.Context) {
	ref, ok := chCtx.Get(t.GetInputParam()).(*model.RemoteMediaReference)
	if !ok {
		t.Fail(chCtx, model.NewError(model.KindRemoteCallFailure, t.GetName(), "no remote media in context", nil))
		return
	}
	id, _ := chCtx.Get(ParamRequestID).(string)
	request := &model.AnalysisRequest{
		ID:    id,
		Media: ref,
		Query: chCtx.Get(ParamQuery).(string),
	}

	ctx := chCtx.GetContext()
	out, err := t.analyzer.Generate(ctx, request)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = model.NewError(model.KindRemoteTimeout, t.GetName(), "", errors.Join(ctx.Err(), err))
		}
		t.Fail(chCtx, err)
		return
	}

	t.Succeed(chCtx)
	slog.InfoContext(ctx, "analysis generated", "request_id", id, "chars", len(out))
	chCtx.Add(ParamAnswer, out)
	chCtx.Add(t.GetOutputParam(), out)
}
