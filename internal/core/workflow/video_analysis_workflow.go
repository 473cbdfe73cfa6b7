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

// Package workflow defines the high-level business logic orchestrations,
// combining commands into pipelines. This file implements the video analysis
// workflow that turns one upload and one question into one result.
//
// Logic Flow:
//  1. The query is trimmed. An empty query returns a warning without storing
//     anything or contacting the remote service.
//  2. The configured request timeout is applied to the Go context.
//  3. The chain runs store-media, submit-media, await-media and
//     generate-analysis. Each step that acquires a resource registers its
//     release on the chain context.
//  4. The chain context is closed on every exit path, which releases the
//     remote upload and then the local file, each exactly once. Remote
//     release is best effort; a local file that cannot be deleted fails the
//     request with io_failure unless an earlier error already did.
//  5. The first recorded error is classified, logged with its kind and
//     returned in the result.
package workflow

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/commands"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
)

// Options tune the workflow.
type Options struct {
	PollInterval   time.Duration // Wait between status checks.
	MaxPolls       int           // Status checks before remote_timeout.
	RequestTimeout time.Duration // Upper bound for one request; zero for none.
	ReleaseTimeout time.Duration // Upper bound for deleting the remote copy.
}

// VideoAnalysisWorkflow is the submission pipeline.
type VideoAnalysisWorkflow struct {
	cor.BaseCommand
	store         services.MediaStore
	analyzer      services.RemoteAnalyzer
	options       Options
	chain         cor.Chain
	warnCounter   metric.Int64Counter
	resultCounter metric.Int64Counter
}

// NewVideoAnalysisWorkflow builds the workflow and its chain.
func NewVideoAnalysisWorkflow(store services.MediaStore, analyzer services.RemoteAnalyzer, options Options) *VideoAnalysisWorkflow {
	out := &VideoAnalysisWorkflow{
		BaseCommand: *cor.NewBaseCommand("video-analysis"),
		store:       store,
		analyzer:    analyzer,
		options:     options,
	}
	out.warnCounter, _ = out.GetMeter().Int64Counter("video-analysis.counter.warning")
	out.resultCounter, _ = out.GetMeter().Int64Counter("video-analysis.counter.result")
	out.initializeChain()
	return out
}

func (w *VideoAnalysisWorkflow) initializeChain() {
	out := cor.NewBaseChain(w.GetName())
	out.AddCommand(commands.NewStoreMedia("store-media", w.store))
	out.AddCommand(commands.NewMediaUpload("submit-media", w.analyzer, w.options.ReleaseTimeout))
	out.AddCommand(commands.NewMediaAwait("await-media", w.analyzer, w.options.PollInterval, w.options.MaxPolls))
	out.AddCommand(commands.NewMediaAnalysisCreator("generate-analysis", w.analyzer))
	w.chain = out
}

// Execute runs the chain on an existing context. HandleRequest is the usual
// entry point.
func (w *VideoAnalysisWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

// Analyzer returns the remote analyzer used by the workflow.
func (w *VideoAnalysisWorkflow) Analyzer() services.RemoteAnalyzer {
	return w.analyzer
}

// HandleRequest analyzes media with query and always returns a result.
func (w *VideoAnalysisWorkflow) HandleRequest(ctx context.Context, media *model.UploadedMedia, query string) *model.AnalysisResult {
	result := &model.AnalysisResult{RequestID: uuid.NewString()}

	ctx, span := w.Tracer.Start(ctx, "handle_request", trace.WithAttributes(
		attribute.String("request_id", result.RequestID),
		attribute.String("transport", w.analyzer.Transport()),
	))
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		result.Warning = model.EmptyQueryWarning
		w.warnCounter.Add(ctx, 1)
		slog.InfoContext(ctx, "rejected request without query",
			"request_id", result.RequestID,
			"kind", model.KindEmptyQuery)
		span.SetStatus(codes.Ok, "empty query")
		return result
	}

	if w.options.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.options.RequestTimeout)
		defer cancel()
	}

	chCtx := cor.NewBaseContext()
	chCtx.SetContext(ctx)
	chCtx.Add(commands.ParamRequestID, result.RequestID)
	chCtx.Add(commands.ParamQuery, query)
	chCtx.Add(cor.CtxIn, media)

	func() {
		defer func() {
			if err := chCtx.Close(); err != nil {
				slog.WarnContext(ctx, "failed to release request resources",
					"request_id", result.RequestID,
					"error", err)
			}
		}()
		w.Execute(chCtx)
	}()

	if polls, ok := chCtx.Get(commands.ParamPollCount).(int); ok {
		result.Polls = polls
	}
	if ref, ok := chCtx.Get(commands.ParamRemoteMedia).(*model.RemoteMediaReference); ok {
		result.Degraded = ref.Degraded
	}

	if err := chCtx.FirstError(); err != nil {
		ae := model.AsAnalysisError(err, w.GetName(), model.KindRemoteCallFailure)
		result.Err = ae
		w.resultCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(ae.Kind))))
		slog.ErrorContext(ctx, "video analysis failed",
			"request_id", result.RequestID,
			"kind", ae.Kind,
			"op", ae.Op,
			"error", ae)
		span.RecordError(ae)
		span.SetStatus(codes.Error, string(ae.Kind))
		return result
	}

	result.Text, _ = chCtx.Get(commands.ParamAnswer).(string)
	w.resultCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "ok")))
	slog.InfoContext(ctx, "video analysis completed",
		"request_id", result.RequestID,
		"polls", result.Polls,
		"degraded", result.Degraded)
	span.SetStatus(codes.Ok, "analysis completed")
	return result
}
