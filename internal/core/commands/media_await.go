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
// command that waits for submitted media to finish server-side processing.
//
// Logic Flow:
//  1. A reference that is already READY passes through with zero polls.
//  2. While the reference is PROCESSING the command waits pollInterval and
//     re-fetches it by name.
//  3. After maxPolls re-fetches that still report PROCESSING, or when the Go
//     context ends while waiting, the command fails with remote_timeout.
//  4. A FAILED reference fails with remote_processing_failure carrying the
//     service's reason.
package commands

import (
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
)

// MediaAwait polls a remote reference until it is ready.
type MediaAwait struct {
	cor.BaseCommand
	analyzer     services.RemoteAnalyzer
	pollInterval time.Duration
	maxPolls     int
	pollCounter  metric.Int64Counter
}

// NewMediaAwait is the constructor for the MediaAwait command. maxPolls below
// one is raised to one.
func NewMediaAwait(name string, analyzer services.RemoteAnalyzer, pollInterval time.Duration, maxPolls int) *MediaAwait {
	if maxPolls < 1 {
		maxPolls = 1
	}
	out := &MediaAwait{
		BaseCommand:  *cor.NewBaseCommand(name),
		analyzer:     analyzer,
		pollInterval: pollInterval,
		maxPolls:     maxPolls,
	}
	out.pollCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.counter.poll", name))
	return out
}

// Execute runs the poll loop.
func (m *MediaAwait) Execute(context cor.Context) {
	ref, ok := context.Get(m.GetInputParam()).(*model.RemoteMediaReference)
	if !ok {
		m.Fail(context, model.NewError(model.KindRemoteCallFailure, m.GetName(), "no remote media in context", nil))
		return
	}
	ctx := context.GetContext()

	polls := 0
	defer func() { context.Add(ParamPollCount, polls) }()

	for ref.IsProcessing() {
		if polls >= m.maxPolls {
			m.Fail(context, model.NewError(model.KindRemoteTimeout, m.GetName(),
				fmt.Sprintf("media %s still processing after %d status checks", ref.Name, polls), nil))
			return
		}

		timer := time.NewTimer(m.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.Fail(context, model.NewError(model.KindRemoteTimeout, m.GetName(), "", ctx.Err()))
			return
		case <-timer.C:
		}

		next, err := m.analyzer.FetchMedia(ctx, ref)
		polls++
		m.pollCounter.Add(ctx, 1)
		if err != nil {
			if ctx.Err() != nil {
				err = model.NewError(model.KindRemoteTimeout, m.GetName(), "", ctx.Err())
			}
			m.Fail(context, err)
			return
		}
		ref = next
		context.Add(ParamRemoteMedia, ref)
		slog.DebugContext(ctx, "polled media state", "name", ref.Name, "state", ref.State, "poll", polls)
	}

	if ref.State == model.RemoteStateFailed {
		reason := ref.FailureReason
		if reason == "" {
			reason = fmt.Sprintf("remote processing of %s failed", ref.Name)
		}
		m.Fail(context, model.NewError(model.KindRemoteProcessingFailure, m.GetName(), reason, nil))
		return
	}

	m.Succeed(context)
	context.Add(ParamRemoteMedia, ref)
	context.Add(m.GetOutputParam(), ref)
}
