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
// This file implements the vertex transport. Vertex AI reads media straight
// from Cloud Storage, so submitting means writing the temporary file to the
// staging bucket; the reference is ready as soon as the write completes.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"cloud.google.com/go/storage"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// VertexAnalyzer stages media in GCS and generates on Vertex AI.
type VertexAnalyzer struct {
	client   *storage.Client
	bucket   string
	prefix   string
	model    cloud.ContentGenerator
	prompts  *PromptBuilder
	counters geminiCounters
}

// NewVertexAnalyzer returns a vertex transport staging into settings.StagingBucket.
func NewVertexAnalyzer(client *storage.Client, settings cloud.Storage, generator cloud.ContentGenerator, prompts *PromptBuilder) *VertexAnalyzer {
	return &VertexAnalyzer{
		client:   client,
		bucket:   settings.StagingBucket,
		prefix:   settings.StagingPrefix,
		model:    generator,
		prompts:  prompts,
		counters: newGeminiCounters(cloud.TransportVertex),
	}
}

func (a *VertexAnalyzer) Transport() string    { return cloud.TransportVertex }
func (a *VertexAnalyzer) Mode() SubmissionMode { return UploadThenPoll }

// SubmitMedia copies the local file to a new staging object.
func (a *VertexAnalyzer) SubmitMedia(ctx context.Context, handle *model.TemporaryFileHandle) (*model.RemoteMediaReference, error) {
	const op = "submit_media"
	dat, err := os.Open(handle.Path)
	if err != nil {
		return nil, model.NewError(model.KindIOFailure, op, "", err)
	}
	defer dat.Close()

	target := cloud.NewStagingObject(a.bucket, a.prefix, handle.Format.Suffix(), handle.MIMEType)
	writer := a.client.Bucket(target.Bucket).Object(target.Name).NewWriter(ctx)
	writer.ContentType = target.MIMEType

	if written, err := io.Copy(writer, dat); err != nil {
		_ = writer.Close()
		return nil, model.NewError(model.KindRemoteCallFailure, op,
			fmt.Sprintf("failed to copy to GCS after %d bytes: %v", written, err), err)
	}
	if err := writer.Close(); err != nil {
		return nil, model.NewError(model.KindRemoteCallFailure, op, "", err)
	}

	slog.InfoContext(ctx, "staged media", "uri", target.URI())
	return &model.RemoteMediaReference{
		Name:        target.URI(),
		DisplayName: handle.DisplayName,
		URI:         target.URI(),
		MIMEType:    target.MIMEType,
		State:       model.RemoteStateReady,
	}, nil
}

// FetchMedia checks that the staged object still exists.
func (a *VertexAnalyzer) FetchMedia(ctx context.Context, ref *model.RemoteMediaReference) (*model.RemoteMediaReference, error) {
	const op = "fetch_media"
	obj, err := cloud.ParseGCSURI(ref.URI)
	if err != nil {
		return nil, model.NewError(model.KindRemoteCallFailure, op, "", err)
	}
	out := *ref
	if _, err := a.client.Bucket(obj.Bucket).Object(obj.Name).Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			out.State = model.RemoteStateFailed
			out.FailureReason = "staged object no longer exists"
			return &out, nil
		}
		return nil, model.NewError(model.KindRemoteCallFailure, op, "", err)
	}
	out.State = model.RemoteStateReady
	return &out, nil
}

func (a *VertexAnalyzer) Generate(ctx context.Context, request *model.AnalysisRequest) (string, error) {
	return generateWithFile(ctx, a.model, a.counters, a.prompts, request)
}

// ReleaseMedia deletes the staging object.
func (a *VertexAnalyzer) ReleaseMedia(ctx context.Context, ref *model.RemoteMediaReference) error {
	if ref == nil || ref.URI == "" {
		return nil
	}
	obj, err := cloud.ParseGCSURI(ref.URI)
	if err != nil {
		return model.NewError(model.KindRemoteCallFailure, "release_media", "", err)
	}
	if err := a.client.Bucket(obj.Bucket).Object(obj.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return model.NewError(model.KindRemoteCallFailure, "release_media", "", err)
	}
	return nil
}
