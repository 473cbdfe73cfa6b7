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

package services_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
)

// fakeBucket serves the object metadata and delete calls of the GCS JSON API.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string]bool
	locked  map[string]bool
	deletes []string
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	name := path.Base(r.URL.Path)
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodDelete && b.locked[name]:
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": 403, "message": "forbidden"}})
	case r.Method == http.MethodDelete && b.objects[name]:
		b.deletes = append(b.deletes, name)
		delete(b.objects, name)
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodGet && b.objects[name]:
		_ = json.NewEncoder(w).Encode(map[string]any{"bucket": "staging", "name": name, "contentType": "video/mp4"})
	default:
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": 404, "message": "No such object"}})
	}
}

func (b *fakeBucket) Deletes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.deletes...)
}

func newVertex(t *testing.T, bucket *fakeBucket, gen *fakeGenerator) *services.VertexAnalyzer {
	t.Helper()
	srv := httptest.NewServer(bucket)
	t.Cleanup(srv.Close)
	t.Setenv("STORAGE_EMULATOR_HOST", srv.URL)

	client, err := storage.NewClient(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	prompts, err := services.NewPromptBuilder(cloud.PromptTemplates{})
	require.NoError(t, err)
	return services.NewVertexAnalyzer(client, cloud.Storage{StagingBucket: "staging", StagingPrefix: "uploads/"}, gen, prompts)
}

func TestVertexFetchMedia(t *testing.T) {
	bucket := &fakeBucket{objects: map[string]bool{"clip.mp4": true}}
	a := newVertex(t, bucket, &fakeGenerator{})
	assert.Equal(t, services.UploadThenPoll, a.Mode())

	ref, err := a.FetchMedia(context.Background(), &model.RemoteMediaReference{
		Name: "gs://staging/clip.mp4", URI: "gs://staging/clip.mp4", State: model.RemoteStateReady,
	})
	require.NoError(t, err)
	assert.Equal(t, model.RemoteStateReady, ref.State)

	gone, err := a.FetchMedia(context.Background(), &model.RemoteMediaReference{
		Name: "gs://staging/gone.mp4", URI: "gs://staging/gone.mp4", State: model.RemoteStateReady,
	})
	require.NoError(t, err)
	assert.Equal(t, model.RemoteStateFailed, gone.State)
	assert.NotEmpty(t, gone.FailureReason)

	_, err = a.FetchMedia(context.Background(), &model.RemoteMediaReference{URI: "https://files/abc"})
	assert.Equal(t, model.KindRemoteCallFailure, model.KindOf(err))
}

func TestVertexReleaseMedia(t *testing.T) {
	bucket := &fakeBucket{
		objects: map[string]bool{"clip.mp4": true, "locked.mp4": true},
		locked:  map[string]bool{"locked.mp4": true},
	}
	a := newVertex(t, bucket, &fakeGenerator{})
	ctx := context.Background()

	require.NoError(t, a.ReleaseMedia(ctx, &model.RemoteMediaReference{URI: "gs://staging/clip.mp4"}))
	assert.Equal(t, []string{"clip.mp4"}, bucket.Deletes())

	// A second release finds nothing to delete.
	assert.NoError(t, a.ReleaseMedia(ctx, &model.RemoteMediaReference{URI: "gs://staging/clip.mp4"}))
	assert.NoError(t, a.ReleaseMedia(ctx, nil))

	err := a.ReleaseMedia(ctx, &model.RemoteMediaReference{URI: "gs://staging/locked.mp4"})
	assert.Equal(t, model.KindRemoteCallFailure, model.KindOf(err))
}

func TestVertexGenerateReferencesStagedObject(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("A lecture.")}
	a := newVertex(t, &fakeBucket{}, gen)

	out, err := a.Generate(context.Background(), &model.AnalysisRequest{
		Media: &model.RemoteMediaReference{URI: "gs://staging/clip.mp4", MIMEType: "video/mp4"},
		Query: "What is this?",
	})
	require.NoError(t, err)
	assert.Equal(t, "A lecture.", out)
	require.Len(t, gen.contents, 1)
	parts := gen.contents[0].Parts
	require.Len(t, parts, 2)
	assert.Equal(t, "gs://staging/clip.mp4", parts[1].FileData.FileURI)
	assert.Equal(t, "video/mp4", parts[1].FileData.MIMEType)
}
