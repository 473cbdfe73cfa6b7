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

// Package test holds helpers shared by the package tests: a config that needs
// no files or credentials, and in-process fakes for the media store and the
// remote analyzer.
package test

import (
	"bytes"
	"context"
	"sync"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
)

// GetConfig returns the default config with the rest transport, a fake key
// and no poll delay.
func GetConfig() *cloud.Config {
	config := cloud.NewConfig()
	config.Application.Transport = cloud.TransportREST
	config.Application.APIKey = "test-key"
	config.Media.PollIntervalInSeconds = 0
	return config
}

// SampleMP4 is the start of an ISO base media file: enough for content
// sniffing to recognise an mp4 container.
var SampleMP4 = []byte{
	0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'm', 'p', '4', '2',
	0x00, 0x00, 0x00, 0x00, 'm', 'p', '4', '2', 'i', 's', 'o', 'm',
	0x00, 0x00, 0x00, 0x08, 'f', 'r', 'e', 'e',
}

// NewUploadedMedia wraps content as an upload of the given format.
func NewUploadedMedia(content []byte, format model.MediaFormat) *model.UploadedMedia {
	return &model.UploadedMedia{
		Name:    "sample" + format.Suffix(),
		Format:  format,
		Content: bytes.NewReader(content),
	}
}

// CountingStore wraps a MediaStore and counts calls per handle.
type CountingStore struct {
	services.MediaStore

	mu         sync.Mutex
	stores     int
	releases   map[string]int
	StoreErr   error // When set, Store fails with this error without writing.
	ReleaseErr error // When set, Release deletes the file and then returns this error.
}

// NewCountingStore wraps store.
func NewCountingStore(store services.MediaStore) *CountingStore {
	return &CountingStore{MediaStore: store, releases: map[string]int{}}
}

func (s *CountingStore) Store(ctx context.Context, media *model.UploadedMedia) (*model.TemporaryFileHandle, error) {
	s.mu.Lock()
	s.stores++
	s.mu.Unlock()
	if s.StoreErr != nil {
		return nil, s.StoreErr
	}
	return s.MediaStore.Store(ctx, media)
}

func (s *CountingStore) Release(handle *model.TemporaryFileHandle) error {
	s.mu.Lock()
	if handle != nil {
		s.releases[handle.Path]++
	}
	s.mu.Unlock()
	if err := s.MediaStore.Release(handle); err != nil {
		return err
	}
	return s.ReleaseErr
}

// Stores returns the number of Store calls.
func (s *CountingStore) Stores() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stores
}

// Releases returns the Release count per handle path.
func (s *CountingStore) Releases() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.releases))
	for k, v := range s.releases {
		out[k] = v
	}
	return out
}

// FakeAnalyzer is a scripted RemoteAnalyzer. SubmitState is the state
// returned by SubmitMedia and FetchStates the states returned by successive
// FetchMedia calls; the last entry repeats.
type FakeAnalyzer struct {
	SubmissionMode services.SubmissionMode
	SubmitState    model.RemoteState
	FetchStates    []model.RemoteState
	FailureReason  string
	Answer         string
	SubmitErr      error
	FetchErr       error
	GenerateErr    error
	ReleaseErr     error
	GenerateBlocks bool // Generate waits for ctx and fails the way an SDK call would.

	mu        sync.Mutex
	submits   int
	fetches   int
	generates int
	releases  int
	queries   []string
}

func (f *FakeAnalyzer) Transport() string             { return "fake" }
func (f *FakeAnalyzer) Mode() services.SubmissionMode { return f.SubmissionMode }

func (f *FakeAnalyzer) SubmitMedia(_ context.Context, handle *model.TemporaryFileHandle) (*model.RemoteMediaReference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	if f.SubmitErr != nil {
		return nil, f.SubmitErr
	}
	state := f.SubmitState
	if state == "" {
		state = model.RemoteStateReady
	}
	return &model.RemoteMediaReference{
		Name:        "files/fake",
		DisplayName: handle.DisplayName,
		URI:         "https://example.invalid/files/fake",
		MIMEType:    handle.MIMEType,
		State:       state,
		Degraded:    f.SubmissionMode == services.SingleShot,
	}, nil
}

func (f *FakeAnalyzer) FetchMedia(_ context.Context, ref *model.RemoteMediaReference) (*model.RemoteMediaReference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	out := *ref
	out.State = model.RemoteStateProcessing
	if len(f.FetchStates) > 0 {
		out.State = f.FetchStates[min(f.fetches, len(f.FetchStates))-1]
	}
	if out.State == model.RemoteStateFailed {
		out.FailureReason = f.FailureReason
	}
	return &out, nil
}

func (f *FakeAnalyzer) Generate(ctx context.Context, request *model.AnalysisRequest) (string, error) {
	f.mu.Lock()
	f.generates++
	f.queries = append(f.queries, request.Query)
	f.mu.Unlock()
	if f.GenerateBlocks {
		<-ctx.Done()
		return "", model.NewError(model.KindRemoteCallFailure, "generate", "", ctx.Err())
	}
	if f.GenerateErr != nil {
		return "", f.GenerateErr
	}
	return f.Answer, nil
}

func (f *FakeAnalyzer) ReleaseMedia(context.Context, *model.RemoteMediaReference) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
	return f.ReleaseErr
}

// Calls returns the number of submit, fetch, generate and release calls.
func (f *FakeAnalyzer) Calls() (submits, fetches, generates, releases int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits, f.fetches, f.generates, f.releases
}

// RemoteCalls returns the number of calls that would reach the network.
func (f *FakeAnalyzer) RemoteCalls() int {
	s, fe, g, r := f.Calls()
	return s + fe + g + r
}

// Queries returns the queries passed to Generate.
func (f *FakeAnalyzer) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}
