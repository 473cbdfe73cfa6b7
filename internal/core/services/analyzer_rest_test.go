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
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
)

func newRestAnalyzer(t *testing.T, status int, body string, seen func(r *http.Request, payload []byte)) *services.RestAnalyzer {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, _ := io.ReadAll(r.Body)
		if seen != nil {
			seen(r, payload)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)

	prompts, err := services.NewPromptBuilder(cloud.PromptTemplates{})
	require.NoError(t, err)
	return services.NewRestAnalyzer(server.Client(), server.URL+"/v1beta", "gemini-2.0-flash-exp", "secret", prompts)
}

func restRequest(t *testing.T, a *services.RestAnalyzer) *model.AnalysisRequest {
	t.Helper()
	ref, err := a.SubmitMedia(context.Background(), &model.TemporaryFileHandle{
		Path: "/tmp/ignored.mp4", DisplayName: "holiday.mp4", MIMEType: "video/mp4",
	})
	require.NoError(t, err)
	return &model.AnalysisRequest{ID: "req-1", Media: ref, Query: "What happens?"}
}

func TestRestGenerateReturnsFirstCandidateText(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any
	a := newRestAnalyzer(t, http.StatusOK,
		`{"candidates":[{"content":{"parts":[{"text":"Summary text"}]}}]}`,
		func(r *http.Request, payload []byte) {
			gotPath = r.URL.Path
			gotKey = r.Header.Get(services.APIKeyHeader)
			_ = json.Unmarshal(payload, &gotBody)
		})

	out, err := a.Generate(context.Background(), restRequest(t, a))
	require.NoError(t, err)
	assert.Equal(t, "Summary text", out)

	assert.Equal(t, "/v1beta/models/gemini-2.0-flash-exp:generateContent", gotPath)
	assert.Equal(t, "secret", gotKey)

	contents := gotBody["contents"].([]any)
	parts := contents[0].(map[string]any)["parts"].([]any)
	text := parts[0].(map[string]any)["text"].(string)
	assert.Contains(t, text, "holiday.mp4")
	assert.Contains(t, text, "What happens?")
}

func TestRestGenerateErrorObjectIsContentError(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusTooManyRequests} {
		a := newRestAnalyzer(t, status, `{"error":{"message":"quota exceeded"}}`, nil)

		_, err := a.Generate(context.Background(), restRequest(t, a))
		require.Error(t, err)

		var ae *model.AnalysisError
		require.True(t, errors.As(err, &ae))
		assert.Equal(t, model.KindRemoteContentError, ae.Kind)
		assert.Equal(t, "quota exceeded", ae.Message)
	}
}

func TestRestGenerateCallFailures(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
	}{
		"non-2xx without error object": {http.StatusBadGateway, `upstream down`},
		"malformed body":               {http.StatusOK, `{"candidates":`},
		"no candidates":                {http.StatusOK, `{"candidates":[]}`},
		"candidate without parts":      {http.StatusOK, `{"candidates":[{"content":{"parts":[]}}]}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			a := newRestAnalyzer(t, tc.status, tc.body, nil)
			_, err := a.Generate(context.Background(), restRequest(t, a))
			assert.Equal(t, model.KindRemoteCallFailure, model.KindOf(err))
		})
	}
}

func TestRestTransportError(t *testing.T) {
	prompts, err := services.NewPromptBuilder(cloud.PromptTemplates{})
	require.NoError(t, err)
	a := services.NewRestAnalyzer(http.DefaultClient, "http://127.0.0.1:1/v1beta", "m", "k", prompts)

	_, err = a.Generate(context.Background(), restRequest(t, a))
	assert.Equal(t, model.KindRemoteCallFailure, model.KindOf(err))
}

func TestRestSubmitIsDegradedAndReady(t *testing.T) {
	a := newRestAnalyzer(t, http.StatusOK, `{}`, nil)
	req := restRequest(t, a)

	assert.Equal(t, services.SingleShot, a.Mode())
	assert.Equal(t, model.RemoteStateReady, req.Media.State)
	assert.True(t, req.Media.Degraded)
	assert.NoError(t, a.ReleaseMedia(context.Background(), req.Media))
}
