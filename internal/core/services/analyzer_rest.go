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
// This file implements the rest transport, a single generateContent call per
// request. The video is never sent: the prompt only names it, so every answer
// produced here is marked degraded.
//
// Wire format:
//
//	request:  {"contents":[{"parts":[{"text":"<prompt>"}]}]}
//	success:  {"candidates":[{"content":{"parts":[{"text":"..."}]}}]}
//	failure:  {"error":{"code":429,"message":"...","status":"..."}}
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// APIKeyHeader carries the credential on every REST request.
const APIKeyHeader = "x-goog-api-key"

// maxErrorBody bounds how much of an unparseable body ends up in an error.
const maxErrorBody = 512

type restPart struct {
	Text string `json:"text"`
}

type restContent struct {
	Parts []restPart `json:"parts"`
}

type restRequest struct {
	Contents []restContent `json:"contents"`
}

type restResponse struct {
	Candidates []struct {
		Content *restContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// RestAnalyzer is the degraded single-shot transport.
type RestAnalyzer struct {
	client  *http.Client
	baseURL string
	model   string
	apiKey  string
	prompts *PromptBuilder
}

// NewRestAnalyzer returns a rest transport posting to baseURL.
func NewRestAnalyzer(client *http.Client, baseURL, modelName, apiKey string, prompts *PromptBuilder) *RestAnalyzer {
	if client == nil {
		client = http.DefaultClient
	}
	return &RestAnalyzer{
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   modelName,
		apiKey:  apiKey,
		prompts: prompts,
	}
}

func (a *RestAnalyzer) Transport() string    { return cloud.TransportREST }
func (a *RestAnalyzer) Mode() SubmissionMode { return SingleShot }

// SubmitMedia makes no call: the reference only carries the display name used
// by the prompt.
func (a *RestAnalyzer) SubmitMedia(_ context.Context, handle *model.TemporaryFileHandle) (*model.RemoteMediaReference, error) {
	return &model.RemoteMediaReference{
		Name:        handle.DisplayName,
		DisplayName: handle.DisplayName,
		MIMEType:    handle.MIMEType,
		State:       model.RemoteStateReady,
		Degraded:    true,
	}, nil
}

// FetchMedia returns ref unchanged; nothing was uploaded.
func (a *RestAnalyzer) FetchMedia(_ context.Context, ref *model.RemoteMediaReference) (*model.RemoteMediaReference, error) {
	return ref, nil
}

// ReleaseMedia has nothing to release.
func (a *RestAnalyzer) ReleaseMedia(context.Context, *model.RemoteMediaReference) error {
	return nil
}

// Endpoint returns the generateContent URL for the configured model.
func (a *RestAnalyzer) Endpoint() string {
	return fmt.Sprintf("%s/models/%s:generateContent", a.baseURL, url.PathEscape(a.model))
}

// Generate posts the single-shot prompt. An error object in the body is a
// content error whatever the status code; any other non-2xx status, transport
// error, or unparseable body is a call failure.
func (a *RestAnalyzer) Generate(ctx context.Context, request *model.AnalysisRequest) (string, error) {
	const op = "generate"
	prompt, err := a.prompts.SingleShot(request)
	if err != nil {
		return "", model.NewError(model.KindRemoteCallFailure, op, "", err)
	}

	payload, err := json.Marshal(restRequest{Contents: []restContent{{Parts: []restPart{{Text: prompt}}}}})
	if err != nil {
		return "", model.NewError(model.KindRemoteCallFailure, op, "", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.Endpoint(), bytes.NewReader(payload))
	if err != nil {
		return "", model.NewError(model.KindRemoteCallFailure, op, "", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(APIKeyHeader, a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", model.NewError(model.KindRemoteCallFailure, op, "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", model.NewError(model.KindRemoteCallFailure, op, "", err)
	}
	return parseRestResponse(op, resp.StatusCode, body)
}

func parseRestResponse(op string, status int, body []byte) (string, error) {
	var parsed restResponse
	decodeErr := json.Unmarshal(body, &parsed)

	if decodeErr == nil && parsed.Error != nil && parsed.Error.Message != "" {
		return "", model.NewError(model.KindRemoteContentError, op, parsed.Error.Message, nil)
	}
	if status < 200 || status > 299 {
		return "", model.NewError(model.KindRemoteCallFailure, op,
			fmt.Sprintf("unexpected status %d: %s", status, truncate(body, maxErrorBody)), nil)
	}
	if decodeErr != nil {
		return "", model.NewError(model.KindRemoteCallFailure, op, "malformed response body", decodeErr)
	}
	if len(parsed.Candidates) == 0 || parsed.Candidates[0].Content == nil || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", model.NewError(model.KindRemoteCallFailure, op, "response has no candidate text", nil)
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}

func truncate(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
