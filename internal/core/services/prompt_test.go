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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
)

func TestPromptBuilderDefaults(t *testing.T) {
	p, err := services.NewPromptBuilder(cloud.PromptTemplates{})
	require.NoError(t, err)

	req := &model.AnalysisRequest{
		Query: "Who is speaking?",
		Media: &model.RemoteMediaReference{DisplayName: "talk.mov", MIMEType: "video/quicktime"},
	}

	analysis, err := p.Analysis(req)
	require.NoError(t, err)
	assert.Contains(t, analysis, "Analyze the uploaded video for content and context.")
	assert.Contains(t, analysis, "Who is speaking?")

	single, err := p.SingleShot(req)
	require.NoError(t, err)
	assert.Contains(t, single, `"talk.mov" (video/quicktime)`)
	assert.Contains(t, single, "Who is speaking?")
}

func TestPromptBuilderWebSearchClause(t *testing.T) {
	p, err := services.NewPromptBuilder(cloud.PromptTemplates{})
	require.NoError(t, err)
	req := &model.AnalysisRequest{Query: "Where was this filmed?"}

	without, err := p.Analysis(req)
	require.NoError(t, err)
	assert.NotContains(t, without, "web research")
	assert.Contains(t, without, "using video insights:")

	with, err := p.WithWebSearch(true).Analysis(req)
	require.NoError(t, err)
	assert.Contains(t, with, "using video insights and supplementary web research:")
}

func TestPromptBuilderCustomTemplate(t *testing.T) {
	p, err := services.NewPromptBuilder(cloud.PromptTemplates{AnalysisPrompt: "Q: {{.Query}}"})
	require.NoError(t, err)

	out, err := p.Analysis(&model.AnalysisRequest{Query: "why"})
	require.NoError(t, err)
	assert.Equal(t, "Q: why", out)
}

func TestPromptBuilderRejectsBadTemplates(t *testing.T) {
	_, err := services.NewPromptBuilder(cloud.PromptTemplates{AnalysisPrompt: "{{.Query"})
	assert.Error(t, err)

	p, err := services.NewPromptBuilder(cloud.PromptTemplates{AnalysisPrompt: "{{.Unknown}}"})
	require.NoError(t, err)
	_, err = p.Analysis(&model.AnalysisRequest{Query: "q"})
	assert.Error(t, err)
}
