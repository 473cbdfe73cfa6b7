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

package services

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// PromptData is the data available to prompt templates.
type PromptData struct {
	Query     string
	MediaName string
	MIMEType  string
	WebSearch bool // A search tool is attached to the model.
}

// PromptBuilder renders the analysis and single-shot prompts.
type PromptBuilder struct {
	analysis   *template.Template
	singleShot *template.Template
	webSearch  bool
}

// NewPromptBuilder parses both templates, using the defaults for empty ones.
func NewPromptBuilder(templates cloud.PromptTemplates) (*PromptBuilder, error) {
	analysisText := templates.AnalysisPrompt
	if strings.TrimSpace(analysisText) == "" {
		analysisText = cloud.DefaultAnalysisPrompt
	}
	singleShotText := templates.SingleShotPrompt
	if strings.TrimSpace(singleShotText) == "" {
		singleShotText = cloud.DefaultSingleShotPrompt
	}

	analysis, err := template.New("analysis").Option("missingkey=error").Parse(analysisText)
	if err != nil {
		return nil, fmt.Errorf("invalid analysis prompt template: %w", err)
	}
	singleShot, err := template.New("single_shot").Option("missingkey=error").Parse(singleShotText)
	if err != nil {
		return nil, fmt.Errorf("invalid single-shot prompt template: %w", err)
	}
	return &PromptBuilder{analysis: analysis, singleShot: singleShot}, nil
}

// WithWebSearch records whether the model answering these prompts can search
// the web.
func (p *PromptBuilder) WithWebSearch(enabled bool) *PromptBuilder {
	p.webSearch = enabled
	return p
}

// Analysis renders the prompt sent alongside uploaded media.
func (p *PromptBuilder) Analysis(request *model.AnalysisRequest) (string, error) {
	return p.render(p.analysis, request)
}

// SingleShot renders the text-only prompt that names the media.
func (p *PromptBuilder) SingleShot(request *model.AnalysisRequest) (string, error) {
	return p.render(p.singleShot, request)
}

func (p *PromptBuilder) render(t *template.Template, request *model.AnalysisRequest) (string, error) {
	data := PromptData{Query: request.Query, WebSearch: p.webSearch}
	if request.Media != nil {
		data.MediaName = request.Media.DisplayName
		data.MIMEType = request.Media.MIMEType
	}
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", t.Name(), err)
	}
	return sb.String(), nil
}
