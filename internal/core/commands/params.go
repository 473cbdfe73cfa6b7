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
// Responsibility (COR) pattern's Command interface for video analysis.
//
// The analysis chain runs:
//
//	store-media -> submit-media -> await-media -> generate-analysis
//
// Each command reads its primary input from CtxIn and writes its output to
// CtxOut. Values needed further down the chain are also stored under the keys
// below.
package commands

// Context keys shared by the analysis commands.
const (
	ParamRequestID     = "__REQUEST_ID__"     // string, set by the workflow.
	ParamQuery         = "__QUERY__"          // string, the trimmed user question.
	ParamTemporaryFile = "__TEMPORARY_FILE__" // *model.TemporaryFileHandle
	ParamRemoteMedia   = "__REMOTE_MEDIA__"   // *model.RemoteMediaReference, latest observed state.
	ParamPollCount     = "__POLL_COUNT__"     // int, status re-fetches made by await-media.
	ParamAnswer        = "__ANSWER__"         // string, the generated text.
)
