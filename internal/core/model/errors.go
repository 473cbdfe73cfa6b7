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

package model

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies every way an analysis request can end without an answer.
type ErrorKind string

const (
	KindEmptyQuery              ErrorKind = "empty_query"
	KindIOFailure               ErrorKind = "io_failure"
	KindRemoteProcessingFailure ErrorKind = "remote_processing_failure"
	KindRemoteTimeout           ErrorKind = "remote_timeout"
	KindRemoteCallFailure       ErrorKind = "remote_call_failure"
	KindRemoteContentError      ErrorKind = "remote_content_error"
)

// Sentinels for errors.Is. An *AnalysisError matches any of these when the
// kinds are equal.
var (
	ErrEmptyQuery              = &AnalysisError{Kind: KindEmptyQuery}
	ErrIOFailure               = &AnalysisError{Kind: KindIOFailure}
	ErrRemoteProcessingFailure = &AnalysisError{Kind: KindRemoteProcessingFailure}
	ErrRemoteTimeout           = &AnalysisError{Kind: KindRemoteTimeout}
	ErrRemoteCallFailure       = &AnalysisError{Kind: KindRemoteCallFailure}
	ErrRemoteContentError      = &AnalysisError{Kind: KindRemoteContentError}
)

// EmptyQueryWarning is shown when the user submits a video without a question.
const EmptyQueryWarning = "Please enter a question or insight to analyze the video."

// AnalysisError is a classified failure. Op names the pipeline step that
// produced it and Message is the underlying human-readable reason.
type AnalysisError struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

// NewError builds an AnalysisError. When message is empty the cause's text is used.
func NewError(kind ErrorKind, op string, message string, cause error) *AnalysisError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &AnalysisError{Kind: kind, Op: op, Message: message, Err: cause}
}

func (e *AnalysisError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s (%s): %v", msg, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s (%s)", msg, e.Kind)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// Is matches another *AnalysisError of the same kind.
func (e *AnalysisError) Is(target error) bool {
	t, ok := target.(*AnalysisError)
	return ok && t.Kind == e.Kind
}

// UserMessage is the flattened string presented to the user. The kind is not
// part of it; it only goes to the logs.
func (e *AnalysisError) UserMessage() string {
	switch e.Kind {
	case KindEmptyQuery:
		return EmptyQueryWarning
	case KindIOFailure:
		return "An error occurred during analysis: the uploaded video could not be stored."
	case KindRemoteTimeout:
		return "An error occurred during analysis: the video took too long to process, please submit it again."
	}
	if e.Message == "" {
		return "An error occurred during analysis."
	}
	return "An error occurred during analysis: " + e.Message
}

// StatusCode maps the error kind to the HTTP status returned by the API.
func (e *AnalysisError) StatusCode() int {
	switch e.Kind {
	case KindEmptyQuery:
		return http.StatusBadRequest
	case KindIOFailure:
		return http.StatusInternalServerError
	case KindRemoteProcessingFailure:
		return http.StatusUnprocessableEntity
	case KindRemoteTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// Retryable reports whether resubmitting the same request may succeed. Nothing
// is retried automatically.
func (e *AnalysisError) Retryable() bool {
	return e.Kind == KindRemoteTimeout
}

// KindOf returns the kind of the first AnalysisError in err's chain, or an
// empty kind when there is none.
func KindOf(err error) ErrorKind {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// AsAnalysisError returns err as an *AnalysisError, classifying anything
// unrecognised under fallback.
func AsAnalysisError(err error, op string, fallback ErrorKind) *AnalysisError {
	if err == nil {
		return nil
	}
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae
	}
	return NewError(fallback, op, "", err)
}
