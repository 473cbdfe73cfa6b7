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

// Package cor (Chain of Responsibility) provides the building blocks used to
// assemble request pipelines. This file defines `BaseContext`, the default
// implementation of the `Context` interface.
//
// The context is the "property bag" passed through every command of a chain.
// Besides data and errors it tracks the cleanups registered by commands that
// acquire resources (a temporary file, a remote upload). The owner of the
// context defers Close so those resources are released on every exit path,
// whether the chain finished, stopped on an error, or was never started.
package cor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

type cleanup struct {
	name string
	fn   CleanupFunc
}

// BaseContext is the default implementation of the Context interface. It is
// owned by a single request and is not safe for concurrent use.
type BaseContext struct {
	data       map[string]interface{} // Arbitrary values shared between commands.
	errors     map[string]error       // Errors keyed by the command that produced them.
	errorOrder []string               // Keys of errors in the order they were recorded.
	cleanups   []cleanup              // Pending resource releases, run LIFO on Close.
	context    context.Context        // Carries deadlines and trace spans.
}

// NewBaseContext returns an empty context ready for use.
func NewBaseContext() Context {
	return &BaseContext{
		data:     make(map[string]interface{}),
		errors:   make(map[string]error),
		cleanups: make([]cleanup, 0),
	}
}

// SetContext sets the underlying Go context.
func (c *BaseContext) SetContext(context context.Context) {
	c.context = context
}

// GetContext returns the underlying Go context.
func (c *BaseContext) GetContext() context.Context {
	return c.context
}

// AddCleanup registers fn to run on Close.
func (c *BaseContext) AddCleanup(name string, fn CleanupFunc) {
	if fn == nil {
		return
	}
	c.cleanups = append(c.cleanups, cleanup{name: name, fn: fn})
}

// Close runs the registered cleanups in reverse order and forgets them, so a
// second Close does nothing. Failures are logged and joined into the result;
// one failing cleanup never prevents the others from running.
func (c *BaseContext) Close() error {
	pending := c.cleanups
	c.cleanups = nil

	var errs error
	for i := len(pending) - 1; i >= 0; i-- {
		if err := pending[i].fn(); err != nil {
			slog.Error("cleanup failed", "cleanup", pending[i].name, "error", err)
			errs = errors.Join(errs, fmt.Errorf("%s: %w", pending[i].name, err))
		}
	}
	return errs
}

// Add stores a value under key.
func (c *BaseContext) Add(key string, value interface{}) Context {
	c.data[key] = value
	return c
}

// AddError records err against key. The first error recorded for a key wins
// its position in the ordering.
func (c *BaseContext) AddError(key string, err error) {
	if _, exists := c.errors[key]; !exists {
		c.errorOrder = append(c.errorOrder, key)
	}
	c.errors[key] = err
}

// GetErrors returns every recorded error keyed by command name.
func (c *BaseContext) GetErrors() map[string]error {
	return c.errors
}

// FirstError returns the earliest recorded error.
func (c *BaseContext) FirstError() error {
	if len(c.errorOrder) == 0 {
		return nil
	}
	return c.errors[c.errorOrder[0]]
}

// Get retrieves a value by key.
func (c *BaseContext) Get(key string) interface{} {
	return c.data[key]
}

// Remove deletes a key.
func (c *BaseContext) Remove(key string) {
	delete(c.data, key)
}

// HasErrors reports whether any error has been recorded.
func (c *BaseContext) HasErrors() bool {
	return len(c.errors) > 0
}
