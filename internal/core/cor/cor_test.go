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

package cor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// appendCommand appends its suffix to the string input, or fails when err is set.
type appendCommand struct {
	cor.BaseCommand
	suffix string
	err    error
	ran    *int
}

func newAppendCommand(name, suffix string, err error, ran *int) *appendCommand {
	return &appendCommand{BaseCommand: *cor.NewBaseCommand(name), suffix: suffix, err: err, ran: ran}
}

func (a *appendCommand) Execute(context cor.Context) {
	*a.ran++
	if a.err != nil {
		a.Fail(context, a.err)
		return
	}
	in := context.Get(a.GetInputParam()).(string)
	a.Succeed(context)
	context.Add(a.GetOutputParam(), in+a.suffix)
}

func newContext(in string) cor.Context {
	c := cor.NewBaseContext()
	c.SetContext(context.Background())
	c.Add(cor.CtxIn, in)
	return c
}

// TestChainPipesOutputToInput verifies the CtxOut -> CtxIn flip-flop between commands.
func TestChainPipesOutputToInput(t *testing.T) {
	ran := 0
	chain := cor.NewBaseChain("pipe").
		AddCommand(newAppendCommand("a", "-a", nil, &ran)).
		AddCommand(newAppendCommand("b", "-b", nil, &ran))

	c := newContext("start")
	chain.Execute(c)

	assert.False(t, c.HasErrors())
	assert.Equal(t, 2, ran)
	assert.Equal(t, "start-a-b", c.Get(cor.CtxIn))
	assert.Nil(t, c.Get(cor.CtxOut))
}

// TestChainStopsOnFirstFailure verifies that later commands are skipped and
// the first error is reported.
func TestChainStopsOnFirstFailure(t *testing.T) {
	ran := 0
	boom := errors.New("boom")
	chain := cor.NewBaseChain("stop").
		AddCommand(newAppendCommand("a", "-a", boom, &ran)).
		AddCommand(newAppendCommand("b", "-b", nil, &ran))

	c := newContext("start")
	chain.Execute(c)

	assert.Equal(t, 1, ran)
	assert.ErrorIs(t, c.FirstError(), boom)
	assert.Len(t, c.GetErrors(), 1)
}

func TestChainContinueOnFailure(t *testing.T) {
	ran := 0
	chain := cor.NewBaseChain("continue").ContinueOnFailure(true).
		AddCommand(newAppendCommand("a", "-a", errors.New("first"), &ran)).
		AddCommand(newAppendCommand("b", "-b", errors.New("second"), &ran))

	c := newContext("start")
	chain.Execute(c)

	assert.Equal(t, 2, ran)
	assert.EqualError(t, c.FirstError(), "first")
	assert.Len(t, c.GetErrors(), 2)
}

// TestChainFailedCommandKeepsInput verifies that a command which failed
// without writing output leaves the input for the next command.
func TestChainFailedCommandKeepsInput(t *testing.T) {
	ran := 0
	chain := cor.NewBaseChain("keep-input").ContinueOnFailure(true).
		AddCommand(newAppendCommand("a", "-a", errors.New("first"), &ran)).
		AddCommand(newAppendCommand("b", "-b", nil, &ran))

	c := newContext("start")
	chain.Execute(c)

	assert.Equal(t, 2, ran)
	assert.Equal(t, "start-b", c.Get(cor.CtxIn))
	assert.Nil(t, c.Get(cor.CtxOut))
	assert.EqualError(t, c.FirstError(), "first")
}

// TestChainMissingInput verifies that a command without input is recorded as
// an error instead of being skipped silently.
func TestChainMissingInput(t *testing.T) {
	ran := 0
	chain := cor.NewBaseChain("missing").AddCommand(newAppendCommand("a", "-a", nil, &ran))

	c := cor.NewBaseContext()
	c.SetContext(context.Background())
	chain.Execute(c)

	assert.Equal(t, 0, ran)
	require.Error(t, c.FirstError())
	assert.Contains(t, c.FirstError().Error(), "not executable")
}

// TestCloseRunsCleanupsOnceInReverse verifies LIFO order, that a failure does
// not stop other cleanups, and that a second Close is a no-op.
func TestCloseRunsCleanupsOnceInReverse(t *testing.T) {
	var order []string
	c := cor.NewBaseContext()
	c.AddCleanup("local", func() error { order = append(order, "local"); return nil })
	c.AddCleanup("remote", func() error { order = append(order, "remote"); return errors.New("gone") })
	c.AddCleanup("nil", nil)

	err := c.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote")
	assert.Equal(t, []string{"remote", "local"}, order)

	assert.NoError(t, c.Close())
	assert.Equal(t, []string{"remote", "local"}, order)
}
