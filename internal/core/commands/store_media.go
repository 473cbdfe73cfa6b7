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
// Responsibility (COR) pattern's Command interface. This file defines the
// command that writes the upload to a temporary local file.
//
// Logic Flow:
//  1. The *model.UploadedMedia is read from the input parameter.
//  2. The media store copies it to a uniquely named file.
//  3. Releasing that file is registered as a cleanup on the chain context, so
//     it is deleted exactly once however the chain ends. A failed release is
//     recorded on the context as an io_failure.
//  4. The handle is written to the output parameter and to ParamTemporaryFile.
package commands

import (
	"log/slog"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
)

// StoreMedia copies the uploaded bytes into the temporary media store.
type StoreMedia struct {
	cor.BaseCommand
	store services.MediaStore
}

// NewStoreMedia is the constructor for the StoreMedia command.
func NewStoreMedia(name string, store services.MediaStore) *StoreMedia {
	return &StoreMedia{BaseCommand: *cor.NewBaseCommand(name), store: store}
}

// Execute stores the media and registers its release.
func (c *StoreMedia) Execute(context cor.Context) {
	media, ok := context.Get(c.GetInputParam()).(*model.UploadedMedia)
	if !ok {
		c.Fail(context, model.NewError(model.KindIOFailure, c.GetName(), "no uploaded media in context", nil))
		return
	}

	handle, err := c.store.Store(context.GetContext(), media)
	if err != nil {
		c.Fail(context, err)
		return
	}

	context.AddCleanup(c.GetName(), func() error {
		if err := c.store.Release(handle); err != nil {
			context.AddError(c.GetName()+".release", model.AsAnalysisError(err, "release_media", model.KindIOFailure))
			return err
		}
		return nil
	})

	c.Succeed(context)
	slog.InfoContext(context.GetContext(), "media stored", "path", handle.Path, "bytes", handle.Size)
	context.Add(ParamTemporaryFile, handle)
	context.Add(c.GetOutputParam(), handle)
}
