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

// Package services contains the components that talk to the outside world:
// the local temporary media store and the remote analysis transports.
// This file, `temp_media_store.go`, writes uploads to uniquely named local
// files so the SDKs can upload them by path.
package services

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// MediaStore persists an upload for the duration of one request.
type MediaStore interface {
	// Store copies media into a new uniquely named file. Failures are
	// *model.AnalysisError values of kind io_failure and leave nothing behind.
	Store(ctx context.Context, media *model.UploadedMedia) (*model.TemporaryFileHandle, error)

	// Release deletes the file. Releasing a file that is already gone is not
	// an error, so Release is safe to call unconditionally.
	Release(handle *model.TemporaryFileHandle) error
}

// TempMediaStore is a MediaStore backed by the local file system.
type TempMediaStore struct {
	Dir    string // Directory for the files; empty means os.TempDir().
	Prefix string // File name prefix.
}

// NewTempMediaStore returns a store writing to dir with the given prefix.
func NewTempMediaStore(dir, prefix string) *TempMediaStore {
	return &TempMediaStore{Dir: dir, Prefix: prefix}
}

// Store writes media.Content to a new file named <prefix><random><suffix>.
// Concurrent calls never share a file.
func (s *TempMediaStore) Store(ctx context.Context, media *model.UploadedMedia) (*model.TemporaryFileHandle, error) {
	const op = "store"
	if media == nil || media.Content == nil {
		return nil, model.NewError(model.KindIOFailure, op, "no media content", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, model.NewError(model.KindIOFailure, op, "", err)
	}

	file, err := os.CreateTemp(s.Dir, s.Prefix+"*"+media.Format.Suffix())
	if err != nil {
		return nil, model.NewError(model.KindIOFailure, op, "", err)
	}

	size, err := io.Copy(file, media.Content)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		if rmErr := os.Remove(file.Name()); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			slog.WarnContext(ctx, "failed to remove partial temporary file", "path", file.Name(), "error", rmErr)
		}
		return nil, model.NewError(model.KindIOFailure, op, "", err)
	}

	slog.DebugContext(ctx, "stored media", "path", file.Name(), "size", size, "format", media.Format)
	return &model.TemporaryFileHandle{
		Path:        file.Name(),
		DisplayName: media.Name,
		Format:      media.Format,
		MIMEType:    media.GetMIMEType(),
		Size:        size,
	}, nil
}

// Release removes the file referenced by handle.
func (s *TempMediaStore) Release(handle *model.TemporaryFileHandle) error {
	if handle == nil || handle.Path == "" {
		return nil
	}
	if err := os.Remove(handle.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return model.NewError(model.KindIOFailure, "release", "", err)
	}
	return nil
}
