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

// Package cloud contains data structures and utilities for interacting with
// Google Cloud services. This file defines the reference to a staged media
// object in Google Cloud Storage.
package cloud

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const gcsScheme = "gs://"

// GCSObject is a minimal reference to an object in a bucket.
type GCSObject struct {
	Bucket   string // The name of the GCS bucket.
	Name     string // The name of the object.
	MIMEType string // The MIME type of the object (e.g., "video/mp4").
}

// URI returns the gs:// form understood by Vertex AI file parts.
func (o GCSObject) URI() string {
	return gcsScheme + o.Bucket + "/" + o.Name
}

// ParseGCSURI splits a gs://bucket/object URI.
func ParseGCSURI(uri string) (GCSObject, error) {
	rest, ok := strings.CutPrefix(uri, gcsScheme)
	if !ok {
		return GCSObject{}, fmt.Errorf("not a gcs uri: %q", uri)
	}
	bucket, name, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || name == "" {
		return GCSObject{}, fmt.Errorf("gcs uri needs a bucket and an object name: %q", uri)
	}
	return GCSObject{Bucket: bucket, Name: name}, nil
}

// NewStagingObject names a fresh object under prefix in bucket. Names are
// unique per call so concurrent uploads never collide.
func NewStagingObject(bucket, prefix, suffix, mimeType string) GCSObject {
	return GCSObject{
		Bucket:   bucket,
		Name:     prefix + uuid.NewString() + suffix,
		MIMEType: mimeType,
	}
}
