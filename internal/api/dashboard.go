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

package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// Stats counts request outcomes since the server started.
type Stats struct {
	mu       sync.Mutex
	started  time.Time
	answered int64
	degraded int64
	warnings int64
	failures map[model.ErrorKind]int64
}

// StatsSnapshot is the JSON form of Stats.
type StatsSnapshot struct {
	Since    time.Time                 `json:"since"`
	Answered int64                     `json:"answered"`
	Degraded int64                     `json:"degraded"`
	Warnings int64                     `json:"warnings"`
	Failures map[model.ErrorKind]int64 `json:"failures"`
}

// NewStats returns empty counters.
func NewStats() *Stats {
	return &Stats{started: time.Now().UTC(), failures: map[model.ErrorKind]int64{}}
}

// Record adds one result.
func (s *Stats) Record(result *model.AnalysisResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case result.Err != nil:
		s.failures[result.Err.Kind]++
	case result.Warning != "":
		s.warnings++
	default:
		s.answered++
		if result.Degraded {
			s.degraded++
		}
	}
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	failures := make(map[model.ErrorKind]int64, len(s.failures))
	for k, v := range s.failures {
		failures[k] = v
	}
	return StatsSnapshot{
		Since:    s.started,
		Answered: s.answered,
		Degraded: s.degraded,
		Warnings: s.warnings,
		Failures: failures,
	}
}

// Dashboard registers GET /stats.
func Dashboard(r *gin.RouterGroup, stats *Stats) {
	r.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, stats.Snapshot())
	})
}
