// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package idgen hands out identifiers for processes and runs.
package idgen

import (
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/sonyflake"
)

var epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// FlakeGenerator produces positive int64 IDs that increase roughly in time
// order.
type FlakeGenerator struct {
	sf *sonyflake.Sonyflake
}

func newFlakeGenerator() (*FlakeGenerator, error) {
	sf, err := sonyflake.New(sonyflake.Settings{StartTime: epoch})
	if err != nil {
		return nil, err
	}
	if sf == nil {
		return nil, errors.New("failed to create Sonyflake instance")
	}
	return &FlakeGenerator{sf: sf}, nil
}

// NextID falls back to a random ID when the generator cannot produce one,
// for example when no private IP address is available for the machine ID.
func (g *FlakeGenerator) NextID() int64 {
	if g == nil {
		return rand.Int64()
	}
	v, err := g.sf.NextID()
	if err != nil {
		return rand.Int64()
	}
	return int64(v)
}

var (
	defaultOnce sync.Once
	defaultGen  *FlakeGenerator
)

// InstanceID identifies this process in logs and metrics.
func InstanceID() int64 {
	defaultOnce.Do(func() {
		defaultGen, _ = newFlakeGenerator()
	})
	return defaultGen.NextID()
}

// NewRunID returns a fresh identifier for one import run.
func NewRunID() string {
	return uuid.NewString()
}
