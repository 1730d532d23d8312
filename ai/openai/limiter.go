// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package openai

import (
	"context"

	"golang.org/x/time/rate"
)

// limiter throttles calls to one model with a token bucket. A nil limiter
// never blocks.
type limiter struct {
	bucket *rate.Limiter
}

// newLimiter returns a limiter allowing rps sustained requests per second
// with a burst of the same size rounded up. A non-positive rps disables
// throttling.
func newLimiter(rps float64) *limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if float64(burst) < rps {
		burst++
	}
	return &limiter{bucket: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a request can be made without exceeding the rate limit.
func (l *limiter) Wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}
	return l.bucket.Wait(ctx)
}
