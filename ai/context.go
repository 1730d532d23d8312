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

package ai

import "context"

type callInfoKey struct{}

// CallInfo identifies who a model call is made for and why. It is attached
// to usage records.
type CallInfo struct {
	Owner string
	Task  string
}

// WithCallInfo returns a context carrying the owner and task of the model
// calls made with it.
func WithCallInfo(ctx context.Context, owner, task string) context.Context {
	return context.WithValue(ctx, callInfoKey{}, CallInfo{Owner: owner, Task: task})
}

// CallInfoFrom returns the call info carried by ctx, or the zero value.
func CallInfoFrom(ctx context.Context) CallInfo {
	info, _ := ctx.Value(callInfoKey{}).(CallInfo)
	return info
}
