// Copyright 2025 SitePulse Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package safe

import (
	"runtime/debug"

	"github.com/sitepulse/sitepulse/pkg/log"
)

// Go runs fn in a new goroutine and recovers from panics.
func Go(fn func()) {
	go func() {
		defer Recover()
		fn()
	}()
}

// Recover logs a recovered panic with its stack. Use with defer.
func Recover() {
	if r := recover(); r != nil {
		log.Errorw("recovered from panic", "panic", r, "stack", string(debug.Stack()))
	}
}

// Do runs fn synchronously and converts a panic into a logged event.
// Returns true when fn panicked.
func Do(fn func()) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			log.Errorw("recovered from panic", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
	return false
}
