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

package env

import (
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("SITEPULSE_TEST_STR", "value")
	if got := GetEnv("SITEPULSE_TEST_STR", "def"); got != "value" {
		t.Fatalf("GetEnv = %q, want %q", got, "value")
	}
	if got := GetEnv("SITEPULSE_TEST_STR_UNSET", "def"); got != "def" {
		t.Fatalf("GetEnv unset = %q, want %q", got, "def")
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("SITEPULSE_TEST_INT", "42")
	if got := GetEnvInt("SITEPULSE_TEST_INT", 7); got != 42 {
		t.Fatalf("GetEnvInt = %d, want 42", got)
	}

	t.Setenv("SITEPULSE_TEST_INT", "not-a-number")
	if got := GetEnvInt("SITEPULSE_TEST_INT", 7); got != 7 {
		t.Fatalf("GetEnvInt invalid value = %d, want 7", got)
	}

	t.Setenv("SITEPULSE_TEST_INT", "")
	if got := GetEnvInt("SITEPULSE_TEST_INT", 7); got != 7 {
		t.Fatalf("GetEnvInt empty value = %d, want 7", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("SITEPULSE_TEST_BOOL", "true")
	if got := GetEnvBool("SITEPULSE_TEST_BOOL", false); got != true {
		t.Fatalf("GetEnvBool true = %v, want true", got)
	}

	t.Setenv("SITEPULSE_TEST_BOOL", "nope")
	if got := GetEnvBool("SITEPULSE_TEST_BOOL", true); got != true {
		t.Fatalf("GetEnvBool invalid value = %v, want true", got)
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("SITEPULSE_TEST_DUR", "90s")
	if got := GetEnvDuration("SITEPULSE_TEST_DUR", time.Minute); got != 90*time.Second {
		t.Fatalf("GetEnvDuration = %v, want 90s", got)
	}

	t.Setenv("SITEPULSE_TEST_DUR", "later")
	if got := GetEnvDuration("SITEPULSE_TEST_DUR", time.Minute); got != time.Minute {
		t.Fatalf("GetEnvDuration invalid value = %v, want 1m", got)
	}
}
