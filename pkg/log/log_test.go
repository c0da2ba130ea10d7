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

package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConf_Validate(t *testing.T) {
	tests := []struct {
		name    string
		conf    *Conf
		wantErr bool
	}{
		{"stdout defaults", &Conf{}, false},
		{"file without path", &Conf{Output: "file"}, true},
		{"file with path", &Conf{Output: "file", Path: "/tmp/logs"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.conf.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConf_SetDefaults(t *testing.T) {
	c := &Conf{}
	c.SetDefaults()
	if c.Output != "stdout" || c.Level != "INFO" {
		t.Errorf("SetDefaults() = %+v", c)
	}
	if c.Filename == "" || c.RotateSize <= 0 || c.RotateNum <= 0 || c.KeepDays <= 0 {
		t.Errorf("SetDefaults() did not fill rotation fields: %+v", c)
	}

	c = &Conf{Output: "file", Path: "/var/log/sp", Level: "DEBUG"}
	c.SetDefaults()
	if c.Output != "file" || c.Path != "/var/log/sp" || c.Level != "DEBUG" {
		t.Errorf("SetDefaults() overwrote set fields: %+v", c)
	}
}

func TestConf_ValidateNormalizes(t *testing.T) {
	c := &Conf{Output: "file", Path: "/tmp/logs"}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	if c.Filename == "" || c.RotateSize <= 0 || c.RotateNum <= 0 || c.KeepDays <= 0 {
		t.Errorf("Validate() did not fill defaults: %+v", c)
	}
}

func TestNew_FileOutput(t *testing.T) {
	dir := t.TempDir()
	conf := &Conf{
		Output:   "file",
		Path:     dir,
		Filename: "test.log",
		Level:    "DEBUG",
	}
	l, err := New(conf)
	if err != nil {
		t.Fatal(err)
	}
	l.Infow("hello", "key", "value")
	_ = l.Sync()

	data, err := os.ReadFile(filepath.Join(dir, "test.log"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("log file does not contain written entry: %s", data)
	}
}

func TestGlobalMethods(t *testing.T) {
	if _, err := New(&Conf{Output: "stdout", Level: "DEBUG"}); err != nil {
		t.Fatal(err)
	}
	// Must not panic.
	Debug("d")
	Debugw("dw", "k", 1)
	Info("i")
	Infow("iw", "k", 1)
	Warnw("ww", "k", 1)
	Errorw("ew", "k", 1)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]string{
		"debug":   "debug",
		"WARN":    "warn",
		"warning": "warn",
		"error":   "error",
		"":        "info",
		"bogus":   "info",
	} {
		if got := parseLevel(in).String(); got != want {
			t.Errorf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
