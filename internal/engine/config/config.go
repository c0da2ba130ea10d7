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

package config

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/sitepulse/sitepulse/internal/pkg/notify/channel"
	"github.com/sitepulse/sitepulse/pkg/database"
	"github.com/sitepulse/sitepulse/pkg/http"
	"github.com/sitepulse/sitepulse/pkg/log"
	"github.com/sitepulse/sitepulse/pkg/metrics"
)

// EngineConfig tunes the orchestrator.
type EngineConfig struct {
	// RunTimeoutMinutes marks a run as timed out after this long without
	// any stage activity. 0 disables the sweep.
	RunTimeoutMinutes int `mapstructure:"runTimeoutMinutes"`
	// SweepIntervalSeconds is how often the timeout sweep runs.
	SweepIntervalSeconds int `mapstructure:"sweepIntervalSeconds"`
}

func (c *EngineConfig) SetDefaults() {
	if c.RunTimeoutMinutes == 0 {
		c.RunTimeoutMinutes = 30
	}
	if c.SweepIntervalSeconds == 0 {
		c.SweepIntervalSeconds = 60
	}
}

// CustomRule is a user-defined alert rule evaluated against completed runs.
// When is an expr expression over the run, e.g.
// `run.Duration > 60000 && run.Trigger.Type == "git"`.
type CustomRule struct {
	Name     string `mapstructure:"name"`
	Severity string `mapstructure:"severity"`
	When     string `mapstructure:"when"`
}

// AlertsConfig carries compiled-in alert defaults. Persisted settings
// override these; per-call arguments override both.
type AlertsConfig struct {
	SlowPipelineMs   int64        `mapstructure:"slowPipelineMs"`
	ErrorRatePct     float64      `mapstructure:"errorRatePct"`
	WebhookLatencyMs int64        `mapstructure:"webhookLatencyMs"`
	CooldownSeconds  int          `mapstructure:"cooldownSeconds"`
	Rules            []CustomRule `mapstructure:"rules"`
}

func (c *AlertsConfig) SetDefaults() {
	if c.SlowPipelineMs == 0 {
		c.SlowPipelineMs = 5 * 60 * 1000
	}
	if c.ErrorRatePct == 0 {
		c.ErrorRatePct = 10
	}
	if c.WebhookLatencyMs == 0 {
		c.WebhookLatencyMs = 10 * 1000
	}
	if c.CooldownSeconds == 0 {
		c.CooldownSeconds = 300
	}
}

// AnalyticsConfig tunes anomaly detection and snapshot retention.
type AnalyticsConfig struct {
	StdDevMultiplier  float64 `mapstructure:"stdDevMultiplier"`
	RatioMultiplier   float64 `mapstructure:"ratioMultiplier"`
	SnapshotRetention int     `mapstructure:"snapshotRetention"`
	ReportIntervalHrs int     `mapstructure:"reportIntervalHours"` // periodic snapshot refresh
}

func (c *AnalyticsConfig) SetDefaults() {
	if c.StdDevMultiplier == 0 {
		c.StdDevMultiplier = 2
	}
	if c.RatioMultiplier == 0 {
		c.RatioMultiplier = 1.5
	}
	if c.SnapshotRetention == 0 {
		c.SnapshotRetention = 50
	}
	if c.ReportIntervalHrs == 0 {
		c.ReportIntervalHrs = 24
	}
}

// MaintenanceConfig tunes the retention job.
type MaintenanceConfig struct {
	IntervalHours int `mapstructure:"intervalHours"`
	RetentionDays int `mapstructure:"retentionDays"`
}

func (c *MaintenanceConfig) SetDefaults() {
	if c.IntervalHours == 0 {
		c.IntervalHours = 6
	}
	if c.RetentionDays == 0 {
		c.RetentionDays = 90
	}
}

// ScheduledTrigger starts a pipeline run on a cron schedule.
type ScheduledTrigger struct {
	Name string `mapstructure:"name"`
	Cron string `mapstructure:"cron"`
}

// TriggersConfig lists the cron-driven trigger sources.
type TriggersConfig struct {
	Scheduled []ScheduledTrigger `mapstructure:"scheduled"`
}

// NotifyConfig configures notification channels that need more than the
// per-channel settings row.
type NotifyConfig struct {
	Email channel.EmailConfig `mapstructure:"email"`
}

type AppConfig struct {
	Log         log.Conf              `mapstructure:"log"`
	Http        http.Http             `mapstructure:"http"`
	Database    database.Database     `mapstructure:"database"`
	Metrics     metrics.MetricsConfig `mapstructure:"metrics"`
	Engine      EngineConfig          `mapstructure:"engine"`
	Alerts      AlertsConfig          `mapstructure:"alerts"`
	Analytics   AnalyticsConfig       `mapstructure:"analytics"`
	Maintenance MaintenanceConfig     `mapstructure:"maintenance"`
	Triggers    TriggersConfig        `mapstructure:"triggers"`
	Notify      NotifyConfig          `mapstructure:"notify"`
}

func (c *AppConfig) SetDefaults() {
	c.Log.SetDefaults()
	c.Http.SetDefaults()
	c.Metrics.SetDefaults()
	c.Engine.SetDefaults()
	c.Alerts.SetDefaults()
	c.Analytics.SetDefaults()
	c.Maintenance.SetDefaults()
	c.Notify.Email.SetDefaults()
}

var (
	cfg  AppConfig
	mu   sync.RWMutex // 保护配置的读写
	once sync.Once
)

func NewConf(confFile string) *AppConfig {
	once.Do(func() {
		var err error
		cfg, err = LoadConfigFile(confFile)
		if err != nil {
			panic(fmt.Sprintf("load config file error: %s", err))
		}
	})
	mu.RLock()
	defer mu.RUnlock()
	return &cfg
}

// GetConfig 获取当前配置（用于热重载场景）
func GetConfig() AppConfig {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// LoadConfigFile load config file
func LoadConfigFile(confFile string) (AppConfig, error) {
	config := viper.New()
	config.SetConfigFile(confFile)
	if err := config.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("failed to read configuration file: %v", err)
	}

	config.WatchConfig()
	config.OnConfigChange(func(e fsnotify.Event) {
		log.Infow("The configuration changes, re-analyze the configuration file", "file", e.Name)
		if err := config.ReadInConfig(); err != nil {
			log.Errorw("failed to re-read configuration file", "error", err, "file", e.Name)
			return
		}
		// 使用写锁保护配置更新
		mu.Lock()
		if err := config.Unmarshal(&cfg); err != nil {
			mu.Unlock()
			log.Errorw("failed to unmarshal configuration file", "error", err, "file", e.Name)
			return
		}
		cfg.SetDefaults()
		mu.Unlock()
		log.Infow("configuration reloaded successfully", "file", e.Name)
	})
	if err := config.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal configuration file: %v", err)
	}
	cfg.SetDefaults()
	log.Infow("config file loaded",
		"path", confFile,
	)

	return cfg, nil
}
