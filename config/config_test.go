package config

import (
	"testing"
	"time"
)

func TestParseDailyTime(t *testing.T) {
	tests := []struct {
		in      string
		hour    int
		minute  int
		wantErr bool
	}{
		{"06:00", 6, 0, false},
		{"00:00", 0, 0, false},
		{"23:59", 23, 59, false},
		{"9:30", 9, 30, false},
		{"24:00", 0, 0, true},
		{"12:60", 0, 0, true},
		{"-1:00", 0, 0, true},
		{"noon", 0, 0, true},
		{"", 0, 0, true},
	}

	for _, tt := range tests {
		hour, minute, err := ParseDailyTime(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDailyTime(%q) = (%d, %d), want error", tt.in, hour, minute)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDailyTime(%q) error: %v", tt.in, err)
			continue
		}
		if hour != tt.hour || minute != tt.minute {
			t.Errorf("ParseDailyTime(%q) = (%d, %d), want (%d, %d)", tt.in, hour, minute, tt.hour, tt.minute)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := &Config{
		FinnhubConfig: FinnhubConfig{APIKey: "key"},
		RefreshConfig: RefreshConfig{DailyTime: "06:00"},
		AlertsConfig:  AlertsConfig{CheckInterval: time.Minute},
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}

	missingKey := *valid
	missingKey.FinnhubConfig.APIKey = ""
	if err := missingKey.Validate(); err == nil {
		t.Error("Validate() = nil without API key, want error")
	}

	badTime := *valid
	badTime.RefreshConfig.DailyTime = "25:00"
	if err := badTime.Validate(); err == nil {
		t.Error("Validate() = nil with bad refresh time, want error")
	}

	shortInterval := *valid
	shortInterval.AlertsConfig.CheckInterval = 500 * time.Millisecond
	if err := shortInterval.Validate(); err == nil {
		t.Error("Validate() = nil with sub-second interval, want error")
	}
}

func TestApplyEnvOverridesDefaults(t *testing.T) {
	cfg := &Config{}
	applyEnvOverrides(cfg)

	if cfg.FinnhubConfig.BaseURL != "https://finnhub.io/api/v1" {
		t.Errorf("base URL default = %q", cfg.FinnhubConfig.BaseURL)
	}
	if cfg.FinnhubConfig.WSURL != "wss://ws.finnhub.io" {
		t.Errorf("ws URL default = %q", cfg.FinnhubConfig.WSURL)
	}
	if cfg.AlertsConfig.CheckInterval != 60*time.Second {
		t.Errorf("check interval default = %v, want 60s", cfg.AlertsConfig.CheckInterval)
	}
	if cfg.AlertsConfig.MaxAlertsPerUser != 50 {
		t.Errorf("max alerts default = %d, want 50", cfg.AlertsConfig.MaxAlertsPerUser)
	}
	if cfg.RefreshConfig.DailyTime != "06:00" {
		t.Errorf("daily refresh default = %q, want 06:00", cfg.RefreshConfig.DailyTime)
	}
}

func TestEnvOverrideTakesPrecedence(t *testing.T) {
	t.Setenv("ALERT_CHECK_INTERVAL", "30")
	t.Setenv("DAILY_REFRESH_TIME", "07:15")

	cfg := &Config{}
	applyEnvOverrides(cfg)

	if cfg.AlertsConfig.CheckInterval != 30*time.Second {
		t.Errorf("check interval = %v, want 30s from env", cfg.AlertsConfig.CheckInterval)
	}
	if cfg.RefreshConfig.DailyTime != "07:15" {
		t.Errorf("daily refresh = %q, want 07:15 from env", cfg.RefreshConfig.DailyTime)
	}
}
