package email

import "testing"

func TestDigestSubject(t *testing.T) {
	tests := []struct {
		name  string
		items []AlertDigestItem
		want  string
	}{
		{
			"single symbol",
			[]AlertDigestItem{{Symbol: "AAPL"}},
			"Stock Alert: AAPL",
		},
		{
			"three symbols",
			[]AlertDigestItem{{Symbol: "AAPL"}, {Symbol: "TSLA"}, {Symbol: "MSFT"}},
			"Stock Alert: AAPL, TSLA, MSFT",
		},
		{
			"five symbols truncated",
			[]AlertDigestItem{
				{Symbol: "AAPL"}, {Symbol: "TSLA"}, {Symbol: "MSFT"},
				{Symbol: "GOOG"}, {Symbol: "META"},
			},
			"Stock Alert: AAPL, TSLA, MSFT and 2 more",
		},
		{
			"duplicate symbols collapse",
			[]AlertDigestItem{{Symbol: "AAPL"}, {Symbol: "AAPL"}, {Symbol: "TSLA"}},
			"Stock Alert: AAPL, TSLA",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DigestSubject(tt.items); got != tt.want {
				t.Errorf("DigestSubject = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfigured(t *testing.T) {
	full := NewService(Config{Host: "smtp.example.com", Port: "587", From: "alerts@example.com"})
	if !full.Configured() {
		t.Error("Configured() = false with host, port and from set")
	}

	partial := NewService(Config{Host: "smtp.example.com"})
	if partial.Configured() {
		t.Error("Configured() = true without port and from")
	}
}

func TestSendAlertDigestUnconfigured(t *testing.T) {
	svc := NewService(Config{})
	err := svc.SendAlertDigest("user@example.com", []AlertDigestItem{
		{Symbol: "AAPL", Title: "AAPL rose above $150.00", Message: "AAPL is trading at $151.00"},
	})
	if err == nil {
		t.Error("SendAlertDigest returned nil on unconfigured service, want error")
	}
}

func TestSendAlertDigestEmptyItems(t *testing.T) {
	svc := NewService(Config{})
	if err := svc.SendAlertDigest("user@example.com", nil); err != nil {
		t.Errorf("SendAlertDigest with no items = %v, want nil", err)
	}
}

func TestNewServiceDefaultFromName(t *testing.T) {
	svc := NewService(Config{From: "alerts@example.com"})
	if svc.config.FromName != "Stock Alerts" {
		t.Errorf("default from name = %q, want Stock Alerts", svc.config.FromName)
	}
}
