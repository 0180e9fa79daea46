package outputs

import (
	"testing"
	"time"

	"github.com/smazurov/outputnode/internal/handles"
)

func TestReconnectPolicy_FixedDelay(t *testing.T) {
	p := ReconnectPolicy{Enabled: true, MaxRetries: 3, RetryDelay: 4 * time.Second}

	for attempt := 1; attempt <= 3; attempt++ {
		d, ok := p.Next(attempt)
		if !ok || d != 4*time.Second {
			t.Errorf("attempt %d: expected (4s, true), got (%v, %v)", attempt, d, ok)
		}
	}
	if _, ok := p.Next(4); ok {
		t.Error("Expected attempt beyond MaxRetries to be refused")
	}
	if _, ok := (ReconnectPolicy{MaxRetries: 3, RetryDelay: time.Second}).Next(1); ok {
		t.Error("Expected disabled policy to refuse")
	}
}

func TestReconnectPolicy_SettingsRoundTrip(t *testing.T) {
	p := ReconnectPolicy{Enabled: true, MaxRetries: 7, RetryDelay: 10 * time.Second}
	got := ReconnectPolicyFromSettings(p.Settings())
	if got != p {
		t.Errorf("Expected %+v, got %+v", p, got)
	}

	def := ReconnectPolicyFromSettings(handles.Settings{})
	if def != DefaultReconnectPolicy() {
		t.Errorf("Expected defaults, got %+v", def)
	}
}

func TestNetworkSettings_Validate(t *testing.T) {
	tests := []struct {
		name    string
		n       NetworkSettings
		wantErr bool
	}{
		{"empty", NetworkSettings{}, false},
		{"default bind", NetworkSettings{BindIP: "default", IPFamily: IPFamilyAny}, false},
		{"ipv4 on ipv4", NetworkSettings{BindIP: "192.168.1.10", IPFamily: IPFamilyIPv4}, false},
		{"ipv6 on ipv6", NetworkSettings{BindIP: "fe80::1", IPFamily: IPFamilyIPv6}, false},
		{"ipv6 on ipv4", NetworkSettings{BindIP: "fe80::1", IPFamily: IPFamilyIPv4}, true},
		{"ipv4 on ipv6", NetworkSettings{BindIP: "10.0.0.1", IPFamily: IPFamilyIPv6}, true},
		{"garbage address", NetworkSettings{BindIP: "eth0"}, true},
		{"unknown family", NetworkSettings{IPFamily: "IPX"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.n.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStopMessage(t *testing.T) {
	if StopMessage(StopSuccess, "ignored") != "" {
		t.Error("Expected empty message for success")
	}
	if got := StopMessage(StopNoSpace, ""); got != StopNoSpace.Message() {
		t.Errorf("Unexpected message %q", got)
	}
	if got := StopCode(-42).Message(); got != StopError.Message() {
		t.Errorf("Expected unknown code to map to generic error, got %q", got)
	}
}
