package duration

import (
	"encoding/json"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"10", 10 * time.Second, false},
		{"10s", 10 * time.Second, false},
		{"1h30m", 90 * time.Minute, false},
		{"soon", 0, true},
	}

	for _, tt := range tests {
		got, err := Parse(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got.Std() != tt.want {
			t.Errorf("Parse(%q) = %v, want %v", tt.in, got.Std(), tt.want)
		}
	}
}

func TestDuration_OrDefault(t *testing.T) {
	var d Duration
	if d.OrDefault(10*time.Second) != 10*time.Second {
		t.Errorf("expected default for zero value")
	}
	d = Duration(3 * time.Second)
	if d.OrDefault(10*time.Second) != 3*time.Second {
		t.Errorf("expected configured value, got %v", d.OrDefault(10*time.Second))
	}
}

func TestDuration_JSON(t *testing.T) {
	b, err := json.Marshal(Duration(5 * time.Minute))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(b) != `"5m0s"` {
		t.Errorf("expected \"5m0s\", got %s", b)
	}

	var payload struct {
		Delay Duration `json:"delay"`
		Wait  Duration `json:"wait"`
	}
	if err := json.Unmarshal([]byte(`{"delay":"2m","wait":15}`), &payload); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if payload.Delay.Std() != 2*time.Minute {
		t.Errorf("expected 2m, got %v", payload.Delay)
	}
	if payload.Wait.Std() != 15*time.Second {
		t.Errorf("expected 15s, got %v", payload.Wait)
	}

	if err := json.Unmarshal([]byte(`{"delay":true}`), &payload); err == nil {
		t.Error("expected error for boolean duration")
	}
}

func TestDuration_YAML(t *testing.T) {
	var cfg struct {
		Delay   Duration `yaml:"delay"`
		Timeout Duration `yaml:"timeout"`
	}
	if err := yaml.Unmarshal([]byte("delay: 10\ntimeout: 1m30s\n"), &cfg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if cfg.Delay.Std() != 10*time.Second {
		t.Errorf("expected 10s, got %v", cfg.Delay)
	}
	if cfg.Timeout.Std() != 90*time.Second {
		t.Errorf("expected 1m30s, got %v", cfg.Timeout)
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(out) != "delay: 10s\ntimeout: 1m30s\n" {
		t.Errorf("unexpected yaml: %q", out)
	}
}
