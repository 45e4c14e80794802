package config_test

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"veloj/pkg/utils/config"
)

func TestDurationUnmarshalYAML(t *testing.T) {
	var doc struct {
		Timeout config.Duration `yaml:"timeout"`
	}
	if err := yaml.Unmarshal([]byte("timeout: 2s\n"), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.Timeout.Std() != 2*time.Second {
		t.Fatalf("timeout = %v, want 2s", doc.Timeout.Std())
	}
}

func TestDurationUnmarshalRejectsGarbage(t *testing.T) {
	var doc struct {
		Timeout config.Duration `yaml:"timeout"`
	}
	if err := yaml.Unmarshal([]byte("timeout: soon\n"), &doc); err == nil {
		t.Fatal("expected an error for a non-duration value")
	}
}

func TestDurationMarshalRoundTrip(t *testing.T) {
	type doc struct {
		Timeout config.Duration `yaml:"timeout"`
	}
	out, err := yaml.Marshal(doc{Timeout: config.Duration(1500 * time.Millisecond)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back doc
	if err := yaml.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal %q: %v", out, err)
	}
	if back.Timeout.Std() != 1500*time.Millisecond {
		t.Fatalf("round trip = %v, want 1.5s", back.Timeout.Std())
	}
}
