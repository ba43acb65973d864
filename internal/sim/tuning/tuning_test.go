package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsAreSane(t *testing.T) {
	d := Defaults()
	if d.TickRateHz <= 0 {
		t.Fatal("tick rate must be positive")
	}
	if d.InteractRadius <= 0 || d.AggroRadius <= 0 {
		t.Fatal("radii must be positive")
	}
	if d.SubmitMax <= 0 {
		t.Fatal("submit cap must be positive")
	}
}

func TestLoadShippedTuning(t *testing.T) {
	got, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.TickRateHz != 20 {
		t.Fatalf("tick_rate_hz = %d, want 20", got.TickRateHz)
	}
	if got.ProtocolVersion != "1.0" {
		t.Fatalf("protocol_version = %q", got.ProtocolVersion)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte("aggro_radius: 12.5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.AggroRadius != 12.5 {
		t.Fatalf("aggro_radius = %v, want 12.5", got.AggroRadius)
	}
	// Fields the file omits keep their defaults.
	if got.TickRateHz != Defaults().TickRateHz {
		t.Fatalf("tick_rate_hz = %d, want default %d", got.TickRateHz, Defaults().TickRateHz)
	}
}

func TestLoadRejectsZeroTickRate(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte("tick_rate_hz: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(p); err == nil {
		t.Fatal("expected error")
	}
}
