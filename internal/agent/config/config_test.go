package config

import (
	"os"
	"testing"
)

func TestLoad_RejectsInvalidMode(t *testing.T) {
	if _, err := Load("bogus", 0, false, "30s", 99, "out", false, "", false); err == nil {
		t.Fatal("expected an error for an invalid mode")
	}
}

func TestLoad_RejectsSampleRateAboveLimit(t *testing.T) {
	if _, err := Load("cpu", 0, false, "30s", 10001, "out", false, "", false); err == nil {
		t.Fatal("expected an error for sample rate above 10000 Hz")
	}
}

func TestLoad_RejectsMalformedDuration(t *testing.T) {
	if _, err := Load("cpu", 0, false, "not-a-duration", 99, "out", false, "", false); err == nil {
		t.Fatal("expected an error for a malformed duration")
	}
}

func TestLoad_DefaultsSampleRateWhenUnset(t *testing.T) {
	cfg, err := Load("cpu", 0, false, "30s", 0, "out", false, "", false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SampleRateHz != 99 {
		t.Errorf("SampleRateHz = %d, want default 99", cfg.SampleRateHz)
	}
}

func TestLoad_SetsPIDOnlyWhenRequested(t *testing.T) {
	cfg, err := Load("cpu", 1234, true, "30s", 99, "out", false, "", false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PID == nil || *cfg.PID != 1234 {
		t.Errorf("PID = %v, want 1234", cfg.PID)
	}

	cfg2, err := Load("cpu", 0, false, "30s", 99, "out", false, "", false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg2.PID != nil {
		t.Errorf("PID = %v, want nil", cfg2.PID)
	}
}

func TestLoad_LowOverheadEnvOverridesSampleRateAndInterval(t *testing.T) {
	os.Setenv("APERTURE_LOW_OVERHEAD", "1")
	defer os.Unsetenv("APERTURE_LOW_OVERHEAD")

	cfg, err := Load("cpu", 0, false, "30s", 999, "out", false, "", false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SampleRateHz != 49 {
		t.Errorf("SampleRateHz = %d, want 49 under low-overhead preset", cfg.SampleRateHz)
	}
	if cfg.PushInterval.Seconds() != 10 {
		t.Errorf("PushInterval = %v, want 10s under low-overhead preset", cfg.PushInterval)
	}
}

func TestOutputPath_DerivesPerKindOnlyInAllMode(t *testing.T) {
	cfg, err := Load("all", 0, false, "30s", 99, "trace", false, "", false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.OutputPath(ModeCPU); got != "trace.cpu.svg" {
		t.Errorf("OutputPath(cpu) = %q, want trace.cpu.svg", got)
	}

	cfg2, err := Load("cpu", 0, false, "30s", 99, "trace", false, "", false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg2.OutputPath(ModeCPU); got != "trace" {
		t.Errorf("OutputPath(cpu) in single mode = %q, want unchanged trace", got)
	}
}

func TestOutputPath_JSONUsesTxtExtension(t *testing.T) {
	cfg, err := Load("all", 0, false, "30s", 99, "trace", true, "", false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.OutputPath(ModeLock); got != "trace.lock.txt" {
		t.Errorf("OutputPath(lock) = %q, want trace.lock.txt", got)
	}
}

func TestActiveModes_AllExpandsToThreeKinds(t *testing.T) {
	cfg, err := Load("all", 0, false, "30s", 99, "trace", false, "", false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	got := cfg.ActiveModes()
	if len(got) != 3 {
		t.Fatalf("ActiveModes() = %v, want 3 entries", got)
	}
}

func TestActiveModes_SingleModeReturnsOneEntry(t *testing.T) {
	cfg, err := Load("syscall", 0, false, "30s", 99, "trace", false, "", false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	got := cfg.ActiveModes()
	if len(got) != 1 || got[0] != ModeSyscall {
		t.Errorf("ActiveModes() = %v, want [syscall]", got)
	}
}
