// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package daemonconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	pderrors "github.com/perimeterd/perimeterd/internal/errors"
	"github.com/perimeterd/perimeterd/internal/logging"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "perimeterd.hcl")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestDefaultPassesValidation(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default() should validate, got: %v", err)
	}
}

func TestLoadFillsOmittedFieldsFromDefault(t *testing.T) {
	path := writeConfig(t, `listen_addr = "0.0.0.0:9999"`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != "0.0.0.0:9999" {
		t.Errorf("ListenAddr = %q, want overridden value", cfg.ListenAddr)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want default", cfg.LogLevel)
	}
	if cfg.SockDiagTimeout != "2s" {
		t.Errorf("SockDiagTimeout = %q, want default", cfg.SockDiagTimeout)
	}
}

func TestLoadRejectsMalformedHCL(t *testing.T) {
	path := writeConfig(t, `listen_addr = `)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for malformed HCL")
	}
}

func TestLoadRejectsInvalidSockDiagTimeout(t *testing.T) {
	path := writeConfig(t, `sockdiag_timeout = "not-a-duration"`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected an error for invalid sockdiag_timeout")
	}
	if pderrors.GetKind(err) != pderrors.KindValidation {
		t.Errorf("expected KindValidation, got %v", pderrors.GetKind(err))
	}
}

func TestLoadRejectsUnknownLogLevel(t *testing.T) {
	path := writeConfig(t, `log_level = "trace"`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for unrecognized log_level")
	}
}

func TestSockDiagQueryTimeoutParses(t *testing.T) {
	c := Config{SockDiagTimeout: "500ms"}
	d, err := c.SockDiagQueryTimeout()
	if err != nil {
		t.Fatalf("SockDiagQueryTimeout: %v", err)
	}
	if d != 500*time.Millisecond {
		t.Errorf("got %v, want 500ms", d)
	}
}

func TestWriteDefaultRoundTripsThroughLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "generated.hcl")
	want := Config{
		ListenAddr:      "0.0.0.0:1234",
		SockDiagTimeout: "1s",
		LogLevel:        "debug",
		LogJSON:         true,
	}

	if err := WriteDefault(path, want); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load of generated file: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestLoggingConfigMapsLevel(t *testing.T) {
	c := Config{LogLevel: "warn", LogJSON: true}
	lc := c.LoggingConfig()
	if lc.Level != logging.LevelWarn {
		t.Errorf("expected LevelWarn, got %v", lc.Level)
	}
	if !lc.JSON {
		t.Error("expected JSON true")
	}
}
