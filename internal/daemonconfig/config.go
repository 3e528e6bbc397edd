// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package daemonconfig holds the few knobs the perimeterd daemon itself
// needs, as distinct from the policy set it enforces. Policy is pushed
// wholesale over the control surface at runtime and never touches disk;
// this package is the on-disk HCL file read once at startup.
package daemonconfig

import (
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"

	pderrors "github.com/perimeterd/perimeterd/internal/errors"
	"github.com/perimeterd/perimeterd/internal/logging"
)

// Config is the top-level daemon configuration structure.
type Config struct {
	// Address the control+metrics HTTP server listens on.
	// @default: "127.0.0.1:9090"
	// @example: "0.0.0.0:9090"
	ListenAddr string `hcl:"listen_addr,optional" json:"listen_addr,omitempty"`

	// Upper bound for a single kernel socket-diag query, parsed by
	// SockDiagQueryTimeout and checked by Validate. The daemon does not
	// apply it: sockdiag.Client.Query has no built-in timeout.
	// @default: "2s"
	// @example: "500ms"
	SockDiagTimeout string `hcl:"sockdiag_timeout,optional" json:"sockdiag_timeout,omitempty"`

	// Minimum level logged; one of debug, info, warn, error.
	// @default: "info"
	LogLevel string `hcl:"log_level,optional" json:"log_level,omitempty"`

	// Render log output as JSON instead of the default text format.
	// @default: false
	LogJSON bool `hcl:"log_json,optional" json:"log_json,omitempty"`
}

// Default returns the daemon's built-in configuration, used when no
// config file is supplied.
func Default() Config {
	return Config{
		ListenAddr:      "127.0.0.1:9090",
		SockDiagTimeout: "2s",
		LogLevel:        "info",
		LogJSON:         false,
	}
}

// Load reads and decodes an HCL daemon config file at path, filling in
// defaults for any field the file omits.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
		return Config{}, pderrors.Wrap(err, pderrors.KindValidation, "failed to decode daemon config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that every field holds a well-formed value, returning
// the first problem found.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return pderrors.New(pderrors.KindValidation, "listen_addr must not be empty")
	}
	if _, err := c.SockDiagQueryTimeout(); err != nil {
		return pderrors.Wrap(err, pderrors.KindValidation, "sockdiag_timeout must be a valid duration")
	}
	if _, err := c.LoggingLevel(); err != nil {
		return err
	}
	return nil
}

// SockDiagQueryTimeout parses SockDiagTimeout as a time.Duration.
func (c Config) SockDiagQueryTimeout() (time.Duration, error) {
	return time.ParseDuration(c.SockDiagTimeout)
}

// LoggingLevel translates LogLevel into a logging.Level.
func (c Config) LoggingLevel() (logging.Level, error) {
	switch c.LogLevel {
	case "debug":
		return logging.LevelDebug, nil
	case "info", "":
		return logging.LevelInfo, nil
	case "warn":
		return logging.LevelWarn, nil
	case "error":
		return logging.LevelError, nil
	default:
		return 0, pderrors.Errorf(pderrors.KindValidation, "unrecognized log_level %q", c.LogLevel)
	}
}

// LoggingConfig renders c as a logging.Config.
func (c Config) LoggingConfig() logging.Config {
	level, _ := c.LoggingLevel()
	return logging.Config{
		Level: level,
		JSON:  c.LogJSON,
	}
}

// WriteDefault writes c to path as a ready-to-edit HCL file, built
// attribute-by-attribute with hclwrite the way ConfigFile.SetAttribute
// constructs HCL bodies, rather than via text/template.
func WriteDefault(path string, c Config) error {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	body.SetAttributeValue("listen_addr", cty.StringVal(c.ListenAddr))
	body.SetAttributeValue("sockdiag_timeout", cty.StringVal(c.SockDiagTimeout))
	body.SetAttributeValue("log_level", cty.StringVal(c.LogLevel))
	body.SetAttributeValue("log_json", cty.BoolVal(c.LogJSON))

	return os.WriteFile(path, f.Bytes(), 0o644)
}
