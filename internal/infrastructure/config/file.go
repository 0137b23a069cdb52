package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// fileConfig maps config.toml keys onto Config fields.
type fileConfig struct {
	ConnectTo       string `toml:"connect_to"`
	BindAddr        string `toml:"bind_addr"`
	LogLevel        string `toml:"log_level"`
	IdleTimeoutMs   int    `toml:"idle_timeout_ms"`
	MaxDatagramSize int    `toml:"max_datagram_size"`
	MaxReportRuns   int    `toml:"max_report_runs"`
	ReportPath      string `toml:"report_path"`
	MetricsAddr     string `toml:"metrics_addr"`
}

// ApplyFile overlays values from a TOML file onto cfg. Only keys present in
// the file override the existing values.
func ApplyFile(cfg Config, path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if meta.IsDefined("connect_to") {
		cfg.ConnectTo = strings.TrimSpace(raw.ConnectTo)
	}
	if meta.IsDefined("bind_addr") {
		cfg.BindAddr = strings.TrimSpace(raw.BindAddr)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("idle_timeout_ms") {
		cfg.IdleTimeoutMs = raw.IdleTimeoutMs
	}
	if meta.IsDefined("max_datagram_size") {
		cfg.MaxDatagramSize = raw.MaxDatagramSize
	}
	if meta.IsDefined("max_report_runs") {
		cfg.MaxReportRuns = raw.MaxReportRuns
	}
	if meta.IsDefined("report_path") {
		cfg.ReportPath = strings.TrimSpace(raw.ReportPath)
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	return cfg, nil
}
