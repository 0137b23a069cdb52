package config

import (
	"os"
	"strconv"
)

type Config struct {
	// ConnectTo is the peer address, host:port.
	ConnectTo string
	// BindAddr is the local UDP bind address; port 0 picks an ephemeral one.
	BindAddr string
	LogLevel string

	IdleTimeoutMs   int
	MaxDatagramSize int
	MaxReportRuns   int

	// ReportPath receives the final JSON report; "-" or empty means stdout.
	ReportPath string
	// MetricsAddr, when set, serves prometheus metrics and the live monitor
	// websocket on that address.
	MetricsAddr string
}

func FromEnv() Config {
	return Config{
		ConnectTo:       getEnv("CONNECT_TO", ""),
		BindAddr:        getEnv("BIND_ADDR", "0.0.0.0:0"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		IdleTimeoutMs:   getEnvInt("IDLE_TIMEOUT_MS", 5000),
		MaxDatagramSize: getEnvInt("MAX_DATAGRAM_SIZE", 1350),
		MaxReportRuns:   getEnvInt("MAX_REPORT_RUNS", 100),
		ReportPath:      getEnv("REPORT_PATH", "-"),
		MetricsAddr:     getEnv("METRICS_ADDR", ""),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
