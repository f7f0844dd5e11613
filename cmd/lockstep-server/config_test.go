package main

import (
	"testing"
	"time"
)

func TestConfigValidate_OK(t *testing.T) {
	c := &appConfig{
		listenAddr:  ":8080",
		logFormat:   "text",
		logLevel:    "info",
		hubBuffer:   256,
		hubPolicy:   "drop",
		idleTimeout: 30 * time.Second,
	}
	if err := c.validate(); err != nil {
		t.Fatalf("expected ok got %v", err)
	}
}

func TestConfigValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*appConfig)
	}{
		{"badFormat", func(c *appConfig) { c.logFormat = "xx" }},
		{"badLevel", func(c *appConfig) { c.logLevel = "nope" }},
		{"badPolicy", func(c *appConfig) { c.hubPolicy = "x" }},
		{"badHubBuf", func(c *appConfig) { c.hubBuffer = 0 }},
		{"badIdleTimeout", func(c *appConfig) { c.idleTimeout = 0 }},
		{"badTickInterval", func(c *appConfig) { c.tickInterval = -1 }},
	}
	for _, tc := range tests {
		base := &appConfig{
			listenAddr:  ":8080",
			logFormat:   "text",
			logLevel:    "info",
			hubBuffer:   256,
			hubPolicy:   "drop",
			idleTimeout: 30 * time.Second,
		}
		tc.mod(base)
		if err := base.validate(); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}
