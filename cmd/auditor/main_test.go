package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/williampepple1/website-auditor/internal/config"
)

func TestApplyFlags(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{
		"-i", "businesses.xlsx", "-n", "3", "-t", "15", "--ceiling", "5h30m", "--retries", "1", "--mobile", "--screenshots",
	}))

	cfg := &config.AppConfig{
		Scraper: config.ScraperConfig{Workers: 1, TimeoutSeconds: 10},
		IO:      config.IOConfig{ResultsDir: "from-file", LogsDir: "logs"},
		Browser: config.BrowserConfig{UserAgent: config.DefaultUserAgents[0]},
	}
	applyFlags(cmd, cfg)

	assert.Equal(t, "businesses.xlsx", cfg.IO.InputFile)
	assert.Equal(t, 3, cfg.Scraper.Workers)
	assert.Equal(t, 15, cfg.Scraper.TimeoutSeconds)
	assert.Equal(t, 5*time.Hour+30*time.Minute, cfg.Scraper.RunCeiling)
	assert.Equal(t, 1, cfg.Scraper.MaxRetries)
	assert.True(t, cfg.Browser.MobileView)
	assert.True(t, cfg.Browser.Screenshot)
	assert.Equal(t, config.MobileUserAgent, cfg.Browser.UserAgent)
	assert.Equal(t, "from-file", cfg.IO.ResultsDir, "unset flags keep configured values")
}

func TestRootCmdRejectsInvalidConfiguration(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--concurrency", "5", "--logs-dir", t.TempDir(), "businesses.csv"})

	err := cmd.Execute()
	assert.ErrorIs(t, err, config.ErrInvalidConcurrency)
}
