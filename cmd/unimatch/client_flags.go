package main

import (
	"time"

	"unimatch/cmd/internal/app"

	"github.com/spf13/cobra"
)

// clientFlags are the connection flags shared by chat and history.
type clientFlags struct {
	baseURL      string
	pushURL      string
	token        string
	userID       string
	noPush       bool
	pollInterval time.Duration
}

func (f *clientFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.baseURL, "base-url", "", "REST base URL (UNIMATCH_BASE_URL)")
	fs.StringVar(&f.pushURL, "push-url", "", "push WebSocket URL, derived from --base-url when empty")
	fs.StringVar(&f.token, "token", "", "bearer access token (UNIMATCH_TOKEN)")
	fs.StringVar(&f.userID, "user", "", "signed-in user id (UNIMATCH_USER_ID)")
	fs.BoolVar(&f.noPush, "no-push", false, "never use the push channel; poll instead")
	fs.DurationVar(&f.pollInterval, "poll-interval", 0, "polling interval when push is unavailable")
}

// apply overlays the flags that were set onto cfg.
func (f *clientFlags) apply(cfg *app.ClientConfig) {
	if f.baseURL != "" {
		cfg.BaseURL = f.baseURL
	}
	if f.pushURL != "" {
		cfg.PushURL = f.pushURL
	}
	if f.token != "" {
		cfg.Token = f.token
	}
	if f.userID != "" {
		cfg.UserID = f.userID
	}
	if f.noPush {
		cfg.DisablePush = true
	}
	if f.pollInterval > 0 {
		cfg.PollInterval = f.pollInterval
	}
}
