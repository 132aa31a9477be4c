package app

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"

	"github.com/1ureka/rtcall/internal/config"
	"github.com/1ureka/rtcall/internal/relay"
)

// RunRelay serves the signaling relay until ctx is cancelled.
func RunRelay(ctx context.Context, cfg config.RelayConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	srv := relay.NewServer(cfg)
	addr, err := srv.Listen()
	if err != nil {
		return err
	}

	pterm.DefaultBox.WithTitle("Signaling Relay").Println(fmt.Sprintf(
		"Address : %s\nJoin    : ws://<host>/signal/<room>\nHealth  : http://<host>/healthz",
		addr,
	))
	pterm.Println()

	return srv.Serve(ctx)
}
