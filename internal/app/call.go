// Package app wires the rtcall commands together.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/1ureka/rtcall/internal/capability"
	"github.com/1ureka/rtcall/internal/config"
	"github.com/1ureka/rtcall/internal/negotiation"
	"github.com/1ureka/rtcall/internal/signaling"
	"github.com/1ureka/rtcall/internal/transport"
	"github.com/1ureka/rtcall/internal/util"
)

const statsInterval = 10 * time.Second

// RunCall joins cfg.Room on the relay and runs one call until ctx is
// cancelled or the session fails:
//  1. Connect to the relay and start the signaling read loop
//  2. Start the negotiation coordinator (and the first offer with Initiate)
//  3. Report media statistics until the call ends
func RunCall(ctx context.Context, cfg config.CallConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	signalURL, err := config.NormalizeSignalURL(cfg.SignalURL, cfg.Room)
	if err != nil {
		return err
	}

	// ── 1. Signaling ───────────────────────────────────────────────────
	conn, err := signaling.Dial(ctx, signalURL)
	if err != nil {
		return err
	}
	client := signaling.NewClient(conn, cfg.Room, cfg.PeerID)
	util.LogInfo("connected to %s as %s", signalURL, cfg.PeerID)

	// ── 2. Coordinator ─────────────────────────────────────────────────
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stats := &util.MediaStats{}
	ui := newConsole(callCtx, stats)

	var iceServers []string
	if cfg.ICEServer != "" {
		iceServers = []string{cfg.ICEServer}
	}

	coord := negotiation.New(negotiation.Config{
		PeerID: cfg.PeerID,
		NewEngine: func(ctx context.Context) (negotiation.Engine, error) {
			tr, err := transport.NewTransport(ctx, transport.Config{
				ICEServers:    iceServers,
				LoggerFactory: transport.NewLoggerFactory(util.DebugEnabled()),
			})
			if err != nil {
				return nil, err
			}
			ui.bind(tr)
			return tr, nil
		},
		Signaler: client,
		Capabilities: capability.NewAcquirer(
			capability.NewSyntheticSource(stats),
			capability.Constraints{Audio: cfg.Audio, Video: cfg.Video},
		),
		Observer: ui,
	})

	go coord.Run(callCtx)
	go func() {
		if err := client.Run(callCtx, coord.HandleMessage); err != nil {
			// The media path does not depend on the relay once connected.
			util.LogWarning("signaling channel lost: %v", err)
		}
	}()

	if cfg.Initiate {
		coord.Start()
	} else {
		util.LogInfo("waiting for the remote peer to call...")
	}

	util.StartStatsReporter(callCtx, stats, statsInterval)

	// ── 3. Block until the call ends ───────────────────────────────────
	var failure error
	select {
	case <-ctx.Done():
	case err := <-ui.failed:
		failure = fmt.Errorf("call failed: %w", err)
	case <-coord.Done():
	}

	coord.Exit()
	<-coord.Done()
	return failure
}
