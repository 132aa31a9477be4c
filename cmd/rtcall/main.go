// rtcall — CLI entry point.
//
// This tool places a peer-to-peer audio/video call over WebRTC. Both peers
// meet in a room of a small WebSocket relay that forwards their offer, answer
// and ICE candidates; media then flows directly between them.
//
// Subcommands: "relay" runs the relay, "call" joins a room. Without --url the
// call command asks for the relay address and room interactively.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/rtcall/internal/app"
	"github.com/1ureka/rtcall/internal/config"
	"github.com/1ureka/rtcall/internal/util"
)

var version = "dev"

func main() {
	// Root context — cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var debug bool

	root := &cobra.Command{
		Use:           "rtcall",
		Short:         "Peer-to-peer audio/video calls over WebRTC",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug {
				util.EnableDebug()
			}
			pterm.Info.Println("rtcall — v" + version)
			pterm.Println()
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	root.AddCommand(newRelayCmd(), newCallCmd())
	return root
}

// ---------------------------------------------------------------------------
// Subcommands
// ---------------------------------------------------------------------------

func newRelayCmd() *cobra.Command {
	cfg := config.RelayConfig{Listen: config.DefaultListen}

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the signaling relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.RunRelay(cmd.Context(), cfg); err != nil {
				return err
			}
			util.LogInfo("relay stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.Listen, "listen", cfg.Listen, "Address to listen on")
	return cmd
}

func newCallCmd() *cobra.Command {
	cfg := config.DefaultCallConfig()
	var noAudio, noVideo bool

	cmd := &cobra.Command{
		Use:   "call",
		Short: "Join a room and call the peer in it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Audio = !noAudio
			cfg.Video = !noVideo

			if cfg.SignalURL == "" {
				// No --url flag → interactive mode.
				cfg.SignalURL = askURL()
				if !cmd.Flags().Changed("room") {
					cfg.Room = askRoom(cfg.Room)
				}
				if !cmd.Flags().Changed("initiate") {
					cfg.Initiate = askInitiate()
				}
			}

			if err := app.RunCall(cmd.Context(), cfg); err != nil {
				return err
			}
			util.LogInfo("successfully closed call")
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.SignalURL, "url", "", "Relay host or WebSocket URL (e.g. ws://localhost:8080)")
	f.StringVar(&cfg.Room, "room", cfg.Room, "Room to join on the relay")
	f.StringVar(&cfg.PeerID, "id", "", "Local peer id (generated when empty)")
	f.StringVar(&cfg.ICEServer, "stun", cfg.ICEServer, "STUN server URL, empty to disable")
	f.BoolVar(&cfg.Initiate, "initiate", false, "Send the first offer instead of waiting for one")
	f.BoolVar(&noAudio, "no-audio", false, "Do not send audio")
	f.BoolVar(&noVideo, "no-video", false, "Do not send video")
	return cmd
}

// ---------------------------------------------------------------------------
// Prompts
// ---------------------------------------------------------------------------

// askURL prompts the user for a relay address until a valid one is entered.
func askURL() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Relay address (e.g. ws://localhost:8080)").
			Show()

		if _, err := config.NormalizeSignalURL(raw, ""); err == nil {
			pterm.Println()
			return strings.TrimSpace(raw)
		}

		pterm.Println()
		util.LogWarning("invalid input: please enter a valid host or URL")
	}
}

// askRoom prompts for the room name, keeping def on empty input.
func askRoom(def string) string {
	raw, _ := pterm.DefaultInteractiveTextInput.
		WithDefaultText("Room").
		WithDefaultValue(def).
		Show()
	pterm.Println()

	if room := strings.TrimSpace(raw); room != "" {
		return room
	}
	return def
}

func askInitiate() bool {
	choice, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Wait  — Answer the peer's call", "Call  — Send the first offer"}).
		WithDefaultText("Select your role").
		Show()
	pterm.Println()

	return strings.HasPrefix(choice, "Call")
}
