package app

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/rtcall/internal/capability"
	"github.com/1ureka/rtcall/internal/config"
	"github.com/1ureka/rtcall/internal/relay"
	"github.com/1ureka/rtcall/internal/util"
)

func TestConsoleKeepsFirstFailure(t *testing.T) {
	c := newConsole(context.Background(), &util.MediaStats{})

	first := errors.New("first")
	c.OnSessionFailed(first)
	c.OnSessionFailed(errors.New("second")) // must not block

	assert.Equal(t, first, <-c.failed)
}

func TestConsolePumpsLocalMedia(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stats := &util.MediaStats{}
	c := newConsole(ctx, stats)

	capab, err := capability.NewSyntheticSource(stats).Request(ctx, capability.Constraints{Audio: true})
	require.NoError(t, err)

	c.OnLocalPreviewReady(capab)
	require.Eventually(t, func() bool { return stats.SamplesSent.Load() > 0 }, 2*time.Second, 20*time.Millisecond)
}

func TestRunCallRejectsInvalidConfig(t *testing.T) {
	err := RunCall(context.Background(), config.CallConfig{})
	assert.Error(t, err)
}

func TestRunCallUnreachableRelay(t *testing.T) {
	cfg := config.DefaultCallConfig()
	cfg.SignalURL = "ws://127.0.0.1:1"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.Error(t, RunCall(ctx, cfg))
}

func TestRunCallEndsOnCancel(t *testing.T) {
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := relay.NewHub()
	go hub.Run(hubCtx)

	srv := httptest.NewServer(relay.NewRouter(hub))
	defer srv.Close()

	cfg := config.DefaultCallConfig()
	cfg.SignalURL = srv.URL
	cfg.ICEServer = ""
	cfg.Initiate = true

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunCall(ctx, cfg) }()

	require.Eventually(t, func() bool { return hub.Rooms()[config.DefaultRoom] == 1 }, 5*time.Second, 20*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("call did not end")
	}
}
