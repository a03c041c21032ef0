// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dwelly Contributors

package server_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestServer_StartStopsOnContextCancel(t *testing.T) {
	srv := newTestServer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Start(ctx)
	}()

	// Give the listener a moment to come up, then trigger shutdown.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
