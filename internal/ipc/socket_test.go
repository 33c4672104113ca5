package ipc

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// deadSocket leaves a socket file behind whose listener has gone away.
func deadSocket(t *testing.T, path string) {
	t.Helper()
	listener, err := net.Listen("unix", path)
	require.NoError(t, err)
	listener.(*net.UnixListener).SetUnlinkOnClose(false)
	require.NoError(t, listener.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.ModeSocket, info.Mode().Type())
}

// liveSocket serves status requests on path until the test ends.
func liveSocket(t *testing.T, path string) {
	t.Helper()
	listener, err := net.Listen("unix", path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, listener, HandlerFunc(func(context.Context, Request) Response {
			return Response{OK: true, State: "listening"}
		}))
	}()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
}

func TestReclaimStaleRemovesDeadOwnerSocket(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "murmur.sock")
	deadSocket(t, path)

	require.NoError(t, reclaimStale(context.Background(), path, 50*time.Millisecond))
	_, err := os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestReclaimStaleKeepsLiveOwnerSocket(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "murmur.sock")
	liveSocket(t, path)

	err := reclaimStale(context.Background(), path, 200*time.Millisecond)
	require.ErrorIs(t, err, ErrAlreadyRunning)
	_, statErr := os.Stat(path)
	require.NoError(t, statErr)
}

func TestReclaimStaleIgnoresMissingSocket(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "murmur.sock")
	require.NoError(t, reclaimStale(context.Background(), path, 50*time.Millisecond))
}

func TestAcquireTakesOverDeadOwnerSocket(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "murmur.sock")
	deadSocket(t, path)

	rescues := 0
	listener, err := Acquire(context.Background(), path, 50*time.Millisecond, 2, func(context.Context) error {
		rescues++
		return nil
	})
	require.NoError(t, err)
	defer listener.Close()

	require.Equal(t, 1, rescues)
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestAcquireRecoversStaleRegularFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "murmur.sock")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o600))

	listener, err := Acquire(context.Background(), path, 50*time.Millisecond, 2, nil)
	require.NoError(t, err)
	require.NoError(t, listener.Close())
}

func TestAcquireReturnsAlreadyRunningWhenSocketResponsive(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "murmur.sock")
	liveSocket(t, path)

	rescued := false
	_, err := Acquire(context.Background(), path, 200*time.Millisecond, 1, func(context.Context) error {
		rescued = true
		return nil
	})
	require.ErrorIs(t, err, ErrAlreadyRunning)
	require.False(t, rescued)
}

func TestAcquireKeepsSocketWhenOwnerUnresponsive(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "murmur.sock")
	listener, err := net.Listen("unix", path)
	require.NoError(t, err)

	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		for {
			conn, acceptErr := listener.Accept()
			if acceptErr != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				time.Sleep(250 * time.Millisecond)
			}(conn)
		}
	}()

	_, err = Acquire(context.Background(), path, 30*time.Millisecond, 0, nil)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrAlreadyRunning)
	require.Contains(t, err.Error(), "probe existing socket")

	_, statErr := os.Stat(path)
	require.NoError(t, statErr)
	require.NoError(t, listener.Close())
	<-acceptDone
}

func TestAcquireHonorsCancelledContextDuringBackoff(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "murmur.sock")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	_, err := Acquire(ctx, path, 50*time.Millisecond, 3, func(context.Context) error {
		cancel()
		// Put the file back so the retry has to back off again.
		return os.WriteFile(path, nil, 0o600)
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRuntimeSocketPathRequiresXDG(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "")
	_, err := RuntimeSocketPath()
	require.Error(t, err)
}

func TestRuntimeSocketPathUsesXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", dir)

	path, err := RuntimeSocketPath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "murmur.sock"), path)
}
