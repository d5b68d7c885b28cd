package apifront

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIPCRequestResponseRoundTrip(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "gitpatchd.sock")

	front, err := ListenIPC("unix", sockPath)
	require.NoError(t, err)
	defer front.Close()

	conn, err := net.Dial("unix", sockPath)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, newRequestEncoder(conn).send(ShutdownRequest{}))

	select {
	case cr := <-front.Requests():
		require.IsType(t, ShutdownRequest{}, cr.Request)

		front.SendResponse(cr.Client, ShutdownResponse{})

		dec := newResponseDecoder(conn)
		resp, err := dec.next()
		require.NoError(t, err)
		require.IsType(t, ShutdownResponse{}, resp)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for request")
	}
}

func TestIPCClosePreventsFurtherDials(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "gitpatchd.sock")

	front, err := ListenIPC("unix", sockPath)
	require.NoError(t, err)
	require.NoError(t, front.Close())
	require.True(t, front.IsTerminated())

	_, err = net.Dial("unix", sockPath)
	require.Error(t, err)
}
