// Package objectstore_test tests the NATS object store implementation.
package objectstore_test

import (
	"context"
	"testing"

	"github.com/book-expert/tts-backend/internal/objectstore"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

// StartTestServer starts an in-memory NATS server for testing purposes.
func StartTestServer(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	natsServer := test.RunServer(&opts)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	t.Cleanup(func() {
		natsConnection.Close()
		natsServer.Shutdown()
	})

	return natsServer, natsConnection
}

func TestNatsObjectStore_UploadDownload(t *testing.T) {
	t.Parallel()

	_, natsConnection := StartTestServer(t)
	ctx := context.Background()

	store, err := objectstore.New(ctx, natsConnection, "test-bucket")
	require.NoError(t, err)

	uploadData := []byte("RIFF....WAVEfmt ")

	err = store.Upload(ctx, "chunk.wav", uploadData)
	require.NoError(t, err)

	downloadData, err := store.Download(ctx, "chunk.wav")
	require.NoError(t, err)
	require.Equal(t, uploadData, downloadData)
}

func TestNatsObjectStore_BindsExistingBucket(t *testing.T) {
	t.Parallel()

	_, natsConnection := StartTestServer(t)
	ctx := context.Background()

	first, err := objectstore.New(ctx, natsConnection, "shared")
	require.NoError(t, err)
	require.NoError(t, first.Upload(ctx, "key", []byte("value")))

	second, err := objectstore.New(ctx, natsConnection, "shared")
	require.NoError(t, err)

	data, err := second.Download(ctx, "key")
	require.NoError(t, err)
	require.Equal(t, []byte("value"), data)
}

func TestNatsObjectStore_DownloadMissing(t *testing.T) {
	t.Parallel()

	_, natsConnection := StartTestServer(t)
	ctx := context.Background()

	store, err := objectstore.New(ctx, natsConnection, "empty")
	require.NoError(t, err)

	_, err = store.Download(ctx, "nope")
	require.ErrorIs(t, err, objectstore.ErrNotFound)
}
