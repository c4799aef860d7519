// Package backend_test tests the Backend RPC contract over an in-memory channel.
package backend_test

import (
	"context"
	"net"
	"testing"

	"github.com/book-expert/tts-backend/internal/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

// echoServer answers every call with values derived from its request.
type echoServer struct {
	lastModel *backend.ModelOptions
	lastTTS   *backend.TTSRequest
}

func (s *echoServer) Health(_ context.Context, _ *backend.HealthMessage) (*backend.Reply, error) {
	return &backend.Reply{Message: []byte(backend.HealthOK)}, nil
}

func (s *echoServer) LoadModel(_ context.Context, req *backend.ModelOptions) (*backend.Result, error) {
	s.lastModel = req

	return &backend.Result{Success: true, Message: backend.ModelLoadedMessage}, nil
}

func (s *echoServer) TTS(_ context.Context, req *backend.TTSRequest) (*backend.Result, error) {
	s.lastTTS = req

	return &backend.Result{Success: true, Audio: []byte(req.Text)}, nil
}

func startBufServer(t *testing.T, srv backend.BackendServer) backend.BackendClient {
	t.Helper()

	listener := bufconn.Listen(bufSize)
	grpcServer := grpc.NewServer()
	backend.RegisterBackendServer(grpcServer, srv)

	go func() {
		_ = grpcServer.Serve(listener)
	}()

	conn, err := backend.Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		grpcServer.Stop()
	})

	return backend.NewBackendClient(conn)
}

func TestBackend_Health(t *testing.T) {
	t.Parallel()

	client := startBufServer(t, &echoServer{})

	reply, err := client.Health(context.Background(), &backend.HealthMessage{})
	require.NoError(t, err)
	assert.Equal(t, []byte("OK"), reply.Message)
}

func TestBackend_LoadModelCarriesOptions(t *testing.T) {
	t.Parallel()

	srv := &echoServer{}
	client := startBufServer(t, srv)

	result, err := client.LoadModel(context.Background(), &backend.ModelOptions{
		Model:       "parler-tts/parler_tts_mini_v0.1",
		Voice:       "A calm female voice",
		Temperature: 0.7,
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "Model loaded successfully", result.Message)
	require.NotNil(t, srv.lastModel)
	assert.Equal(t, "parler-tts/parler_tts_mini_v0.1", srv.lastModel.Model)
	assert.Equal(t, "A calm female voice", srv.lastModel.Voice)
	assert.InEpsilon(t, 0.7, srv.lastModel.Temperature, 0.001)
}

func TestBackend_TTSReturnsInlineAudio(t *testing.T) {
	t.Parallel()

	srv := &echoServer{}
	client := startBufServer(t, srv)

	result, err := client.TTS(context.Background(), &backend.TTSRequest{
		Text: "Hey, how are you doing today?",
		Dst:  "/tmp/out.wav",
	})
	require.NoError(t, err)

	assert.Equal(t, []byte("Hey, how are you doing today?"), result.Audio)
	require.NotNil(t, srv.lastTTS)
	assert.Equal(t, "/tmp/out.wav", srv.lastTTS.Dst)
}
