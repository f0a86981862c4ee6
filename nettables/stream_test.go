package nettables

import (
	"context"
	"fmt"
	"testing"

	"github.com/go-playground/assert/v2"
)

func testSyncOver(t *testing.T, ctx context.Context, provider StreamProvider, streamFactory StreamFactory) {
	server := NewServer(ctx, testServerSettings())
	defer server.Close()
	assert.Equal(t, server.Start(provider), nil)
	assert.Equal(t, server.PutValue("/s", []string{"a", "b"}), nil)

	client := NewClient(ctx, testClientSettings())
	defer client.Close()
	assert.Equal(t, client.Connect(streamFactory), nil)

	waitFor(t, testTimeout, client.IsConnected)
	waitFor(t, testTimeout, valueEquals(client, "/s", []string{"a", "b"}))

	assert.Equal(t, client.PutValue("/c", []float64{1.5}), nil)
	waitFor(t, testTimeout, valueEquals(server, "/c", []float64{1.5}))
	assert.Equal(t, client.Flush(), nil)
}

func TestTcpStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider, err := NewTcpStreamProvider(ctx, "127.0.0.1:0")
	assert.Equal(t, err, nil)

	testSyncOver(t, ctx, provider, NewTcpStreamFactory(provider.Addr().String()))
}

func TestWebsocketStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider, err := NewWebsocketStreamProvider(ctx, "127.0.0.1:0", DefaultWebsocketPath)
	assert.Equal(t, err, nil)

	url := fmt.Sprintf("ws://%s%s", provider.Addr(), DefaultWebsocketPath)
	testSyncOver(t, ctx, provider, NewWebsocketStreamFactory(url))
}
