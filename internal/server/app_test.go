package server

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/dmitrijs2005/roomchat/internal/server/config"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	c.LogLevel = "error"
	return c
}

func TestNewApp_RequiresSecret(t *testing.T) {
	c := testConfig()
	c.SecretKey = ""

	_, err := NewApp(c)
	require.Error(t, err)
}

func TestServe_StopsOnCancel(t *testing.T) {
	app, err := NewApp(testConfig())
	require.NoError(t, err)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + l.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, l) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	// A WebSocket upgrade must pass through the access log wrapper; without
	// a token the node refuses it before upgrading.
	_, resp, err := websocket.DefaultDialer.Dial("ws://"+l.Addr().String()+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	access, _, err := app.node.IssueTokens("dev")
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+l.Addr().String()+"/ws", http.Header{
		"Authorization": []string{"Bearer " + access},
	})
	require.NoError(t, err)
	_ = conn.Close()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
