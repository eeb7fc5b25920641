// Package devnodetest serves a devnode.Node for the duration of a test.
package devnodetest

import (
	"net/http/httptest"
	"testing"

	"github.com/dmitrijs2005/roomchat/internal/devnode"
)

// Start serves a new node on a test server closed at cleanup.
func Start(t testing.TB, opts ...devnode.Option) (*devnode.Node, *httptest.Server) {
	t.Helper()
	n := devnode.New(opts...)
	srv := httptest.NewServer(n.Handler())
	t.Cleanup(func() {
		n.Close()
		srv.Close()
	})
	return n, srv
}
