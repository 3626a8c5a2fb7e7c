package bridge

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// Dial connects to the hosting process's WebSocket at url, e.g.
//
//	wss://example.devtunnels.ms/ws?pin=1234
//
// A non-empty origin is sent as the Origin header.
func Dial(ctx context.Context, url, origin string) (*WS, error) {
	var header http.Header
	if origin != "" {
		header = http.Header{"Origin": []string{origin}}
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WS server: %w", err)
	}
	return NewWS(conn), nil
}
