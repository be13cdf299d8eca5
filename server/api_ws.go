package chserver

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/openrport/rguard/server/api"
	"github.com/openrport/rguard/share/pubsub"
	"github.com/openrport/rguard/share/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handlePushWS streams snapshots, event loads, finished scans and advisories to the client
// until it disconnects or the bridge is closed.
func (al *APIListener) handlePushWS(w http.ResponseWriter, req *http.Request) {
	wsConn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		al.Errorf("Failed to establish websocket connection: %v", err)
		return
	}

	sub := al.bridge.Subscribe()
	uiConn := ws.NewConcurrentWebSocket(wsConn, al.Logger.Fork("ws-%s", sub.ID))
	al.sockets.Set(sub.ID, uiConn)
	al.Debugf("websocket subscriber %s connected from %s", sub.ID, req.RemoteAddr)

	defer func() {
		al.bridge.Unsubscribe(sub)
		al.sockets.Delete(sub.ID)
		_ = uiConn.Close()
		al.Debugf("websocket subscriber %s disconnected", sub.ID)
	}()

	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		// clients don't send anything, reading only detects the close
		for {
			if _, _, err := uiConn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	al.pushUpdates(uiConn, sub, clientGone)
}

func (al *APIListener) pushUpdates(conn *ws.ConcurrentWebSocket, sub *pubsub.Subscription, clientGone <-chan struct{}) {
	for {
		var msg api.PushMessage
		select {
		case <-clientGone:
			return
		case snapshot, ok := <-sub.Snapshots():
			if !ok {
				return
			}
			msg = api.PushMessage{Type: api.PushTypeSnapshot, Data: snapshot}
		case events, ok := <-sub.Events():
			if !ok {
				return
			}
			msg = api.PushMessage{Type: api.PushTypeEvents, Data: events}
		case finished, ok := <-sub.Scans():
			if !ok {
				return
			}
			msg = api.PushMessage{Type: api.PushTypeScan, Data: finished}
		case advisory, ok := <-sub.Advisories():
			if !ok {
				return
			}
			msg = api.PushMessage{Type: api.PushTypeAdvisory, Data: advisory}
		}

		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}
