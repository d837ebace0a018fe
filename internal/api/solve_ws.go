package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket bridge for solve events. Clients send subscribe messages naming a
// solve id and receive the same events the SSE stream carries.

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsSubscribePayload struct {
	SolveID string `json:"solveId"`
}

// SolveWSHandler handles /v1/solves/ws
func (s *Server) SolveWSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	type sub struct {
		solveID string
		ch      chan SSEEvent
		done    chan struct{}
	}
	subs := map[string]sub{}
	defer func() {
		for _, su := range subs {
			close(su.done)
			s.Broker.Unsubscribe(su.solveID, su.ch)
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	writeMu := make(chan struct{}, 1)
	writeMu <- struct{}{}
	write := func(v any) error {
		<-writeMu
		defer func() { writeMu <- struct{}{} }()
		return conn.WriteJSON(v)
	}

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		switch msg.Type {
		case "connection_init":
			_ = write(wsMessage{Type: "connection_ack"})
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "subscribe":
			var pl wsSubscribePayload
			_ = json.Unmarshal(msg.Payload, &pl)
			if pl.SolveID == "" {
				_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: []byte(`{"message":"solveId required"}`)})
				_ = write(wsMessage{Type: "complete", ID: msg.ID})
				continue
			}
			if _, dup := subs[msg.ID]; dup {
				continue
			}
			ch := s.Broker.Subscribe(pl.SolveID)
			done := make(chan struct{})
			subs[msg.ID] = sub{solveID: pl.SolveID, ch: ch, done: done}
			go func(id string, c chan SSEEvent, done chan struct{}) {
				for {
					select {
					case <-done:
						return
					case evt, ok := <-c:
						if !ok {
							return
						}
						body := map[string]any{"type": evt.Type, "data": evt.Data}
						b, _ := json.Marshal(body)
						if err := write(wsMessage{Type: "next", ID: id, Payload: b}); err != nil {
							return
						}
					}
				}
			}(msg.ID, ch, done)
		case "complete":
			if su, ok := subs[msg.ID]; ok {
				close(su.done)
				s.Broker.Unsubscribe(su.solveID, su.ch)
				delete(subs, msg.ID)
			}
		}
	}
}
