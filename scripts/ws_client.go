// Package main runs a demo WebSocket client for solve events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Create a small catalog
	catBody := []byte(`{"name":"demo","routes":[{"from":"Tunis","to":"Sfax","monthlyDemand":30,"tripDurationDays":2,"companyCost":100,"returnEmptyCost":20,"thirdPartyCost":150}]}`)
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/catalogs", bytes.NewReader(catBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	var cat struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&cat); err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()
	log.Printf("Catalog ID: %s", cat.ID)

	// Run a solve
	solveBody := []byte(fmt.Sprintf(`{"catalogId":"%s","fleetSize":3,"workDaysPerMonth":26}`, cat.ID))
	req, _ = http.NewRequest(http.MethodPost, base+"/v1/solve", bytes.NewReader(solveBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "admin")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	var solve struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Result *struct {
			TotalCost        float64 `json:"totalCost"`
			ReductionPercent float64 `json:"reductionPercent"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&solve); err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()
	log.Printf("Solve %s: %s", solve.ID, solve.Status)
	if solve.Result != nil {
		log.Printf("Total cost %.2f, reduction %.1f%%", solve.Result.TotalCost, solve.Result.ReductionPercent)
	}

	// Connect WS and subscribe to further events for this solve
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/solves/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	pl, _ := json.Marshal(map[string]any{"solveId": solve.ID})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
