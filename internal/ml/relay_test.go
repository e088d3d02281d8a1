package ml

import (
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func startRelay(t *testing.T) (*Relay, string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("probe port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	r := NewRelay(addr, zap.NewNop())
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		r.Stop(ctx)
	})
	return r, addr
}

func dialWorker(t *testing.T, addr string) *websocket.Conn {
	t.Helper()
	url := fmt.Sprintf("ws://%s/ws", addr)
	var conn *websocket.Conn
	var err error
	for i := 0; i < 20; i++ {
		conn, _, err = websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			t.Cleanup(func() { conn.Close() })
			return conn
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("dial %s: %v", url, err)
	return nil
}

func readMsg(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]any
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func registerWorker(t *testing.T, conn *websocket.Conn, team string) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"op": "begin", "teamName": team}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if msg := readMsg(t, conn); msg["op"] != "status" || msg["status"] != "OK" {
		t.Fatalf("begin reply = %v", msg)
	}
}

func TestPredictRoundTrip(t *testing.T) {
	r, addr := startRelay(t)
	conn := dialWorker(t, addr)
	registerWorker(t, conn, "Alpha")

	frame := []byte{0xFF, 0xD8, 0x01, 0xFF, 0xD9}
	got := make(chan int, 1)
	if !r.Predict("Alpha", 2, frame, func(p int) { got <- p }) {
		t.Fatal("Predict refused with a live worker")
	}

	req := readMsg(t, conn)
	if req["op"] != "prediction_request" || req["index"] != float64(2) {
		t.Fatalf("request = %v", req)
	}
	img, _ := req["image"].(string)
	if decoded, err := base64.StdEncoding.DecodeString(img); err != nil || string(decoded) != string(frame) {
		t.Fatalf("image payload = %q", img)
	}

	if err := conn.WriteJSON(map[string]any{"op": "prediction_results", "teamName": "Alpha", "prediction": 7}); err != nil {
		t.Fatalf("results: %v", err)
	}
	select {
	case p := <-got:
		if p != 7 {
			t.Fatalf("prediction = %d, want 7", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("respond callback never fired")
	}

	// The slot frees up after a reply.
	if !r.Predict("Alpha", 0, frame, func(int) {}) {
		t.Fatal("second request refused after first completed")
	}
}

func TestPredictWithoutWorker(t *testing.T) {
	r, _ := startRelay(t)
	if r.Predict("Nobody", 0, []byte{1}, func(int) {}) {
		t.Fatal("Predict accepted with no worker connected")
	}
}

func TestSingleOutstandingRequestPerTeam(t *testing.T) {
	r, addr := startRelay(t)
	conn := dialWorker(t, addr)
	registerWorker(t, conn, "Alpha")

	if !r.Predict("Alpha", 0, []byte{1}, func(int) {}) {
		t.Fatal("first request refused")
	}
	if r.Predict("Alpha", 1, []byte{1}, func(int) {}) {
		t.Fatal("second request accepted while first is in flight")
	}
}

func TestDuplicateWorkerNameRefused(t *testing.T) {
	_, addr := startRelay(t)
	first := dialWorker(t, addr)
	registerWorker(t, first, "Alpha")

	second := dialWorker(t, addr)
	if err := second.WriteJSON(map[string]any{"op": "begin", "teamName": "Alpha"}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if msg := readMsg(t, second); msg["status"] != "name in use" {
		t.Fatalf("duplicate begin reply = %v", msg)
	}
	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := second.ReadMessage(); err == nil {
		t.Fatal("duplicate worker should have been closed")
	}
}

func TestWorkerDisconnectClearsPending(t *testing.T) {
	r, addr := startRelay(t)
	conn := dialWorker(t, addr)
	registerWorker(t, conn, "Alpha")

	if !r.Predict("Alpha", 0, []byte{1}, func(int) {}) {
		t.Fatal("request refused")
	}
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		_, hasWorker := r.workers["Alpha"]
		_, hasPending := r.pending["Alpha"]
		r.mu.Unlock()
		if !hasWorker && !hasPending {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("worker state not cleared after disconnect")
}
