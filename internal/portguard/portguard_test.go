package portguard

import (
	"net"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestCheckPassesOnFreePorts(t *testing.T) {
	err := Check(zap.NewNop(),
		UDP("camera", "127.0.0.1:0"),
		TCP("frontend", "127.0.0.1:0"),
		TCP("robot", "127.0.0.1:0"),
	)
	if err != nil {
		t.Fatalf("Check on ephemeral ports: %v", err)
	}
}

func TestCheckDetectsTCPConflict(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("occupy port: %v", err)
	}
	defer ln.Close()

	err = Check(zap.NewNop(), TCP("frontend", ln.Addr().String()))
	if err == nil {
		t.Fatal("Check passed with the port occupied")
	}
	if !strings.Contains(err.Error(), "frontend port in use") {
		t.Fatalf("error = %v", err)
	}
}

func TestCheckDetectsUDPConflict(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("occupy port: %v", err)
	}
	defer conn.Close()

	err = Check(zap.NewNop(), UDP("camera", conn.LocalAddr().String()))
	if err == nil {
		t.Fatal("Check passed with the port occupied")
	}
}

func TestCheckReleasesPorts(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("probe port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	if err := Check(zap.NewNop(), TCP("frontend", addr)); err != nil {
		t.Fatalf("Check: %v", err)
	}
	ln2, err := net.Listen("tcp", addr)
	if err != nil {
		t.Fatalf("port not released after Check: %v", err)
	}
	ln2.Close()
}
