package bridge

import (
	"net"
	"testing"
)

func TestClaimPortSkipsOccupied(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to occupy a port: %v", err)
	}
	defer ln.Close()
	occupied := ln.Addr().(*net.TCPAddr).Port

	port, err := claimPort(occupied, 5)
	if err != nil {
		t.Fatalf("claimPort returned error: %v", err)
	}
	if port == occupied {
		t.Fatalf("claimPort returned the already-occupied port %d", port)
	}
}

func TestClaimPortExhaustsRange(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to occupy a port: %v", err)
	}
	defer ln.Close()
	occupied := ln.Addr().(*net.TCPAddr).Port

	if _, err := claimPort(occupied, 1); err == nil {
		t.Fatalf("expected an error when the only candidate port is occupied")
	}
}
