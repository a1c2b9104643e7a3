package handshake

import (
	"io"
	"net"
	"testing"
)

func TestHandshakeRoundTrip(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	errCh := make(chan error, 2)
	go func() {
		_, err := ServerHandshake(serverConn, Options{})
		errCh <- err
	}()
	go func() {
		_, err := ClientHandshake(clientConn, Options{})
		errCh <- err
	}()

	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil {
			t.Fatalf("handshake failed: %v", err)
		}
	}
}

func TestServerHandshakeLenientVersion(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	done := make(chan error, 1)
	go func() {
		_, err := ServerHandshake(serverConn, Options{})
		done <- err
	}()

	// Write a higher-than-3 version byte plus a valid C1 packet; lenient
	// mode must accept it.
	go func() {
		clientConn.Write([]byte{9})
		clientConn.Write(make([]byte, packetSize))
	}()

	// Drain S0/S1/S2 so ServerHandshake doesn't block on the write side,
	// then supply C2.
	go func() {
		buf := make([]byte, 1+packetSize*2)
		io.ReadFull(clientConn, buf)
		clientConn.Write(make([]byte, packetSize))
	}()

	if err := <-done; err != nil {
		t.Fatalf("expected lenient acceptance of version 9, got %v", err)
	}
}

func TestServerHandshakeStrictRejectsHighVersion(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	done := make(chan error, 1)
	go func() {
		_, err := ServerHandshake(serverConn, Options{Strict: true})
		done <- err
	}()
	go func() {
		clientConn.Write([]byte{9})
	}()

	if err := <-done; err == nil {
		t.Fatal("expected strict mode to reject a non-3 version byte")
	}
}
