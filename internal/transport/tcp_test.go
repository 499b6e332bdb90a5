package transport

import (
	"net"
	"strconv"
	"testing"
	"time"
)

func freeTCPPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestTCPClientServerRoundTrip(t *testing.T) {
	port := freeTCPPort(t)

	serverURI, _ := ParseURI("tcp://:" + strconv.Itoa(port) + "?accept_timeout_ms=2000")
	clientURI, _ := ParseURI("tcp://127.0.0.1:" + strconv.Itoa(port))

	serverCh := make(chan Transport, 1)
	errCh := make(chan error, 1)
	go func() {
		srv, err := NewTCPServer(serverURI)
		if err != nil {
			errCh <- err
			return
		}
		serverCh <- srv
	}()

	time.Sleep(50 * time.Millisecond)

	client, err := NewTCPClient(clientURI)
	if err != nil {
		t.Fatalf("NewTCPClient: %v", err)
	}
	defer client.Close()

	var server Transport
	select {
	case server = <-serverCh:
	case err := <-errCh:
		t.Fatalf("NewTCPServer: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("server accept timed out")
	}
	defer server.Close()

	payload := []byte("hello cortex")
	if err := client.Send(payload); err != nil {
		t.Fatalf("client.Send: %v", err)
	}

	buf := make([]byte, 64)
	n, err := server.Recv(buf, time.Second)
	if err != nil {
		t.Fatalf("server.Recv: %v", err)
	}
	if string(buf[:n]) != string(payload) {
		t.Fatalf("expected %q, got %q", payload, buf[:n])
	}
}

func TestTCPRecvTimeout(t *testing.T) {
	port := freeTCPPort(t)
	serverURI, _ := ParseURI("tcp://:" + strconv.Itoa(port) + "?accept_timeout_ms=2000")
	clientURI, _ := ParseURI("tcp://127.0.0.1:" + strconv.Itoa(port))

	serverCh := make(chan Transport, 1)
	go func() {
		srv, err := NewTCPServer(serverURI)
		if err == nil {
			serverCh <- srv
		}
	}()
	time.Sleep(50 * time.Millisecond)

	client, err := NewTCPClient(clientURI)
	if err != nil {
		t.Fatalf("NewTCPClient: %v", err)
	}
	defer client.Close()

	server := <-serverCh
	defer server.Close()

	buf := make([]byte, 16)
	_, err = server.Recv(buf, 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestTCPServerRejectsHostInURI(t *testing.T) {
	u, _ := ParseURI("tcp://127.0.0.1:9999")
	if _, err := NewTCPServer(u); err == nil {
		t.Fatal("expected error for server uri with host")
	}
}
