package transport

import "testing"

func TestParseURIDefaultsToLocal(t *testing.T) {
	u, err := ParseURI("")
	if err != nil {
		t.Fatalf("ParseURI(\"\") error: %v", err)
	}
	if u.Scheme != "local" {
		t.Fatalf("expected local scheme, got %q", u.Scheme)
	}
}

func TestParseURITCP(t *testing.T) {
	u, err := ParseURI("tcp://127.0.0.1:9000?timeout_ms=250")
	if err != nil {
		t.Fatalf("ParseURI error: %v", err)
	}
	if u.Scheme != "tcp" || u.Host != "127.0.0.1" || u.Port != 9000 {
		t.Fatalf("unexpected parse result: %+v", u)
	}
	if got := u.QueryDurationMs("timeout_ms", 5000); got != 250 {
		t.Fatalf("expected timeout_ms=250, got %d", got)
	}
	if got := u.QueryDurationMs("missing_ms", 5000); got != 5000 {
		t.Fatalf("expected default 5000, got %d", got)
	}
}

func TestParseURISerial(t *testing.T) {
	u, err := ParseURI("serial:///dev/ttyUSB0?baud=921600")
	if err != nil {
		t.Fatalf("ParseURI error: %v", err)
	}
	if u.Scheme != "serial" || u.Path != "/dev/ttyUSB0" || u.Baud != 921600 {
		t.Fatalf("unexpected parse result: %+v", u)
	}
}

func TestParseURIShm(t *testing.T) {
	u, err := ParseURI("shm://cortex-run-01")
	if err != nil {
		t.Fatalf("ParseURI error: %v", err)
	}
	if u.Scheme != "shm" || u.Path != "cortex-run-01" {
		t.Fatalf("unexpected parse result: %+v", u)
	}
}

func TestParseURIInvalidPort(t *testing.T) {
	if _, err := ParseURI("tcp://host:notaport"); err == nil {
		t.Fatal("expected error for invalid port")
	}
}
