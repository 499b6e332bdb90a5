package transport

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sys/unix"
)

// localTransport wraps one end of a full-duplex socketpair as a
// Transport, with an optional spawned child process on the other end.
type localTransport struct {
	conn net.Conn
	cmd  *exec.Cmd
}

// NewLocalHarnessPair creates a close-on-exec socketpair, spawns
// adapterPath with its stdin and stdout both bound to the child's end
// (a single full-duplex socket serves both), and returns the harness's
// side of the transport. File descriptors above 2 are never inherited:
// exec.Cmd only ever hands the child stdin/stdout/stderr plus whatever is
// listed in ExtraFiles, and ExtraFiles is left empty here.
func NewLocalHarnessPair(adapterPath string, args ...string) (Transport, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("socketpair: %w", err)
	}
	parentFd, childFd := fds[0], fds[1]

	// Socketpair above does not request SOCK_CLOEXEC, so close-on-exec is
	// set on both fds immediately after creation. The child still gets
	// its end as stdin/stdout: exec dup2s it onto fds 0 and 1, which do
	// not carry the flag.
	unix.CloseOnExec(parentFd)
	unix.CloseOnExec(childFd)

	parentFile := os.NewFile(uintptr(parentFd), "cortex-adapter-harness-side")
	conn, err := net.FileConn(parentFile)
	parentFile.Close() // FileConn dup'd the fd; release our copy.
	if err != nil {
		unix.Close(parentFd)
		unix.Close(childFd)
		return nil, fmt.Errorf("wrap socketpair fd: %w", err)
	}

	childFile := os.NewFile(uintptr(childFd), "cortex-adapter-child-side")
	defer childFile.Close()

	cmd := exec.Command(adapterPath, args...)
	cmd.Stdin = childFile
	cmd.Stdout = childFile
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("spawn adapter %s: %w", adapterPath, err)
	}

	return &localTransport{conn: conn, cmd: cmd}, nil
}

// NewLocalAdapterPair wraps the adapter process's fd 0 as a full-duplex
// Transport: reads and writes both go through fd 0, which works because
// NewLocalHarnessPair binds one socket to both the adapter's stdin and
// stdout. This is the adapter-side counterpart of NewLocalHarnessPair.
func NewLocalAdapterPair() (Transport, error) {
	conn, err := net.FileConn(os.NewFile(uintptr(unix.Stdin), "stdin"))
	if err != nil {
		return nil, fmt.Errorf("wrap stdio as transport: %w", err)
	}
	return &localTransport{conn: conn}, nil
}

func (t *localTransport) Send(data []byte) error {
	n, err := t.conn.Write(data)
	if err != nil {
		return connResetErr("local_send", err)
	}
	if n != len(data) {
		return connResetErr("local_send", fmt.Errorf("short write: %d of %d bytes", n, len(data)))
	}
	return nil
}

func (t *localTransport) Recv(buf []byte, timeout time.Duration) (int, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, connResetErr("local_recv", err)
	}
	n, err := t.conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return n, timeoutErr("local_recv")
		}
		return n, connResetErr("local_recv", err)
	}
	return n, nil
}

// Close closes the transport's socket and, if this side spawned the
// adapter, reaps the child process. Idempotent: calling Close twice (or
// on a half-initialized transport) never panics.
func (t *localTransport) Close() error {
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
	if t.cmd != nil && t.cmd.Process != nil {
		_, _ = t.cmd.Process.Wait()
		t.cmd = nil
	}
	return nil
}

func (t *localTransport) MonotonicTimestampNs() int64 {
	return monotonicNowNs()
}
