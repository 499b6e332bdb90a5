package transport

import (
	"fmt"
	"time"

	"go.bug.st/serial"

	"github.com/WestonVoglesonger/cortex/internal/logging"
)

// defaultBaud is used when a serial:// URI carries no ?baud= parameter.
// 115200 is the common default for USB-UART adapters used in lab rigs.
const defaultBaud = 115200

// serialTransport wraps a UART connection as a Transport. Per-call read
// timeouts are implemented with SetReadTimeout before each Recv, since
// go.bug.st/serial has no per-read deadline API.
type serialTransport struct {
	port serial.Port
}

// NewSerialTransport opens the device path from u (e.g.
// "serial:///dev/ttyUSB0?baud=921600") in 8N1 mode. A baud rate outside
// the supported set {9600, 19200, 38400, 57600, 115200, 230400, 460800,
// 921600} is replaced by the nearest supported rate, with a warning.
func NewSerialTransport(u URI) (Transport, error) {
	if u.Path == "" {
		return nil, fmt.Errorf("serial uri must specify a device path")
	}
	baud := u.Baud
	if baud == 0 {
		baud = defaultBaud
	}
	nearest := 0
	for _, b := range [...]int{9600, 19200, 38400, 57600, 115200, 230400, 460800, 921600} {
		if d, best := int64(b-baud), int64(nearest-baud); nearest == 0 || d*d < best*best {
			nearest = b
		}
	}
	if nearest != baud {
		logging.Warn("unsupported serial baud rate, using nearest supported", "requested", baud, "using", nearest)
		baud = nearest
	}
	mode := &serial.Mode{
		BaudRate: baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(u.Path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", u.Path, err)
	}
	return &serialTransport{port: port}, nil
}

func (t *serialTransport) Send(data []byte) error {
	written := 0
	for written < len(data) {
		n, err := t.port.Write(data[written:])
		if err != nil {
			return connResetErr("serial_send", err)
		}
		if n == 0 {
			return connResetErr("serial_send", fmt.Errorf("zero-byte write"))
		}
		written += n
	}
	return nil
}

func (t *serialTransport) Recv(buf []byte, timeout time.Duration) (int, error) {
	if err := t.port.SetReadTimeout(timeout); err != nil {
		return 0, connResetErr("serial_recv", err)
	}
	n, err := t.port.Read(buf)
	if err != nil {
		return n, connResetErr("serial_recv", err)
	}
	if n == 0 {
		// go.bug.st/serial returns (0, nil) on read timeout rather than
		// a distinct timeout error.
		return 0, timeoutErr("serial_recv")
	}
	return n, nil
}

func (t *serialTransport) Close() error {
	return t.port.Close()
}

func (t *serialTransport) MonotonicTimestampNs() int64 {
	return monotonicNowNs()
}
