// Package calibration reads and writes CXST calibration-state files:
// a 4-byte magic, a version, a size, and an opaque payload handed
// verbatim to a kernel's Init.
package calibration

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/WestonVoglesonger/cortex/internal/cortexerr"
)

var magic = [4]byte{'C', 'X', 'S', 'T'}

const headerSize = 4 + 4 + 4 // magic + version + size

// CurrentVersion is the version stamped by Write.
const CurrentVersion uint32 = 1

// File is a parsed CXST file.
type File struct {
	Version uint32
	Payload []byte
}

// Read loads and validates a CXST file from path.
func Read(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cortexerr.New("calibration_read", cortexerr.INVALID_CONFIG, fmt.Sprintf("read %s: %v", path, err))
	}
	if len(data) < headerSize {
		return nil, cortexerr.New("calibration_read", cortexerr.INVALID_CONFIG, "file shorter than CXST header")
	}
	if data[0] != magic[0] || data[1] != magic[1] || data[2] != magic[2] || data[3] != magic[3] {
		return nil, cortexerr.New("calibration_read", cortexerr.INVALID_CONFIG, "bad CXST magic")
	}
	version := binary.LittleEndian.Uint32(data[4:8])
	size := binary.LittleEndian.Uint32(data[8:12])
	if int(size) != len(data)-headerSize {
		return nil, cortexerr.New("calibration_read", cortexerr.INVALID_CONFIG, "declared size does not match payload length")
	}
	payload := make([]byte, size)
	copy(payload, data[headerSize:])
	return &File{Version: version, Payload: payload}, nil
}

// Write stamps a CXST header over payload and writes it to path.
func Write(path string, payload []byte) error {
	buf := make([]byte, headerSize+len(payload))
	copy(buf[0:4], magic[:])
	binary.LittleEndian.PutUint32(buf[4:8], CurrentVersion)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(payload)))
	copy(buf[headerSize:], payload)

	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return cortexerr.New("calibration_write", cortexerr.INVALID_CONFIG, fmt.Sprintf("write %s: %v", path, err))
	}
	return nil
}
