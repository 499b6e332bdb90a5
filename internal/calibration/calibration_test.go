package calibration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cal.cxst")
	payload := []byte{1, 2, 3, 4, 5}

	require.NoError(t, Write(path, payload))

	f, err := Read(path)
	require.NoError(t, err)
	require.Equal(t, CurrentVersion, f.Version)
	require.Equal(t, payload, f.Payload)
}

func TestReadRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cal.cxst")
	require.NoError(t, os.WriteFile(path, []byte("XXXX\x01\x00\x00\x00\x00\x00\x00\x00"), 0o644))

	_, err := Read(path)
	require.Error(t, err)
}

func TestReadRejectsSizeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cal.cxst")
	buf := []byte("CXST\x01\x00\x00\x00\x05\x00\x00\x00abc") // declares 5, only 3 bytes follow
	require.NoError(t, os.WriteFile(path, buf, 0o644))

	_, err := Read(path)
	require.Error(t, err)
}

func TestReadRejectsTruncatedHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cal.cxst")
	require.NoError(t, os.WriteFile(path, []byte("CX"), 0o644))

	_, err := Read(path)
	require.Error(t, err)
}
