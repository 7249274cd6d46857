package firmware

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, content []byte) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestLoadBin(t *testing.T) {
	content := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x42}
	img, err := Load(writeFile(t, "app.bin", content))
	require.NoError(t, err)
	require.Equal(t, content, img.Bytes())
	require.Equal(t, len(content), img.Len())
	require.Equal(t, "app.bin", img.Name())
}

func TestLoadBinCaseInsensitiveExt(t *testing.T) {
	img, err := Load(writeFile(t, "APP.BIN", []byte{1, 2, 3}))
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, img.Bytes())
}

func TestLoadHexSkipsGaps(t *testing.T) {
	// 16 bytes at 0x0000, then 4 bytes at 0x0020: the 16-byte hole in
	// between must not be filled.
	hex := ":10000000000102030405060708090A0B0C0D0E0F78\n" +
		":04002000AABBCCDDCE\n" +
		":00000001FF\n"
	img, err := Load(writeFile(t, "app.hex", []byte(hex)))
	require.NoError(t, err)

	want := append([]byte{}, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15)
	want = append(want, 0xAA, 0xBB, 0xCC, 0xDD)
	require.Equal(t, want, img.Bytes())
}

func TestLoadHexExtendedAddress(t *testing.T) {
	hex := ":10000000000102030405060708090A0B0C0D0E0F78\n" +
		":020000040001F9\n" +
		":020000005A5A4A\n" +
		":00000001FF\n"
	img, err := Load(writeFile(t, "app.hex", []byte(hex)))
	require.NoError(t, err)
	require.Equal(t, 18, img.Len())
	require.Equal(t, []byte{0x5A, 0x5A}, img.Bytes()[16:])
}

func TestLoadHexCorrupt(t *testing.T) {
	_, err := Load(writeFile(t, "app.hex", []byte(":10000000F\n")))
	require.Error(t, err)
}

func TestLoadUnsupportedExtension(t *testing.T) {
	// The extension check happens before any I/O, so the file does not
	// need to exist.
	_, err := Load("/nonexistent/firmware.elf")
	var unsupported *UnsupportedFileTypeError
	require.ErrorAs(t, err, &unsupported)
	require.Contains(t, unsupported.Error(), ".elf")
}

func TestLoadMissingBin(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.bin"))
	require.Error(t, err)
}

func TestLoadEmptyBin(t *testing.T) {
	_, err := Load(writeFile(t, "empty.bin", nil))
	require.Error(t, err)
}
