package update

import "fmt"

// BootloaderEntryError indicates the device never confirmed bootloader
// mode within the retry budget. The session must not transfer.
type BootloaderEntryError struct {
	Attempts int
	LastErr  error
}

// Error implements error
func (e *BootloaderEntryError) Error() string {
	if e.LastErr == nil {
		return fmt.Sprintf("device not in bootloader mode after %d attempts", e.Attempts)
	}
	return fmt.Sprintf("device not in bootloader mode after %d attempts, last error: %v", e.Attempts, e.LastErr)
}

// Unwrap exposes the last attempt's error.
func (e *BootloaderEntryError) Unwrap() error { return e.LastErr }
