// Package firmware loads firmware files and splits them into the pages
// and chunks the bootloader transfer works in.
package firmware

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/golang/glog"
	"github.com/marcinbor85/gohex"
	"github.com/pkg/errors"
)

// UnsupportedFileTypeError indicates the firmware path has an extension
// the loader does not understand. No I/O is attempted in that case.
type UnsupportedFileTypeError struct {
	Path string
}

// Error implements error.
func (e *UnsupportedFileTypeError) Error() string {
	return fmt.Sprintf("unsupported firmware file type %q (want .bin or .hex)", filepath.Ext(e.Path))
}

// Image is a loaded firmware payload. The content is immutable; the
// page size is negotiated with the device later and lives in the
// transfer layer, not here.
type Image struct {
	name string
	data []byte
}

// Load reads a firmware file. Raw `.bin` content is taken verbatim;
// `.hex` files are decoded from Intel-HEX records into a flat buffer
// holding only the bytes the records explicitly address, in ascending
// address order (gaps between addressed ranges are not filled).
func Load(path string) (*Image, error) {
	var data []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bin":
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read firmware")
		}
		data = raw
	case ".hex":
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrap(err, "read firmware")
		}
		defer f.Close()
		mem := gohex.NewMemory()
		if err := mem.ParseIntelHex(f); err != nil {
			return nil, errors.Wrap(err, "decode intel hex")
		}
		segments := mem.GetDataSegments()
		sort.Slice(segments, func(i, j int) bool { return segments[i].Address < segments[j].Address })
		for _, seg := range segments {
			data = append(data, seg.Data...)
		}
	default:
		return nil, &UnsupportedFileTypeError{Path: path}
	}
	if len(data) == 0 {
		return nil, errors.Errorf("firmware file %s is empty", path)
	}
	img := &Image{name: filepath.Base(path), data: data}
	glog.V(1).Infof("loaded firmware %s (%d bytes)", img.name, len(data))
	return img, nil
}

// NewImage wraps an in-memory payload as a loaded image. name is used
// for display only.
func NewImage(name string, data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, errors.Errorf("firmware %s is empty", name)
	}
	return &Image{name: name, data: data}, nil
}

// Name returns the base name of the source file.
func (i *Image) Name() string { return i.name }

// Len returns the payload size in bytes.
func (i *Image) Len() int { return len(i.data) }

// Bytes returns the payload. Callers must not modify it.
func (i *Image) Bytes() []byte { return i.data }
