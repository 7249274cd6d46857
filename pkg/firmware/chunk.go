package firmware

import "github.com/pkg/errors"

// DefaultChunkSize is the largest slice carried by a single
// write-buffer command.
const DefaultChunkSize = 128

// maxPageSize keeps chunk offsets addressable by the 16-bit buffer
// offset in the write-buffer payload.
const maxPageSize = 1 << 16

// Page is one flash page of the image, sized by the buffer size the
// device reported.
type Page struct {
	Index int
	Data  []byte
}

// Chunk is a slice of a page together with its offset into the
// device's page write buffer. Offsets restart at zero on every page.
type Chunk struct {
	Offset uint16
	Data   []byte
}

// Split cuts data into pages of pageSize bytes. The final page may be
// shorter but is never empty; an exact multiple produces no trailing
// page.
func Split(data []byte, pageSize int) ([]Page, error) {
	if pageSize <= 0 {
		return nil, errors.Errorf("invalid page size %d", pageSize)
	}
	if pageSize > maxPageSize {
		return nil, errors.Errorf("page size %d exceeds the 16-bit write buffer", pageSize)
	}
	pages := make([]Page, 0, (len(data)+pageSize-1)/pageSize)
	for off := 0; off < len(data); off += pageSize {
		end := off + pageSize
		if end > len(data) {
			end = len(data)
		}
		pages = append(pages, Page{Index: len(pages), Data: data[off:end]})
	}
	return pages, nil
}

// Chunks cuts the page into transfer chunks of chunkSize bytes with
// ascending buffer offsets; the final chunk may be shorter. A
// non-positive chunkSize selects DefaultChunkSize.
func (p Page) Chunks(chunkSize int) []Chunk {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	chunks := make([]Chunk, 0, (len(p.Data)+chunkSize-1)/chunkSize)
	for off := 0; off < len(p.Data); off += chunkSize {
		end := off + chunkSize
		if end > len(p.Data) {
			end = len(p.Data)
		}
		chunks = append(chunks, Chunk{Offset: uint16(off), Data: p.Data[off:end]})
	}
	return chunks
}
