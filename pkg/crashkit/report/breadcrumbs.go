// breadcrumbs.go keeps the most recent log messages in a ring buffer.

package report

// breadcrumbBuffer is a bounded ring buffer. Not safe for concurrent use;
// the client guards it.
type breadcrumbBuffer struct {
	records  []Breadcrumb
	maxSize  int
	writeIdx int
}

func newBreadcrumbBuffer(maxSize int) *breadcrumbBuffer {
	return &breadcrumbBuffer{maxSize: maxSize}
}

// Add appends a record, evicting the oldest if the buffer is full.
func (b *breadcrumbBuffer) Add(record Breadcrumb) {
	if b.maxSize <= 0 {
		return
	}
	if len(b.records) < b.maxSize {
		b.records = append(b.records, record)
		return
	}
	b.records[b.writeIdx] = record
	b.writeIdx = (b.writeIdx + 1) % b.maxSize
}

// All returns a copy of the records, oldest first.
func (b *breadcrumbBuffer) All() []Breadcrumb {
	if len(b.records) == 0 {
		return nil
	}
	result := make([]Breadcrumb, len(b.records))
	if len(b.records) < b.maxSize {
		copy(result, b.records)
		return result
	}
	// writeIdx points to the oldest record
	copy(result, b.records[b.writeIdx:])
	copy(result[len(b.records)-b.writeIdx:], b.records[:b.writeIdx])
	return result
}

// Len returns the number of stored records.
func (b *breadcrumbBuffer) Len() int {
	return len(b.records)
}
