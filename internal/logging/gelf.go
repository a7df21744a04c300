package logging

import (
	"fmt"
	"io"

	"github.com/Graylog2/go-gelf/gelf"
)

// NewGelfWriter connects a UDP GELF writer for Graylog forwarding. The
// returned writer is safe to hand to SetGelfWriter.
func NewGelfWriter(address string) (io.Writer, error) {
	w, err := gelf.NewWriter(address)
	if err != nil {
		return nil, fmt.Errorf("connecting gelf writer: %w", err)
	}
	w.Facility = "phantomjam"
	return w, nil
}
