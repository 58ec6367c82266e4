package app

import (
	"bytes"

	"github.com/ledongthuc/pdf"
)

// countPDFPages reports the page count of an uploaded PDF, or 0 when the
// payload cannot be parsed. Parsing is best-effort only; a malformed file is
// still accepted for storage.
func countPDFPages(data []byte) (pages int) {
	// The parser panics on some malformed inputs.
	defer func() {
		if recover() != nil {
			pages = 0
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0
	}
	return reader.NumPage()
}
