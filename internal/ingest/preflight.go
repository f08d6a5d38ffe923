package ingest

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// preflight runs cheap local checks before a file costs an upload.
// Currently it rejects empty files and unreadable or page-less PDFs;
// everything else passes through untouched.
func preflight(f File) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("file is empty")
	}
	if strings.EqualFold(filepath.Ext(f.Name), ".pdf") {
		return checkPDF(f.Data)
	}
	return nil
}

func checkPDF(data []byte) (err error) {
	// The pdf package panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unreadable pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("unreadable pdf: %w", err)
	}
	if r.NumPage() == 0 {
		return fmt.Errorf("pdf has no pages")
	}
	return nil
}
