package static

import (
	"mime"
	"path/filepath"
)

// mimeTypeFor resolves a Content-Type from the file extension. The pack
// carries no dedicated content-sniffing library (fasthttp resolves static
// content types the same stdlib way internally), so this one corner stays
// on mime.TypeByExtension rather than reaching for a third-party sniffer.
func mimeTypeFor(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
