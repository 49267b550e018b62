package ingest

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/docintake/constants"
	"github.com/joseph-ayodele/docintake/internal/common"
)

// AllowedExt checks if a file extension is in the allowed set (pdf/jpg/jpeg/png).
func AllowedExt(ext string) bool {
	ext = constants.NormalizeExt(ext)
	_, ok := constants.AllowedExtensions[ext]
	return ok
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".")
}

// DetectMIME resolves the content type of an upload. A declared type on the allow-list wins;
// otherwise the bytes are sniffed, then the extension is consulted. Generic or missing
// declarations ("application/octet-stream") fall through to sniffing.
func DetectMIME(filename, declared string, data []byte) string {
	if mt := constants.NormalizeMIME(declared); constants.IsAllowedMIME(mt) {
		return mt
	} else if mt != "" && mt != "application/octet-stream" {
		return mt
	}
	if len(data) > 0 {
		if mt := constants.NormalizeMIME(http.DetectContentType(data)); constants.IsAllowedMIME(mt) {
			return mt
		}
	}
	if mt, ok := constants.AllowedExtensions[constants.NormalizeExt(filepath.Ext(filename))]; ok {
		return mt
	}
	if ext := filepath.Ext(filename); ext != "" {
		return "application/x-" + constants.NormalizeExt(ext)
	}
	return "application/octet-stream"
}

// CheckUpload applies the ingress allow-list and the size cap.
func CheckUpload(mime string, size, maxBytes int64) error {
	if !constants.IsAllowedMIME(mime) {
		return common.NewAppError(constants.ErrCodeUnsupportedFileType,
			fmt.Sprintf("unsupported file type %q; accepted: PDF, JPEG, PNG", mime), common.ErrUnsupportedFileType)
	}
	if size == 0 {
		return common.NewAppError(constants.ErrCodeInvalidInput, "empty file", common.ErrInvalidInput)
	}
	if maxBytes > 0 && size > maxBytes {
		return common.NewAppError(constants.ErrCodePayloadTooLarge,
			fmt.Sprintf("file is %d bytes; the limit is %d", size, maxBytes), common.ErrPayloadTooLarge)
	}
	return nil
}
