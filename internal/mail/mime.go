package mail

import (
	"mime"
	"strings"
)

var mimeExtensions = map[string]string{
	"image/jpeg":         ".jpg",
	"image/png":          ".png",
	"image/gif":          ".gif",
	"image/webp":         ".webp",
	"application/pdf":    ".pdf",
	"text/plain":         ".txt",
	"text/html":          ".html",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   ".docx",
	"application/vnd.ms-excel":                                                  ".xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         ".xlsx",
	"application/vnd.ms-powerpoint":                                             ".ppt",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": ".pptx",
	"application/zip":              ".zip",
	"application/x-rar-compressed": ".rar",
	"application/x-7z-compressed":  ".7z",
	"video/mp4":                    ".mp4",
	"video/avi":                    ".avi",
	"video/quicktime":              ".mov",
	"audio/mp3":                    ".mp3",
	"audio/wav":                    ".wav",
	"audio/ogg":                    ".ogg",
}

// ExtensionForMIME maps a content type (parameters ignored) to a file
// extension; unknown types get ".bin".
func ExtensionForMIME(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(contentType))
	}
	if ext, ok := mimeExtensions[mt]; ok {
		return ext
	}
	return ".bin"
}
