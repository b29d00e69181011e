package model

import (
	"path/filepath"
	"strings"
)

type FileType string

const (
	FileTypePDF     FileType = "pdf"
	FileTypePPTX    FileType = "pptx"
	FileTypeDOCX    FileType = "docx"
	FileTypeXLSX    FileType = "xlsx"
	FileTypeTXT     FileType = "txt"
	FileTypeImage   FileType = "image"
	FileTypeUnknown FileType = "unknown"
)

// DetectFileType resolves the document family from the file extension first
// and the declared mime type second.
func DetectFileType(fileName, mimeType string) FileType {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), ".")
	mt := strings.ToLower(mimeType)

	switch {
	case ext == "pdf" || strings.Contains(mt, "pdf"):
		return FileTypePDF
	case ext == "pptx" || ext == "ppt" || strings.Contains(mt, "presentation") || strings.Contains(mt, "powerpoint"):
		return FileTypePPTX
	case ext == "xlsx" || ext == "xls" || strings.Contains(mt, "spreadsheet") || strings.Contains(mt, "excel"):
		return FileTypeXLSX
	case ext == "docx" || ext == "doc" || strings.Contains(mt, "word") || strings.Contains(mt, "document"):
		return FileTypeDOCX
	case ext == "txt" || ext == "md" || strings.HasPrefix(mt, "text/plain") || strings.HasPrefix(mt, "text/markdown"):
		return FileTypeTXT
	case ext == "png" || ext == "jpg" || ext == "jpeg" || ext == "webp" || ext == "gif" || strings.HasPrefix(mt, "image/"):
		return FileTypeImage
	}
	return FileTypeUnknown
}

// IsOffice reports whether the type goes through the provider chain rather
// than the local page engine.
func (t FileType) IsOffice() bool {
	return t == FileTypePPTX || t == FileTypeDOCX || t == FileTypeXLSX
}
