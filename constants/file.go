package constants

import "strings"

// AllowedExtensions holds the raster formats the decoder is wired for.
var AllowedExtensions = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"gif":  {},
	"bmp":  {},
	"tif":  {},
	"tiff": {},
	"webp": {},
}

// UploadField is the multipart form field carrying the document photo.
const UploadField = "file"

// FaceKey returns the storage key of a customer's face crop.
func FaceKey(customerID string) string {
	return customerID + "_face.jpg"
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsAllowedExt reports whether ext names a decodable image format.
func IsAllowedExt(ext string) bool {
	_, ok := AllowedExtensions[NormalizeExt(ext)]
	return ok
}
