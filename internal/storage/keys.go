package storage

import (
	"fmt"
	"strings"
)

const artifactRoot = "artifacts"

// ArtifactPrefix is the object prefix all files of one artifact share.
func ArtifactPrefix(key string) string {
	return artifactRoot + "/" + key
}

func OriginalKey(prefix, format string) string {
	return prefix + "/original." + Extension(format)
}

func ProcessedKey(prefix, format string) string {
	return prefix + "/processed." + Extension(format)
}

func RelatedKey(prefix string, seq int, format string) string {
	return fmt.Sprintf("%s/related-%d.%s", prefix, seq, Extension(format))
}

func Extension(format string) string {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "jpeg", "jpg":
		return "jpg"
	case "":
		return "bin"
	default:
		return f
	}
}

// ContentTypeForKey maps an object key's extension back to a media type.
func ContentTypeForKey(key string) string {
	dot := strings.LastIndexByte(key, '.')
	if dot < 0 || dot == len(key)-1 {
		return ContentType("")
	}
	return ContentType(key[dot+1:])
}

func ContentType(format string) string {
	switch Extension(format) {
	case "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "bmp":
		return "image/bmp"
	default:
		return "application/octet-stream"
	}
}
