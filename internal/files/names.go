package files

import (
	"encoding/base64"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

var typeDefaults = map[string]string{
	"image":       "png",
	"video":       "mp4",
	"audio":       "mp3",
	"text":        "txt",
	"application": "bin",
}

const unsafeExtChars = `*?<>|:"\/`

// InferExtension picks an extension, without the dot, for an attachment.
// It tries the name, then the last segment of the content URL path, then
// the content type subtype, then a default for the main type.
func InferExtension(name, contentURL, contentType string) string {
	if i := strings.LastIndex(name, "."); i >= 0 && i < len(name)-1 {
		return name[i+1:]
	}

	if contentURL != "" {
		p := contentURL
		if i := strings.IndexAny(p, "?#"); i >= 0 {
			p = p[:i]
		}
		last := path.Base(p)
		if i := strings.LastIndex(last, "."); i >= 0 && i < len(last)-1 {
			return last[i+1:]
		}
	}

	if main, sub, ok := strings.Cut(contentType, "/"); ok {
		if sub != "" && !strings.ContainsAny(sub, unsafeExtChars) {
			return sub
		}
		if ext, ok := typeDefaults[main]; ok {
			return ext
		}
	}
	return "bin"
}

// AttachmentName returns a unique name for an unnamed attachment.
func AttachmentName(ext string) string {
	return fmt.Sprintf("Attachment_%s.%s", strings.ReplaceAll(uuid.NewString(), "-", "")[:8], ext)
}

// ReceivedImageName returns the name an inline image is saved under.
func ReceivedImageName(now time.Time) string {
	return fmt.Sprintf("ImageFromUser_%d.png", now.UnixNano())
}

// ImageMIME returns the image MIME type for png, jpg, jpeg and gif file
// names, and "" for anything else.
func ImageMIME(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return ""
	}
}

// DataURL encodes content as a base64 data URL.
func DataURL(mime string, content []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(content)
}
