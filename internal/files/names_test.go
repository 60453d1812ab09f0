package files

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInferExtension(t *testing.T) {
	tests := []struct {
		name        string
		fileName    string
		contentURL  string
		contentType string
		want        string
	}{
		{"from name", "photo.jpeg", "https://x/y.png", "image/png", "jpeg"},
		{"name with trailing dot", "photo.", "https://x/a/img.gif?token=1", "", "gif"},
		{"from url", "", "https://x/a/img.webp?token=1", "image/png", "webp"},
		{"url without extension", "", "https://x/v3/attachments/abc/views/original", "image/png", "png"},
		{"from subtype", "", "", "video/quicktime", "quicktime"},
		{"unsafe subtype uses default", "", "", "image/*", "png"},
		{"empty subtype uses default", "", "", "audio/", "mp3"},
		{"unknown main type", "", "", "model/", "bin"},
		{"nothing known", "", "", "", "bin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InferExtension(tt.fileName, tt.contentURL, tt.contentType))
		})
	}
}

func TestImageMIME(t *testing.T) {
	assert.Equal(t, "image/png", ImageMIME("teams-logo.PNG"))
	assert.Equal(t, "image/jpeg", ImageMIME("a.jpg"))
	assert.Equal(t, "image/jpeg", ImageMIME("a.jpeg"))
	assert.Equal(t, "image/gif", ImageMIME("a.gif"))
	assert.Empty(t, ImageMIME("a.pdf"))
	assert.Empty(t, ImageMIME("png"))
}

func TestNames(t *testing.T) {
	assert.Regexp(t, regexp.MustCompile(`^Attachment_[0-9a-f]{8}\.png$`), AttachmentName("png"))
	assert.Equal(t, "ImageFromUser_5.png", ReceivedImageName(time.Unix(0, 5)))
	assert.Equal(t, "data:image/png;base64,aGk=", DataURL("image/png", []byte("hi")))
}
