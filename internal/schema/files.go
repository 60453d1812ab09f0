package schema

// File consent actions.
const (
	FileConsentAccept  = "accept"
	FileConsentDecline = "decline"
)

// InvokeNameFileConsent is the invoke name of a file consent card response.
const InvokeNameFileConsent = "fileConsent/invoke"

// FileConsentCard asks the user for permission to upload a file to their
// OneDrive.
type FileConsentCard struct {
	Description    string `json:"description,omitempty"`
	SizeInBytes    int64  `json:"sizeInBytes"`
	AcceptContext  any    `json:"acceptContext,omitempty"`
	DeclineContext any    `json:"declineContext,omitempty"`
}

// Attachment wraps the consent card in an attachment named after the file.
func (c FileConsentCard) Attachment(filename string) Attachment {
	return Attachment{ContentType: ContentTypeFileConsent, Name: filename, Content: c}
}

// FileConsentCardResponse is the invoke value sent when the user answers a
// consent card.
type FileConsentCardResponse struct {
	Action     string          `json:"action"`
	Context    map[string]any  `json:"context,omitempty"`
	UploadInfo *FileUploadInfo `json:"uploadInfo,omitempty"`
}

// ContextString returns a string value from the response context.
func (r FileConsentCardResponse) ContextString(key string) string {
	if r.Context == nil {
		return ""
	}
	s, _ := r.Context[key].(string)
	return s
}

// FileUploadInfo describes where an accepted file should be uploaded.
type FileUploadInfo struct {
	Name       string `json:"name,omitempty"`
	UploadURL  string `json:"uploadUrl,omitempty"`
	ContentURL string `json:"contentUrl,omitempty"`
	UniqueID   string `json:"uniqueId,omitempty"`
	FileType   string `json:"fileType,omitempty"`
}

// FileInfoCard links to a file stored in OneDrive.
type FileInfoCard struct {
	UniqueID string `json:"uniqueId,omitempty"`
	FileType string `json:"fileType,omitempty"`
	Etag     any    `json:"etag,omitempty"`
}

// Attachment wraps the info card in an attachment.
func (c FileInfoCard) Attachment(name, contentURL string) Attachment {
	return Attachment{
		ContentType: ContentTypeFileInfo,
		ContentURL:  contentURL,
		Name:        name,
		Content:     c,
	}
}

// FileDownloadInfo is the content of a file a user sent to the bot.
type FileDownloadInfo struct {
	DownloadURL string `json:"downloadUrl"`
	UniqueID    string `json:"uniqueId,omitempty"`
	FileType    string `json:"fileType,omitempty"`
	Etag        any    `json:"etag,omitempty"`
}
