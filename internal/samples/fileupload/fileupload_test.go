package fileupload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamsbots/teamsbots/internal/bot"
	"github.com/teamsbots/teamsbots/internal/bot/bottest"
	"github.com/teamsbots/teamsbots/internal/files"
	"github.com/teamsbots/teamsbots/internal/schema"
)

type fakeTransfer struct {
	content   map[string][]byte
	uploaded  map[string][]byte
	uploadErr error
}

func (f *fakeTransfer) Download(_ context.Context, url string) ([]byte, error) {
	b, ok := f.content[url]
	if !ok {
		return nil, errors.New("download failed with status 404")
	}
	return b, nil
}

func (f *fakeTransfer) Upload(_ context.Context, url string, content []byte) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploaded[url] = content
	return nil
}

type fixture struct {
	app      *bot.App
	conn     *bottest.Connector
	dir      *files.Dir
	transfer *fakeTransfer
}

func setup(t *testing.T) *fixture {
	t.Helper()
	dir, err := files.OpenDir(t.TempDir(), files.DefaultFileName)
	require.NoError(t, err)

	f := &fixture{
		conn:     bottest.NewConnector(),
		dir:      dir,
		transfer: &fakeTransfer{content: map[string][]byte{}, uploaded: map[string][]byte{}},
	}
	f.app = bot.New(Name, f.conn)
	Register(f.app, Options{Dir: dir, Transfer: f.transfer})
	return f
}

func TestNoAttachmentOffersDefaultFile(t *testing.T) {
	f := setup(t)

	f.app.Process(context.Background(), bottest.Message("hello"))

	sent := f.conn.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, ConsentText, sent[0].Text)
	require.Len(t, sent[0].Attachments, 1)

	att := sent[0].Attachments[0]
	assert.Equal(t, schema.ContentTypeFileConsent, att.ContentType)
	assert.Equal(t, files.DefaultFileName, att.Name)

	card := att.Content.(schema.FileConsentCard)
	assert.Equal(t, int64(len(files.PlaceholderContent)), card.SizeInBytes)
	assert.Equal(t, map[string]string{"fileName": files.DefaultFileName}, card.AcceptContext)
}

func TestSaveDownloadedFile(t *testing.T) {
	f := setup(t)
	f.transfer.content["https://files.example.com/notes.txt"] = []byte("notes")

	msg := bottest.Message("")
	msg.Attachments = []schema.Attachment{
		{ContentType: schema.ContentTypeTextHTML, Content: "<p></p>"},
		{
			ContentType: schema.ContentTypeFileDownloadInfo,
			Name:        "notes.txt",
			Content:     map[string]any{"downloadUrl": "https://files.example.com/notes.txt"},
		},
	}
	f.app.Process(context.Background(), msg)

	assert.Equal(t, []string{"File <b>notes.txt</b> downloaded successfully!"}, f.conn.Texts())
	b, err := f.dir.Read("notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "notes", string(b))
}

func TestSaveDownloadedFileFailure(t *testing.T) {
	f := setup(t)

	msg := bottest.Message("")
	msg.Attachments = []schema.Attachment{{
		ContentType: schema.ContentTypeFileDownloadInfo,
		Name:        "notes.txt",
		Content:     map[string]any{"downloadUrl": "https://files.example.com/missing"},
	}}
	f.app.Process(context.Background(), msg)

	assert.Equal(t, []string{DownloadFailedText}, f.conn.Texts())
	assert.False(t, f.dir.Exists("notes.txt"))
}

func TestSaveImage(t *testing.T) {
	f := setup(t)
	f.transfer.content["https://smba.example.com/img"] = []byte("png!")

	msg := bottest.Message("")
	msg.Attachments = []schema.Attachment{{ContentType: "image/png", ContentURL: "https://smba.example.com/img"}}
	f.app.Process(context.Background(), msg)

	sent := f.conn.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Received and saved your image. File size: 4 bytes", sent[0].Text)
	require.Len(t, sent[0].Attachments, 1)
	assert.Equal(t, files.DataURL("image/png", []byte("png!")), sent[0].Attachments[0].ContentURL)

	entries, err := os.ReadDir(f.dir.Root())
	require.NoError(t, err)
	var saved []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "ImageFromUser_") {
			saved = append(saved, e.Name())
		}
	}
	assert.Len(t, saved, 1)
}

func TestSaveImageFailure(t *testing.T) {
	f := setup(t)

	msg := bottest.Message("")
	msg.Attachments = []schema.Attachment{{ContentType: "image/jpeg", ContentURL: "https://smba.example.com/gone"}}
	f.app.Process(context.Background(), msg)

	assert.Equal(t, []string{ImageFailedText}, f.conn.Texts())
}

func TestUnsupportedAttachment(t *testing.T) {
	f := setup(t)

	msg := bottest.Message("")
	msg.Attachments = []schema.Attachment{{ContentType: "application/vnd.microsoft.card.hero", Content: map[string]any{}}}
	f.app.Process(context.Background(), msg)

	assert.Equal(t, []string{
		"File attachment received but type 'application/vnd.microsoft.card.hero' not supported for processing.",
	}, f.conn.Texts())
}

func consent(action, name string) *schema.Activity {
	value := map[string]any{
		"action": action,
		"uploadInfo": map[string]any{
			"name":       name,
			"uploadUrl":  "https://onedrive.example.com/upload",
			"contentUrl": "https://onedrive.example.com/" + name,
			"uniqueId":   "unique-1",
			"fileType":   strings.TrimPrefix(filepath.Ext(name), "."),
		},
	}
	if name != "" {
		value["context"] = map[string]any{"fileName": name}
	}
	return bottest.Invoke(schema.InvokeNameFileConsent, value)
}

func TestConsentAcceptImage(t *testing.T) {
	f := setup(t)

	resp := f.app.Process(context.Background(), consent("accept", files.DefaultFileName))
	require.NotNil(t, resp)
	assert.Equal(t, 200, resp.Status)

	assert.Equal(t, files.PlaceholderContent, string(f.transfer.uploaded["https://onedrive.example.com/upload"]))
	sent := f.conn.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "<b>File uploaded successfully.</b> Your file <b>teams-logo.png</b> has been uploaded to OneDrive.", sent[0].Text)
	require.Len(t, sent[0].Attachments, 1)
	assert.Equal(t, "image/png", sent[0].Attachments[0].ContentType)
}

func TestConsentAcceptDocumentLinks(t *testing.T) {
	f := setup(t)
	_, err := f.dir.Write("report.txt", strings.NewReader("report"))
	require.NoError(t, err)

	f.app.Process(context.Background(), consent("accept", "report.txt"))

	sent := f.conn.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, `<a href="https://onedrive.example.com/report.txt">OneDrive</a>`)
	assert.Contains(t, sent[0].Text, "Click the link to view or download.")
	assert.Empty(t, sent[0].Attachments)
}

func TestConsentAcceptMissingFile(t *testing.T) {
	f := setup(t)

	f.app.Process(context.Background(), consent("accept", "nope.txt"))

	assert.Equal(t, []string{"File nope.txt not found."}, f.conn.Texts())
	assert.Empty(t, f.transfer.uploaded)
}

func TestConsentAcceptDefaultsName(t *testing.T) {
	f := setup(t)

	f.app.Process(context.Background(), consent("accept", ""))

	assert.Equal(t, []string{"File file.txt not found."}, f.conn.Texts())
}

func TestConsentAcceptUploadFailure(t *testing.T) {
	f := setup(t)
	f.transfer.uploadErr = errors.New("upload failed with status 500")

	f.app.Process(context.Background(), consent("accept", files.DefaultFileName))

	assert.Equal(t, []string{UploadFailedText}, f.conn.Texts())
}

func TestConsentDecline(t *testing.T) {
	f := setup(t)

	f.app.Process(context.Background(), consent("decline", files.DefaultFileName))
	f.app.Process(context.Background(), consent("decline", ""))

	assert.Equal(t, []string{
		"Declined. We won't upload file <b>teams-logo.png</b>.",
		"Declined. We won't upload file <b>file</b>.",
	}, f.conn.Texts())
}
