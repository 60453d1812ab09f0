package attachments

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamsbots/teamsbots/internal/bot"
	"github.com/teamsbots/teamsbots/internal/bot/bottest"
	"github.com/teamsbots/teamsbots/internal/schema"
	"github.com/teamsbots/teamsbots/internal/storage"
)

type fakeTransfer struct {
	mu        sync.Mutex
	content   map[string][]byte
	uploaded  map[string][]byte
	uploadErr error
}

func newFakeTransfer() *fakeTransfer {
	return &fakeTransfer{content: map[string][]byte{}, uploaded: map[string][]byte{}}
}

func (f *fakeTransfer) Download(_ context.Context, url string) ([]byte, error) {
	b, ok := f.content[url]
	if !ok {
		return nil, errors.New("download failed with status 404")
	}
	return b, nil
}

func (f *fakeTransfer) Upload(_ context.Context, url string, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploaded[url] = content
	return nil
}

type fixture struct {
	app      *bot.App
	conn     *bottest.Connector
	store    *storage.MemoryStore
	transfer *fakeTransfer
	sample   *Sample
}

func setup(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		conn:     bottest.NewConnector(),
		store:    storage.NewMemoryStore(0),
		transfer: newFakeTransfer(),
	}
	f.app = bot.New(Name, f.conn)
	f.sample = Register(f.app, Options{Uploads: f.store, Transfer: f.transfer})
	return f
}

func consentCard(t *testing.T, a *schema.Activity) (schema.FileConsentCard, map[string]string) {
	t.Helper()
	require.Len(t, a.Attachments, 1)
	require.Equal(t, schema.ContentTypeFileConsent, a.Attachments[0].ContentType)
	card, ok := a.Attachments[0].Content.(schema.FileConsentCard)
	require.True(t, ok)
	ctx, ok := card.AcceptContext.(map[string]string)
	require.True(t, ok)
	return card, ctx
}

func TestWelcomeWithoutAttachment(t *testing.T) {
	f := setup(t)

	msg := bottest.Message("hi")
	msg.Attachments = []schema.Attachment{{ContentType: schema.ContentTypeTextHTML, Content: "<p>hi</p>"}}
	f.app.Process(context.Background(), msg)

	assert.Equal(t, []string{WelcomeText}, f.conn.Texts())
}

func TestFileDownloadRequestsConsent(t *testing.T) {
	f := setup(t)
	f.transfer.content["https://files.example.com/report.pdf"] = []byte("%PDF-data")

	msg := bottest.Message("")
	msg.Attachments = []schema.Attachment{{
		ContentType: schema.ContentTypeFileDownloadInfo,
		Name:        "report.pdf",
		Content:     map[string]any{"downloadUrl": "https://files.example.com/report.pdf", "fileType": "pdf"},
	}}
	f.app.Process(context.Background(), msg)

	sent := f.conn.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "Received <b>report.pdf</b>. Requesting permission to save to your OneDrive...", sent[0].Text)

	card, consent := consentCard(t, sent[1])
	assert.Equal(t, "report.pdf", sent[1].Attachments[0].Name)
	assert.Equal(t, int64(9), card.SizeInBytes)
	assert.Equal(t, ConsentDescription, card.Description)
	assert.Equal(t, "report.pdf", consent["filename"])

	pending, err := f.store.TakeUpload(consent["file_id"])
	require.NoError(t, err)
	assert.Equal(t, "%PDF-data", string(pending.Content))
}

func TestInlineImageRequestsConsent(t *testing.T) {
	f := setup(t)
	f.transfer.content["https://smba.example.com/v3/attachments/1/views/original"] = []byte("png-bytes")

	msg := bottest.Message("")
	msg.Attachments = []schema.Attachment{{
		ContentType: "image/*",
		ContentURL:  "https://smba.example.com/v3/attachments/1/views/original",
	}}
	f.app.Process(context.Background(), msg)

	sent := f.conn.Sent()
	require.Len(t, sent, 2)
	assert.Regexp(t, `^Received <b>Attachment_[0-9a-f]{8}\.png</b> \(9 bytes\)\. Requesting permission`, sent[0].Text)
}

func TestDownloadFailureIsSilent(t *testing.T) {
	f := setup(t)

	msg := bottest.Message("")
	msg.Attachments = []schema.Attachment{{
		ContentType: schema.ContentTypeFileDownloadInfo,
		Name:        "gone.txt",
		Content:     map[string]any{"downloadUrl": "https://files.example.com/gone"},
	}}
	f.app.Process(context.Background(), msg)

	assert.Empty(t, f.conn.Sent())
}

func seedPending(t *testing.T, f *fixture) string {
	t.Helper()
	require.NoError(t, f.store.PutUpload(&storage.PendingUpload{ID: "file-1", Filename: "report.pdf", Content: []byte("data")}))
	return "file-1"
}

func consentResponse(action, fileID string) map[string]any {
	return map[string]any{
		"action":  action,
		"context": map[string]any{"filename": "report.pdf", "file_id": fileID},
		"uploadInfo": map[string]any{
			"name":       "report.pdf",
			"uploadUrl":  "https://onedrive.example.com/upload/1",
			"contentUrl": "https://onedrive.example.com/report.pdf",
			"uniqueId":   "unique-1",
			"fileType":   "pdf",
		},
	}
}

func TestConsentAcceptUploads(t *testing.T) {
	f := setup(t)
	id := seedPending(t, f)

	f.app.Process(context.Background(), bottest.Invoke(schema.InvokeNameFileConsent, consentResponse("accept", id)))
	f.sample.Wait()

	assert.Equal(t, "data", string(f.transfer.uploaded["https://onedrive.example.com/upload/1"]))

	sent := f.conn.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "Accepted. Uploading <b>report.pdf</b>...", sent[0].Text)
	assert.Equal(t, "<b>report.pdf</b> has been successfully uploaded.", sent[1].Text)
	require.Len(t, sent[1].Attachments, 1)
	assert.Equal(t, schema.ContentTypeFileInfo, sent[1].Attachments[0].ContentType)
	assert.Equal(t, "https://onedrive.example.com/report.pdf", sent[1].Attachments[0].ContentURL)

	_, err := f.store.TakeUpload(id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestConsentAcceptUploadFailure(t *testing.T) {
	f := setup(t)
	f.transfer.uploadErr = errors.New("upload failed with status 500")
	id := seedPending(t, f)

	f.app.Process(context.Background(), bottest.Invoke(schema.InvokeNameFileConsent, consentResponse("accept", id)))
	f.sample.Wait()

	assert.Equal(t, []string{"Accepted. Uploading <b>report.pdf</b>..."}, f.conn.Texts())
	_, err := f.store.TakeUpload(id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestConsentDecline(t *testing.T) {
	f := setup(t)
	id := seedPending(t, f)

	f.app.Process(context.Background(), bottest.Invoke(schema.InvokeNameFileConsent, consentResponse("decline", id)))

	assert.Equal(t, []string{"Declined. We won't upload file <b>report.pdf</b>."}, f.conn.Texts())
	_, err := f.store.TakeUpload(id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
