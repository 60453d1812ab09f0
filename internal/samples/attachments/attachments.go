// Package attachments receives files and inline images from users and, after
// consent, uploads them to the user's OneDrive.
package attachments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teamsbots/teamsbots/internal/bot"
	"github.com/teamsbots/teamsbots/internal/files"
	"github.com/teamsbots/teamsbots/internal/schema"
	"github.com/teamsbots/teamsbots/internal/storage"
)

// Name is the sample name used in routes and metrics.
const Name = "attachments"

// Replies.
const (
	WelcomeText        = "Welcome to the Bot Attachments sample! Please attach a file or image to save to your OneDrive!"
	ConsentDescription = "This is the file I want to send you"
)

// Transfer moves file content over HTTP.
type Transfer interface {
	Download(ctx context.Context, url string) ([]byte, error)
	Upload(ctx context.Context, uploadURL string, content []byte) error
}

// Options configures the sample.
type Options struct {
	Uploads  storage.UploadStore
	Transfer Transfer
}

// Sample holds the sample state.
type Sample struct {
	uploads  storage.UploadStore
	transfer Transfer
	wg       sync.WaitGroup
}

// Register installs the sample handlers on app.
func Register(app *bot.App, opts Options) *Sample {
	s := &Sample{uploads: opts.Uploads, transfer: opts.Transfer}
	app.OnMessage(s.onMessage)
	app.OnFileConsent(s.onFileConsent)
	return s
}

// Wait blocks until background uploads finish.
func (s *Sample) Wait() {
	s.wg.Wait()
}

func (s *Sample) onMessage(ctx context.Context, c *bot.Context) error {
	att, ok := firstFile(c.Activity.Attachments)
	if !ok {
		_, err := c.Send(ctx, WelcomeText)
		return err
	}

	if att.ContentType == schema.ContentTypeFileDownloadInfo {
		return s.receiveFile(ctx, c, att)
	}
	return s.receiveInlineImage(ctx, c, att)
}

func (s *Sample) receiveFile(ctx context.Context, c *bot.Context, att schema.Attachment) error {
	var info schema.FileDownloadInfo
	if err := att.DecodeContent(&info); err != nil {
		return err
	}

	content, err := s.transfer.Download(ctx, info.DownloadURL)
	if err != nil {
		c.Logger().Error().Err(err).Str("file", att.Name).Msg("Failed to download attachment")
		return nil
	}

	filename := att.Name
	if filename == "" {
		filename = fmt.Sprintf("image_%s.png", uuid.NewString())
	}

	return s.requestConsent(ctx, c, filename, content,
		fmt.Sprintf("Received <b>%s</b>. Requesting permission to save to your OneDrive...", filename))
}

func (s *Sample) receiveInlineImage(ctx context.Context, c *bot.Context, att schema.Attachment) error {
	filename := files.AttachmentName(files.InferExtension(att.Name, att.ContentURL, att.ContentType))

	content, err := s.transfer.Download(ctx, att.ContentURL)
	if err != nil {
		c.Logger().Error().Err(err).Str("file", filename).Msg("Failed to download inline image")
		return nil
	}

	return s.requestConsent(ctx, c, filename, content,
		fmt.Sprintf("Received <b>%s</b> (%d bytes). Requesting permission to save to your OneDrive...", filename, len(content)))
}

func (s *Sample) requestConsent(ctx context.Context, c *bot.Context, filename string, content []byte, notice string) error {
	upload := &storage.PendingUpload{
		ID:             uuid.NewString(),
		Filename:       filename,
		Content:        content,
		ConversationID: c.Activity.Conversation.ID,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.uploads.PutUpload(upload); err != nil {
		return fmt.Errorf("failed to store pending upload: %w", err)
	}

	if _, err := c.SendActivity(ctx, xmlMessage(notice)); err != nil {
		return err
	}

	consentContext := map[string]string{"filename": filename, "file_id": upload.ID}
	card := schema.FileConsentCard{
		Description:    ConsentDescription,
		SizeInBytes:    upload.Size(),
		AcceptContext:  consentContext,
		DeclineContext: consentContext,
	}
	msg := schema.NewMessage("")
	msg.Attachments = []schema.Attachment{card.Attachment(filename)}
	_, err := c.SendActivity(ctx, msg)
	return err
}

func (s *Sample) onFileConsent(ctx context.Context, c *bot.Context, resp schema.FileConsentCardResponse) error {
	filename := resp.ContextString("filename")
	fileID := resp.ContextString("file_id")

	switch resp.Action {
	case schema.FileConsentAccept:
		if _, err := c.SendActivity(ctx, xmlMessage(fmt.Sprintf("Accepted. Uploading <b>%s</b>...", filename))); err != nil {
			return err
		}
		if resp.UploadInfo == nil {
			return errors.New("file consent accepted without upload info")
		}

		info := *resp.UploadInfo
		bg := context.WithoutCancel(ctx)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.upload(bg, c, info, fileID)
		}()
		return nil

	case schema.FileConsentDecline:
		if err := s.uploads.DeleteUpload(fileID); err != nil {
			c.Logger().Warn().Err(err).Str("file_id", fileID).Msg("Failed to drop pending upload")
		}
		_, err := c.SendActivity(ctx, xmlMessage(fmt.Sprintf("Declined. We won't upload file <b>%s</b>.", filename)))
		return err
	}
	return nil
}

// upload sends the pending file to OneDrive. Failures are logged only and
// drop the pending upload.
func (s *Sample) upload(ctx context.Context, c *bot.Context, info schema.FileUploadInfo, fileID string) {
	log := c.Logger().With().Str("file_id", fileID).Logger()

	pending, err := s.uploads.TakeUpload(fileID)
	if err != nil {
		log.Error().Err(err).Msg("Pending upload not found")
		return
	}

	if err := s.transfer.Upload(ctx, info.UploadURL, pending.Content); err != nil {
		log.Error().Err(err).Msg("File upload failed")
		return
	}

	msg := xmlMessage(fmt.Sprintf("<b>%s</b> has been successfully uploaded.", info.Name))
	msg.Attachments = []schema.Attachment{
		schema.FileInfoCard{UniqueID: info.UniqueID, FileType: info.FileType}.Attachment(info.Name, info.ContentURL),
	}
	if _, err := c.SendActivity(ctx, msg); err != nil {
		log.Error().Err(err).Msg("Failed to send upload confirmation")
		return
	}
	log.Info().Int64("bytes", pending.Size()).Msg("File uploaded")
}

// firstFile returns the first downloadable file or inline image.
func firstFile(atts []schema.Attachment) (schema.Attachment, bool) {
	for _, a := range atts {
		if a.ContentType == schema.ContentTypeFileDownloadInfo ||
			(strings.HasPrefix(a.ContentType, "image/") && a.ContentURL != "") {
			return a, true
		}
	}
	return schema.Attachment{}, false
}

func xmlMessage(text string) *schema.Activity {
	msg := schema.NewMessage(text)
	msg.TextFormat = schema.TextFormatXML
	return msg
}
