// Package fileupload saves files users send to a local directory and offers
// files from that directory for upload to the user's OneDrive.
package fileupload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teamsbots/teamsbots/internal/bot"
	"github.com/teamsbots/teamsbots/internal/files"
	"github.com/teamsbots/teamsbots/internal/schema"
)

// Name is the sample name used in routes and metrics.
const Name = "fileupload"

// Replies.
const (
	ConsentText        = "Please accept the file"
	ConsentDescription = "This is the file I want to send you"
	DownloadFailedText = "Sorry, there was an error downloading the file. Please try again later."
	ImageFailedText    = "Sorry, there was an error processing your image. Please try again later."
	UploadFailedText   = "Sorry, there was an error uploading the file. Please try again later."
)

// Transfer moves file content over HTTP.
type Transfer interface {
	Download(ctx context.Context, url string) ([]byte, error)
	Upload(ctx context.Context, uploadURL string, content []byte) error
}

// Options configures the sample.
type Options struct {
	Dir      *files.Dir
	Transfer Transfer
	// DefaultFile is offered when a message has no attachment.
	DefaultFile string
}

type handler struct {
	dir         *files.Dir
	transfer    Transfer
	defaultFile string
	now         func() time.Time
}

// Register installs the sample handlers on app.
func Register(app *bot.App, opts Options) {
	if opts.DefaultFile == "" {
		opts.DefaultFile = files.DefaultFileName
	}
	h := &handler{
		dir:         opts.Dir,
		transfer:    opts.Transfer,
		defaultFile: opts.DefaultFile,
		now:         time.Now,
	}
	app.OnMessage(h.onMessage)
	app.OnFileConsent(h.onFileConsent)
}

func (h *handler) onMessage(ctx context.Context, c *bot.Context) error {
	var att *schema.Attachment
	for i := range c.Activity.Attachments {
		if c.Activity.Attachments[i].ContentType != schema.ContentTypeTextHTML {
			att = &c.Activity.Attachments[i]
			break
		}
	}
	if att == nil {
		return h.offerFile(ctx, c, h.defaultFile)
	}

	switch {
	case att.ContentType == schema.ContentTypeFileDownloadInfo:
		return h.saveFile(ctx, c, *att)
	case strings.HasPrefix(att.ContentType, "image/"):
		return h.saveImage(ctx, c, *att)
	default:
		_, err := c.Send(ctx, fmt.Sprintf("File attachment received but type '%s' not supported for processing.", att.ContentType))
		return err
	}
}

func (h *handler) saveFile(ctx context.Context, c *bot.Context, att schema.Attachment) error {
	var info schema.FileDownloadInfo
	err := att.DecodeContent(&info)
	if err == nil {
		err = h.fetch(ctx, info.DownloadURL, att.Name)
	}
	if err != nil {
		c.Logger().Error().Err(err).Str("file", att.Name).Msg("Failed to save file")
		_, err := c.Send(ctx, DownloadFailedText)
		return err
	}

	_, err = c.SendActivity(ctx, xmlMessage(fmt.Sprintf("File <b>%s</b> downloaded successfully!", att.Name)))
	return err
}

func (h *handler) saveImage(ctx context.Context, c *bot.Context, att schema.Attachment) error {
	name := files.ReceivedImageName(h.now())
	content, err := h.transfer.Download(ctx, att.ContentURL)
	if err == nil {
		_, err = h.dir.Write(name, bytes.NewReader(content))
	}
	if err != nil {
		c.Logger().Error().Err(err).Str("file", name).Msg("Failed to save image")
		_, err := c.Send(ctx, ImageFailedText)
		return err
	}

	msg := schema.NewMessage(fmt.Sprintf("Received and saved your image. File size: %d bytes", len(content)))
	msg.Attachments = []schema.Attachment{inlineImage(name, "image/png", content)}
	_, err = c.SendActivity(ctx, msg)
	return err
}

func (h *handler) fetch(ctx context.Context, url, name string) error {
	content, err := h.transfer.Download(ctx, url)
	if err != nil {
		return err
	}
	_, err = h.dir.Write(name, bytes.NewReader(content))
	return err
}

func (h *handler) offerFile(ctx context.Context, c *bot.Context, name string) error {
	size, err := h.dir.Size(name)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", name, err)
	}

	consentContext := map[string]string{"fileName": name}
	card := schema.FileConsentCard{
		Description:    ConsentDescription,
		SizeInBytes:    size,
		AcceptContext:  consentContext,
		DeclineContext: consentContext,
	}
	msg := schema.NewMessage(ConsentText)
	msg.Attachments = []schema.Attachment{card.Attachment(name)}
	_, err = c.SendActivity(ctx, msg)
	return err
}

func (h *handler) onFileConsent(ctx context.Context, c *bot.Context, resp schema.FileConsentCardResponse) error {
	name := resp.ContextString("fileName")

	if resp.Action == schema.FileConsentDecline {
		if name == "" {
			name = "file"
		}
		_, err := c.SendActivity(ctx, xmlMessage(fmt.Sprintf("Declined. We won't upload file <b>%s</b>.", name)))
		return err
	}

	if name == "" {
		name = "file.txt"
	}
	content, err := h.dir.Read(name)
	if errors.Is(err, files.ErrNotFound) || errors.Is(err, files.ErrInvalidName) {
		_, err := c.Send(ctx, fmt.Sprintf("File %s not found.", name))
		return err
	}
	if err != nil {
		return err
	}

	if resp.UploadInfo == nil {
		return errors.New("file consent accepted without upload info")
	}
	info := resp.UploadInfo
	if err := h.transfer.Upload(ctx, info.UploadURL, content); err != nil {
		c.Logger().Error().Err(err).Str("file", name).Msg("File upload failed")
		_, err := c.Send(ctx, UploadFailedText)
		return err
	}

	text := fmt.Sprintf("<b>File uploaded successfully.</b> Your file <b>%s</b> has been uploaded to OneDrive.", info.Name)
	mime := files.ImageMIME(name)
	if mime == "" {
		text += fmt.Sprintf(` <a href="%s">OneDrive</a>. Click the link to view or download.`, info.ContentURL)
	}
	msg := xmlMessage(text)
	if mime != "" {
		msg.Attachments = []schema.Attachment{inlineImage(info.Name, mime, content)}
	}
	_, err = c.SendActivity(ctx, msg)
	return err
}

func inlineImage(name, mime string, content []byte) schema.Attachment {
	return schema.Attachment{
		Name:        name,
		ContentType: mime,
		ContentURL:  files.DataURL(mime, content),
	}
}

func xmlMessage(text string) *schema.Activity {
	msg := schema.NewMessage(text)
	msg.TextFormat = schema.TextFormatXML
	return msg
}
