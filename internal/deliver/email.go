package deliver

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"

	"github.com/journalpost/internal/models"
	"gopkg.in/gomail.v2"
)

const emailBodyTemplate = `<html>
<body style="font-family: sans-serif; color: #222;">
<h2>{{.ScheduleName}}</h2>
<p>Your journal export is attached as a PDF.</p>
<table cellpadding="4">
<tr><td><b>Entries</b></td><td>{{.EntryCount}}</td></tr>
<tr><td><b>Exported</b></td><td>{{.ExportedAt.Format "Mon, 02 Jan 2006 15:04 MST"}}</td></tr>
</table>
<p style="color: #888; font-size: 12px;">Sent by journalpost.</p>
</body>
</html>`

// EmailAdapter delivers the document as a PDF attachment over SMTP.
type EmailAdapter struct {
	dialer *gomail.Dialer
	from   string
	tmpl   *template.Template
}

func NewEmailAdapter(host string, port int, from, password string) *EmailAdapter {
	return &EmailAdapter{
		dialer: gomail.NewDialer(host, port, from, password),
		from:   from,
		tmpl:   template.Must(template.New("email").Parse(emailBodyTemplate)),
	}
}

func (a *EmailAdapter) Channel() models.Channel { return models.ChannelEmail }

func (a *EmailAdapter) Deliver(ctx context.Context, rcpt models.Recipient, document []byte, meta Metadata) error {
	var body bytes.Buffer
	if err := a.tmpl.Execute(&body, meta); err != nil {
		return fmt.Errorf("email to %s: failed to build body: %w", rcpt.Address, err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", a.from)
	m.SetHeader("To", rcpt.Address)
	m.SetHeader("Subject", fmt.Sprintf("Journal export: %s", meta.ScheduleName))
	m.SetBody("text/html", body.String())
	m.Attach(meta.Filename, gomail.SetCopyFunc(func(w io.Writer) error {
		_, err := w.Write(document)
		return err
	}))

	// gomail has no context support; run the send aside so the caller's
	// timeout converts an SMTP hang into a per-recipient failure.
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.dialer.DialAndSend(m)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("email to %s: %w", rcpt.Address, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("email to %s: %w", rcpt.Address, ctx.Err())
	}
}
