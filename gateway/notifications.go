package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dlerazeezcore/the-book-platform/env"
	"github.com/dlerazeezcore/the-book-platform/httpserver"
	"github.com/dlerazeezcore/the-book-platform/logger"
	"github.com/dlerazeezcore/the-book-platform/process"
)

const (
	defaultSMTPURL  = "smtps://smtppro.zoho.com:465"
	mailSendTimeout = 25 * time.Second
)

// Mailer sends mail through an SMTP relay by shelling out to curl, which
// handles the TLS/auth dance without an SMTP library.
type Mailer struct {
	logger logger.Logger

	URL  string
	User string
	Pass string
	From string

	// curlPath is swapped out in tests
	curlPath string
}

// MailerFromEnvironment builds a Mailer from SMTP_URL, SMTP_USER,
// SMTP_PASS and SMTP_FROM.
func MailerFromEnvironment(l logger.Logger, e *env.Environment) *Mailer {
	user := e.GetOrDefault("SMTP_USER", "")
	return &Mailer{
		logger:   l,
		URL:      e.GetOrDefault("SMTP_URL", defaultSMTPURL),
		User:     user,
		Pass:     e.GetOrDefault("SMTP_PASS", ""),
		From:     e.GetOrDefault("SMTP_FROM", user),
		curlPath: "curl",
	}
}

// Send delivers one plain-text message. It blocks until curl exits or
// the timeout lapses.
func (m *Mailer) Send(ctx context.Context, to, subject, body string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return errors.New("missing recipient email")
	}
	if m.User == "" || m.Pass == "" {
		return errors.New("SMTP credentials are missing")
	}

	msg := fmt.Sprintf("From: %s\nTo: %s\nSubject: %s\n\n%s\n", m.From, to, subject, body)

	var out bytes.Buffer
	p := process.New(m.logger, process.Config{
		Path: m.curlPath,
		Args: []string{
			"--url", m.URL,
			"--ssl-reqd",
			"--user", m.User + ":" + m.Pass,
			"--mail-from", m.From,
			"--mail-rcpt", to,
			"-T", "-",
		},
		Stdin:  strings.NewReader(msg),
		Stdout: &out,
		Stderr: &out,
	})

	ctx, cancel := context.WithTimeout(ctx, mailSendTimeout)
	defer cancel()

	if err := p.Run(ctx); err != nil {
		return fmt.Errorf("running curl: %w", err)
	}
	if code := p.WaitStatus(); code != 0 {
		detail := strings.TrimSpace(out.String())
		if detail == "" {
			detail = fmt.Sprintf("curl failed (code %d)", code)
		}
		return errors.New(detail)
	}
	return nil
}

// EmailRequest is the body of POST /api/notify/email.
type EmailRequest struct {
	ToEmail string `json:"to_email"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (s *Server) handleNotifyEmail(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := httpserver.ReadJSON(r, &req); err != nil {
		httpserver.WriteError(w, err, http.StatusBadRequest)
		return
	}
	if req.ToEmail == "" || req.Subject == "" || req.Body == "" {
		httpserver.WriteError(w, errors.New("to_email, subject and body are required"), http.StatusBadRequest)
		return
	}

	if err := s.mailer.Send(r.Context(), req.ToEmail, req.Subject, req.Body); err != nil {
		httpserver.WriteJSON(w, http.StatusInternalServerError, map[string]string{
			"status": "error",
			"error":  err.Error(),
		})
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
