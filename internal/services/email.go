package services

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html"
	"mime"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"

	"go.uber.org/zap"
)

const siteName = "טעם של שמחה"

type EmailService struct {
	host        string
	port        string
	user        string
	pass        string
	from        string
	devMode     bool
	logger      *zap.Logger
	send        func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailService(host, port, user, pass, from string, logger *zap.Logger) *EmailService {
	devMode := host == "" || user == ""
	if devMode {
		logger.Warn("email service running in dev mode, messages are logged instead of sent")
	}
	return &EmailService{
		host:        host,
		port:        port,
		user:        user,
		pass:        pass,
		from:        from,
		devMode:     devMode,
		logger:      logger,
		send:        smtp.SendMail,
	}
}

// layout wraps a Hebrew right-to-left body in the site template.
func layout(title, inner string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="he" dir="rtl">
<head><meta charset="utf-8"></head>
<body style="font-family: Arial, sans-serif; margin: 0; padding: 0; background-color: #fdf8f2; direction: rtl;">
  <div style="max-width: 480px; margin: 40px auto; background: white; border-radius: 12px; box-shadow: 0 4px 24px rgba(0,0,0,0.08); overflow: hidden;">
    <div style="background: #e07a2e; padding: 28px; text-align: center;">
      <h1 style="color: white; margin: 0; font-size: 24px;">%s</h1>
    </div>
    <div style="padding: 28px;">
      <h2 style="margin: 0 0 16px; font-size: 20px; color: #3d2c1e;">%s</h2>
      %s
      <p style="color: #a08b79; font-size: 12px; margin: 24px 0 0;">צוות %s</p>
    </div>
  </div>
</body>
</html>`, siteName, html.EscapeString(title), inner, siteName)
}

func (s *EmailService) SendPasswordResetEmail(to, resetLink string) error {
	link := html.EscapeString(resetLink)
	body := layout("איפוס סיסמה", fmt.Sprintf(`
      <p style="color: #6b5a4b; font-size: 14px; line-height: 1.6;">קיבלת את המייל הזה כי ביקשת לאפס סיסמה באתר '%s'.</p>
      <a href="%s" style="display: inline-block; background: #e07a2e; color: white; text-decoration: none; padding: 12px 32px; border-radius: 8px; font-weight: 600;">לאיפוס הסיסמה</a>
      <p style="color: #a08b79; font-size: 12px; margin: 24px 0 0;">הקישור בתוקף ל-15 דקות. אם לא ביקשת איפוס, אפשר להתעלם מהמייל.</p>`,
		siteName, link))

	return s.sendHTML(to, "איפוס סיסמה - "+siteName, body)
}

func (s *EmailService) SendRatingNotification(to, recipeTitle string, rating int) error {
	body := layout("דירוג חדש למתכון שלך", fmt.Sprintf(`
      <p style="color: #6b5a4b; font-size: 14px; line-height: 1.6;">המתכון שלך "%s" קיבל דירוג חדש של %d כוכבים!</p>
      <p style="color: #6b5a4b; font-size: 14px; line-height: 1.6;">שמור/י על הקצב ושתף/י מתכונים נוספים.</p>`,
		html.EscapeString(recipeTitle), rating))

	return s.sendHTML(to, "דירוג חדש למתכון שלך - "+recipeTitle, body)
}

func (s *EmailService) SendRecipePDF(to, recipeTitle string, pdf []byte) error {
	body := layout("המתכון שביקשת", `
      <p style="color: #6b5a4b; font-size: 14px; line-height: 1.6;">מצורף קובץ PDF עם המתכון מתוך האתר. בתיאבון!</p>`)

	return s.sendWithAttachment(to, "המתכון שביקשת - "+recipeTitle, body, recipeTitle+".pdf", "application/pdf", pdf)
}

func (s *EmailService) headers(to, subject, contentType string) []string {
	return []string{
		fmt.Sprintf("From: %s", mime.QEncoding.Encode("utf-8", siteName)+" <"+s.from+">"),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", mime.QEncoding.Encode("utf-8", subject)),
		"MIME-Version: 1.0",
		"Content-Type: " + contentType,
	}
}

func (s *EmailService) sendHTML(to, subject, htmlBody string) error {
	if s.devMode {
		s.logger.Info("dev email", zap.String("to", to), zap.String("subject", subject), zap.Int("body_bytes", len(htmlBody)))
		return nil
	}

	message := strings.Join(s.headers(to, subject, "text/html; charset=UTF-8"), "\r\n") + "\r\n\r\n" + htmlBody
	return s.deliver(to, []byte(message))
}

func (s *EmailService) sendWithAttachment(to, subject, htmlBody, filename, contentType string, attachment []byte) error {
	if s.devMode {
		s.logger.Info("dev email",
			zap.String("to", to),
			zap.String("subject", subject),
			zap.String("attachment", filename),
			zap.Int("attachment_bytes", len(attachment)),
		)
		return nil
	}

	message, err := buildMultipart(s.headers(to, subject, ""), htmlBody, filename, contentType, attachment)
	if err != nil {
		return err
	}
	return s.deliver(to, message)
}

func buildMultipart(headers []string, htmlBody, filename, contentType string, attachment []byte) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	htmlPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=UTF-8"},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return nil, err
	}
	writeBase64Lines(htmlPart, []byte(htmlBody))

	attPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {contentType},
		"Content-Transfer-Encoding": {"base64"},
		"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": filename})},
	})
	if err != nil {
		return nil, err
	}
	writeBase64Lines(attPart, attachment)

	if err := mw.Close(); err != nil {
		return nil, err
	}

	// Replace the empty Content-Type placeholder with the multipart boundary.
	headers[len(headers)-1] = "Content-Type: multipart/mixed; boundary=" + mw.Boundary()

	var msg bytes.Buffer
	msg.WriteString(strings.Join(headers, "\r\n"))
	msg.WriteString("\r\n\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

// writeBase64Lines wraps base64 output at 76 characters per RFC 2045.
func writeBase64Lines(w interface{ Write([]byte) (int, error) }, data []byte) {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 76 {
		w.Write([]byte(encoded[:76] + "\r\n"))
		encoded = encoded[76:]
	}
	w.Write([]byte(encoded + "\r\n"))
}

func (s *EmailService) deliver(to string, message []byte) error {
	auth := smtp.PlainAuth("", s.user, s.pass, s.host)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)

	if err := s.send(addr, auth, s.from, []string{to}, message); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	s.logger.Info("email sent", zap.String("to", to))
	return nil
}
