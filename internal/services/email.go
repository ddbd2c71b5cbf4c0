package services

import (
	"fmt"
	"log"
	"net/smtp"
	"strings"

	"attendance-backend/internal/models"
)

type EmailService struct {
	host        string
	port        string
	user        string
	pass        string
	from        string
	frontendURL string
	devMode     bool
}

func NewEmailService(host, port, user, pass, from, frontendURL string) *EmailService {
	devMode := host == "" || user == ""
	if devMode {
		log.Println("⚠ Email service running in DEV MODE (logging to console)")
	}
	return &EmailService{
		host:        host,
		port:        port,
		user:        user,
		pass:        pass,
		from:        from,
		frontendURL: frontendURL,
		devMode:     devMode,
	}
}

// SendAttendanceReceipt confirms a time-in or time-out to the attendee.
func (s *EmailService) SendAttendanceReceipt(job *models.ReceiptJob) error {
	subject, body := receiptContent(job, s.frontendURL)
	return s.sendHTML(job.To, subject, body)
}

func receiptContent(job *models.ReceiptJob, frontendURL string) (string, string) {
	when := job.OccurredAt.UTC().Format("Mon 2 Jan 2006, 15:04 MST")

	var subject, headline, detail string
	switch job.Action {
	case "time_out":
		subject = fmt.Sprintf("Time out recorded: %s", job.EventName)
		headline = "You have checked out"
		minutes := 0
		if job.Duration != nil {
			minutes = *job.Duration
		}
		detail = fmt.Sprintf("Checked out at %s. Total time: %d minutes.", when, minutes)
	default:
		subject = fmt.Sprintf("Time in recorded: %s", job.EventName)
		headline = "You have checked in"
		punctuality := "on time"
		if job.Attendance == string(models.AttendanceLate) {
			punctuality = "late"
		}
		detail = fmt.Sprintf("Checked in at %s (%s). Scan the same QR code again when you leave.", when, punctuality)
	}

	historyURL := fmt.Sprintf("%s/attendance", frontendURL)
	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: 'Segoe UI', Arial, sans-serif; margin: 0; padding: 0; background-color: #f8fafc;">
  <div style="max-width: 480px; margin: 40px auto; background: white; border-radius: 12px; box-shadow: 0 4px 24px rgba(0,0,0,0.08); overflow: hidden;">
    <div style="background: #0f766e; padding: 24px; text-align: center;">
      <h1 style="color: white; margin: 0; font-size: 20px; font-weight: 700;">%s</h1>
    </div>
    <div style="padding: 32px;">
      <h2 style="margin: 0 0 16px; font-size: 18px; color: #1e293b;">Hi %s, %s</h2>
      <p style="color: #64748b; font-size: 14px; line-height: 1.6; margin: 0 0 24px;">%s</p>
      <a href="%s" style="display: inline-block; background: #0f766e; color: white; text-decoration: none; padding: 12px 32px; border-radius: 8px; font-weight: 600; font-size: 14px;">
        View attendance history
      </a>
    </div>
  </div>
</body>
</html>`, job.EventName, firstName(job.Name), strings.ToLower(headline), detail, historyURL)

	return subject, body
}

func firstName(full string) string {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}

func (s *EmailService) sendHTML(to, subject, htmlBody string) error {
	if s.devMode {
		log.Printf("📧 [DEV EMAIL] To: %s | Subject: %s", to, subject)
		return nil
	}

	headers := []string{
		fmt.Sprintf("From: %s", s.from),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
	}

	message := strings.Join(headers, "\r\n") + "\r\n\r\n" + htmlBody

	auth := smtp.PlainAuth("", s.user, s.pass, s.host)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)

	err := smtp.SendMail(addr, auth, s.from, []string{to}, []byte(message))
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}

	log.Printf("📧 Email sent to %s: %s", to, subject)
	return nil
}
