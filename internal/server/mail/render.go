package mail

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/yuin/goldmark"
)

//go:embed templates/*.md
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.md"))

var markdown = goldmark.New()

func render(name string, data any) (text, html string, err error) {
	var src bytes.Buffer
	if err := templates.ExecuteTemplate(&src, name, data); err != nil {
		return "", "", fmt.Errorf("render %s: %w", name, err)
	}

	var out bytes.Buffer
	if err := markdown.Convert(src.Bytes(), &out); err != nil {
		return "", "", fmt.Errorf("markdown %s: %w", name, err)
	}
	return src.String(), out.String(), nil
}

// OtpMessage builds the credential-change code email.
func OtpMessage(to, code string, validity time.Duration) (Message, error) {
	text, html, err := render("otp.md", struct {
		Code     string
		Validity string
	}{Code: code, Validity: humanDuration(validity)})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "Your OTP Code", Text: text, HTML: html}, nil
}

// ReminderMessage builds the renewal reminder from a scheduled payload.
func ReminderMessage(p models.ReminderPayload) (Message, error) {
	name := p.Name
	if name == "" {
		name = p.Email
	}
	text, html, err := render("reminder.md", struct {
		Name      string
		PlanName  string
		Price     string
		Currency  string
		ExpiresOn string
	}{
		Name:      name,
		PlanName:  p.PlanName,
		Price:     FormatMinorUnits(p.PriceCents),
		Currency:  strings.ToUpper(p.Currency),
		ExpiresOn: p.ExpiresAt.UTC().Format("2006-01-02"),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{To: p.Email, Subject: "Your subscription is about to expire", Text: text, HTML: html}, nil
}

// FormatMinorUnits renders cents as a decimal amount, e.g. 1999 -> "19.99".
func FormatMinorUnits(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

func humanDuration(d time.Duration) string {
	switch {
	case d == time.Minute:
		return "1 minute"
	case d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	default:
		return d.String()
	}
}
