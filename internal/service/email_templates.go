package service

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"

	"famfinance/internal/models"
)

const emailLayout = `{{define "layout"}}<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<style>
		body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
		.container { max-width: 600px; margin: 0 auto; padding: 20px; }
		.header { background-color: #2e7d5b; color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
		.content { background-color: #f9f9f9; padding: 30px; border-radius: 0 0 5px 5px; }
		.button { display: inline-block; padding: 12px 30px; background-color: #2e7d5b; color: white; text-decoration: none; border-radius: 5px; margin: 20px 0; }
		.footer { text-align: center; margin-top: 20px; font-size: 12px; color: #666; }
	</style>
</head>
<body>
	<div class="container">
		<div class="header"><h1>{{template "title" .}}</h1></div>
		<div class="content">{{template "body" .}}</div>
		<div class="footer"><p>This is an automated email from Family Finance. Please do not reply.</p></div>
	</div>
</body>
</html>{{end}}`

var emailBodies = map[string]string{
	"welcome": `{{define "title"}}Welcome to Family Finance!{{end}}
{{define "body"}}
<p>Hi {{.Name}},</p>
<p>Your account is ready. A family has been set up for you so you can start tracking budgets, bills and transactions straight away.</p>
<p><a href="{{.LoginURL}}" class="button">Get Started</a></p>
{{end}}`,

	"password_reset": `{{define "title"}}Password Reset Request{{end}}
{{define "body"}}
<p>Hi {{.Name}},</p>
<p>We received a request to reset the password for your Family Finance account.</p>
<p><a href="{{.ResetURL}}" class="button">Reset Password</a></p>
<p><strong>This link will expire in {{.ValidFor}}.</strong></p>
<p>If you didn't request a password reset, you can safely ignore this email.</p>
{{end}}`,

	"invitation": `{{define "title"}}You're invited to {{.FamilyName}}{{end}}
{{define "body"}}
<p>Hi,</p>
<p>{{.InviterName}} has invited you to join <strong>{{.FamilyName}}</strong> on Family Finance as a {{.Role}}.</p>
<p><a href="{{.AcceptURL}}" class="button">Accept Invitation</a></p>
<p>This invitation expires on {{.ExpiresAt}}.</p>
{{end}}`,

	"reminder": `{{define "title"}}{{if .Overdue}}Overdue: {{end}}{{.Title}}{{end}}
{{define "body"}}
<p>Hi {{.Name}},</p>
<p>This is a reminder from <strong>{{.FamilyName}}</strong>.</p>
<ul>
	<li><strong>{{.Title}}</strong></li>
	{{if .Description}}<li>{{.Description}}</li>{{end}}
	<li>Due: {{.DueDate}} ({{.DueIn}})</li>
	{{if .Amount}}<li>Amount: {{.Amount}}</li>{{end}}
	<li>Priority: {{.Priority}}</li>
</ul>
<p><a href="{{.AppURL}}" class="button">Open Family Finance</a></p>
{{end}}`,
}

// EmailComposer renders the transactional emails the service sends
type EmailComposer struct {
	appBaseURL string
	templates  map[string]*template.Template
	converter  *md.Converter
}

// NewEmailComposer parses the email templates
func NewEmailComposer(appBaseURL string) *EmailComposer {
	templates := make(map[string]*template.Template, len(emailBodies))
	for name, body := range emailBodies {
		t := template.Must(template.New(name).Parse(emailLayout))
		templates[name] = template.Must(t.Parse(body))
	}
	return &EmailComposer{
		appBaseURL: strings.TrimRight(appBaseURL, "/"),
		templates:  templates,
		converter:  md.NewConverter("", true, nil),
	}
}

func (c *EmailComposer) render(name, to, subject string, data any) (Message, error) {
	var buf bytes.Buffer
	if err := c.templates[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		return Message{}, fmt.Errorf("failed to render %s email: %w", name, err)
	}
	html := buf.String()

	text, err := c.converter.ConvertString(html)
	if err != nil {
		return Message{}, fmt.Errorf("failed to convert %s email to text: %w", name, err)
	}
	return Message{To: to, Subject: subject, HTML: html, Text: text}, nil
}

// Welcome renders the email sent after registration
func (c *EmailComposer) Welcome(user *models.User) (Message, error) {
	return c.render("welcome", user.Email, "Welcome to Family Finance!", map[string]any{
		"Name":     user.Name,
		"LoginURL": c.appBaseURL + "/login",
	})
}

// PasswordReset renders a reset link email
func (c *EmailComposer) PasswordReset(user *models.User, token string, validFor time.Duration) (Message, error) {
	return c.render("password_reset", user.Email, "Reset your Family Finance password", map[string]any{
		"Name":     user.Name,
		"ResetURL": c.appBaseURL + "/reset-password?token=" + url.QueryEscape(token),
		"ValidFor": validFor.String(),
	})
}

// Invitation renders the email sent to an invited address
func (c *EmailComposer) Invitation(inv *models.FamilyInvitation, familyName, inviterName string) (Message, error) {
	return c.render("invitation", inv.Email, fmt.Sprintf("%s invited you to %s", inviterName, familyName), map[string]any{
		"FamilyName":  familyName,
		"InviterName": inviterName,
		"Role":        strings.ToLower(string(inv.Role)),
		"AcceptURL":   c.appBaseURL + "/invitations/accept?token=" + url.QueryEscape(inv.Token),
		"ExpiresAt":   inv.ExpiresAt.Format("January 2, 2006"),
	})
}

// Reminder renders a reminder notification for one family member
func (c *EmailComposer) Reminder(rem *models.Reminder, member models.MemberWithUser, familyName string, now time.Time) (Message, error) {
	days := rem.DaysUntilDue(now)
	overdue := days < 0

	var dueIn string
	switch {
	case overdue:
		dueIn = fmt.Sprintf("%d days overdue", -days)
	case days == 0:
		dueIn = "due today"
	case days == 1:
		dueIn = "due tomorrow"
	default:
		dueIn = fmt.Sprintf("in %d days", days)
	}

	var amount string
	if rem.Amount.Valid {
		amount = rem.Amount.Decimal.StringFixed(2)
	}

	subject := "Reminder: " + rem.Title
	if overdue {
		subject = "Overdue: " + rem.Title
	}

	return c.render("reminder", member.Email, subject, map[string]any{
		"Name":        member.Name,
		"FamilyName":  familyName,
		"Title":       rem.Title,
		"Description": rem.Description,
		"DueDate":     rem.DueDate.Format("Mon Jan 2, 2006"),
		"DueIn":       dueIn,
		"Amount":      amount,
		"Priority":    strings.ToLower(string(rem.Priority)),
		"Overdue":     overdue,
		"AppURL":      c.appBaseURL + "/reminders",
	})
}
