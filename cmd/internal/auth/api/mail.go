package authapi

import (
	"fmt"
	"net/url"
	"strings"
)

// MailKind identifies a transactional message.
type MailKind string

const (
	MailEmailVerification MailKind = "email_verification"
	MailPasswordReset     MailKind = "password_reset"
)

// Mail is a rendered transactional message. Link carries a plaintext
// ephemeral token and must not be logged.
type Mail struct {
	Kind         MailKind
	To           string
	Name         string
	Subject      string
	Intro        string
	Instructions string
	ButtonText   string
	ButtonColor  string
	Link         string
	Outro        string
}

const mailOutro = "Need help, or have questions? Just reply to this email, we'd love to help."

func verificationMail(to, username, link string) Mail {
	return Mail{
		Kind:         MailEmailVerification,
		To:           to,
		Name:         username,
		Subject:      "Please verify your email",
		Intro:        "Welcome to our App! We're very excited to have you on board.",
		Instructions: "To verify your email please click on the following button",
		ButtonText:   "Verify your email",
		ButtonColor:  "#2c9831",
		Link:         link,
		Outro:        mailOutro,
	}
}

func passwordResetMail(to, username, link string) Mail {
	return Mail{
		Kind:         MailPasswordReset,
		To:           to,
		Name:         username,
		Subject:      "Password reset request",
		Intro:        "We got a request to reset the password of your account",
		Instructions: "To reset your password please click on the following button or link",
		ButtonText:   "Reset Password",
		ButtonColor:  "#1d6520",
		Link:         link,
		Outro:        mailOutro,
	}
}

// Text renders the plain-text body.
func (m Mail) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", m.Name)
	fmt.Fprintf(&b, "%s\n\n", m.Intro)
	fmt.Fprintf(&b, "%s:\n%s\n\n", m.Instructions, m.Link)
	b.WriteString(m.Outro)
	b.WriteString("\n")
	return b.String()
}

// actionLink builds base+path?id=..&token=.. for an emailed action.
func actionLink(base, path, identityID, plaintext string) string {
	q := url.Values{}
	q.Set("id", identityID)
	q.Set("token", plaintext)
	return strings.TrimRight(base, "/") + path + "?" + q.Encode()
}
