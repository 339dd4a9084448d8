package utils

import (
	"crypto/tls"
	"errors"
	"net/smtp"

	"github.com/jordan-wright/email"

	"Go_Drop/config"
)

// SendActivateMail sends activation email.
func SendActivateMail(to, link string) error {
	cfg := config.AppConfig
	if !cfg.MailEnabled() {
		return errors.New("smtp config missing")
	}

	e := email.NewEmail()
	e.From = cfg.SMTPFrom
	e.To = []string{to}
	e.Subject = "Go Drop account activation"
	e.HTML = []byte(`
		<h2>Welcome</h2>
		<p>Please click the link below to activate your account:</p>
		<a href="` + link + `">Activate account</a>
		<p>The link is valid for 10 minutes.</p>
	`)

	addr := cfg.SMTPHost + ":" + cfg.SMTPPort
	var auth smtp.Auth
	if cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPHost)
	}
	tlsConfig := &tls.Config{ServerName: cfg.SMTPHost}

	if cfg.SMTPTLS || cfg.SMTPPort == "465" {
		return e.SendWithTLS(addr, auth, tlsConfig)
	}
	if cfg.SMTPStartTLS {
		return e.SendWithStartTLS(addr, auth, tlsConfig)
	}
	return e.Send(addr, auth)
}
