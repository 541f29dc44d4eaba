// Package mail carries confirmation links to members. Delivery is someone
// else's problem; the log sender just makes the link visible to operators.
package mail

import (
	"fmt"

	"github.com/labstack/gommon/log"
)

type LogSender struct {
	BaseURL string
}

func NewLogSender(baseURL string) *LogSender {
	return &LogSender{baseURL}
}

func (s *LogSender) SendConfirmation(email string, token string) error {
	link := fmt.Sprintf("%s/accounts/confirm?token=%s", s.BaseURL, token)
	log.Infof("confirmation link for %s: %s", email, link)
	return nil
}
