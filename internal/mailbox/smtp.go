package mailbox

import (
	"bytes"
	"context"
	"fmt"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

type smtpDialer func(addr string) (*smtp.Client, error)

func dialSMTPTLS(addr string) (*smtp.Client, error) {
	return smtp.DialTLS(addr, nil)
}

// sendSMTP delivers one raw message to a single recipient.
func sendSMTP(ctx context.Context, dial smtpDialer, addr string, auth sasl.Client, from, to string, raw []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c, err := dial(addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer c.Close()

	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("%w: %v", ErrAuthFailed, err)
		}
	}
	if err := c.SendMail(from, []string{to}, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return c.Quit()
}
