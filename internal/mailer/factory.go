package mailer

import (
	"fmt"
	"log/slog"
)

type Config struct {
	Driver    string
	From      Sender
	SMTP      SMTPConfig
	SESRegion string
}

// New builds the Mailer selected by c.Driver. An empty driver means log.
func New(c Config) (Mailer, error) {
	switch c.Driver {
	case DriverSMTP:
		if c.SMTP.Host == "" {
			return nil, fmt.Errorf("mailer: smtp driver needs a host")
		}
		return NewSMTP(NewSMTPClient(c.SMTP), c.From), nil
	case DriverSES:
		if c.SESRegion == "" {
			return nil, fmt.Errorf("mailer: ses driver needs a region")
		}
		return NewSES(c.SESRegion, c.From)
	case DriverLog, "":
		return NewLog(slog.Default()), nil
	default:
		return nil, fmt.Errorf("mailer: unsupported driver %q", c.Driver)
	}
}
