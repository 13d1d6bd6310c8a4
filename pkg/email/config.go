package email

// Config selects and configures the outgoing mail transport. When DevDir is
// set, messages are written to disk instead of being sent.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL"`
	SupportEmail         string `env:"SUPPORT_EMAIL"`
	DevDir               string `env:"EMAIL_DEV_DIR"`
}

// Enabled reports whether any transport is configured.
func (c Config) Enabled() bool {
	return c.DevDir != "" || c.PostmarkServerToken != ""
}

// NewSender returns a DevSender when DevDir is set and a Postmark client otherwise.
func NewSender(cfg Config) (EmailSender, error) {
	if cfg.DevDir != "" {
		return NewDevSender(cfg.DevDir), nil
	}
	return NewPostmarkClient(cfg)
}
