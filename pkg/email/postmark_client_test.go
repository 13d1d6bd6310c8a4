package email_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/keygate/pkg/email"
)

func postmarkConfig() email.Config {
	return email.Config{
		PostmarkServerToken:  "server-token",
		PostmarkAccountToken: "account-token",
		SenderEmail:          "licenses@example.com",
		SupportEmail:         "support@example.com",
	}
}

func TestNewPostmarkClient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*email.Config)
		errMsg string
	}{
		{name: "valid", mutate: func(*email.Config) {}},
		{name: "no server token", mutate: func(c *email.Config) { c.PostmarkServerToken = "" }, errMsg: "PostmarkServerToken is required"},
		{name: "no account token", mutate: func(c *email.Config) { c.PostmarkAccountToken = "" }, errMsg: "PostmarkAccountToken is required"},
		{name: "no sender", mutate: func(c *email.Config) { c.SenderEmail = "" }, errMsg: "SenderEmail is required"},
		{name: "bad sender", mutate: func(c *email.Config) { c.SenderEmail = "licenses" }, errMsg: "SenderEmail must be a valid email address"},
		{name: "no support", mutate: func(c *email.Config) { c.SupportEmail = "" }, errMsg: "SupportEmail is required"},
		{name: "bad support", mutate: func(c *email.Config) { c.SupportEmail = "@example.com" }, errMsg: "SupportEmail must be a valid email address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := postmarkConfig()
			tt.mutate(&cfg)
			client, err := email.NewPostmarkClient(cfg)
			if tt.errMsg == "" {
				require.NoError(t, err)
				assert.NotNil(t, client)
				return
			}
			assert.Nil(t, client)
			assert.ErrorIs(t, err, email.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestMustNewPostmarkClient(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() { email.MustNewPostmarkClient(postmarkConfig()) })
	assert.Panics(t, func() { email.MustNewPostmarkClient(email.Config{PostmarkServerToken: "x"}) })
}

func TestPostmarkClient_RejectsInvalidParams(t *testing.T) {
	t.Parallel()

	client, err := email.NewPostmarkClient(postmarkConfig())
	require.NoError(t, err)

	err = client.SendEmail(context.Background(), email.SendEmailParams{SendTo: "nope", Subject: "s", BodyHTML: "b"})
	assert.ErrorIs(t, err, email.ErrInvalidParams)
}
