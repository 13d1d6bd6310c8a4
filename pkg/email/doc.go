// Package email sends transactional mail through Postmark, or writes it to
// disk during development.
//
// Both transports implement EmailSender and validate SendEmailParams before
// doing any work:
//
//	sender, err := email.NewSender(cfg)
//	if err != nil {
//		return err
//	}
//
//	html, err := templates.Render(ctx, templates.LicenseNotice(msg))
//	if err != nil {
//		return err
//	}
//	err = sender.SendEmail(ctx, email.SendEmailParams{
//		SendTo:   "user@example.com",
//		Subject:  msg.Subject,
//		BodyHTML: html,
//		Tag:      "license-renewed",
//	})
//
// NewSender picks DevSender when EMAIL_DEV_DIR is set. Otherwise it builds a
// Postmark client, which needs both tokens plus valid sender and support
// addresses; the support address becomes Reply-To.
//
// Errors wrap ErrInvalidConfig, ErrInvalidParams or ErrFailedToSendEmail.
package email
