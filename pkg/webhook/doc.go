// Package webhook signs, verifies and delivers JSON webhooks.
//
// Signatures are HMAC-SHA256 over "timestamp.payload", carried in the
// X-Webhook-Signature, X-Webhook-Timestamp and X-Webhook-ID headers:
//
//	sig, err := webhook.VerifyRequest(secret, body, r.Header, webhook.DefaultMaxAge)
//
// Sender posts payloads with retries and exponential backoff:
//
//	sender := webhook.NewSender()
//	err := sender.Send(ctx, url, event,
//	    webhook.WithSignature(secret),
//	    webhook.WithDeliveryID(event.ID),
//	    webhook.WithMaxRetries(5),
//	)
//
// Client errors (4xx except 408, 425 and 429) are not retried.
package webhook
