// Package notifications delivers license lifecycle notifications to users
// and downstream systems.
//
// Dispatcher implements licensing.Notifier. It fans each notification out to
// its deliverers concurrently and logs failures instead of returning them, so
// a broken channel never affects a committed license change:
//
//	dispatcher := notifications.NewDispatcher([]notifications.Deliverer{
//		notifications.NewLogDeliverer(log),
//		notifications.NewEmailDeliverer(sender, resolver, notifications.WithActionURL(accountURL)),
//		notifications.NewWebhookDeliverer(webhook.NewSender(), hookURL, hookSecret),
//	}, notifications.WithLogger(log), notifications.WithAsync(30*time.Second))
//	defer dispatcher.Close(shutdownCtx)
//
//	svc := licensing.NewService(store, provider, licensing.WithNotifier(dispatcher))
//
// The email channel needs a RecipientResolver because user accounts are
// owned by another system. Returning ErrNoRecipient skips the user.
// DirectoryResolver is the stock implementation: it asks an account service
// over HTTP and keeps answers in a short-lived LRU cache.
//
// The webhook channel posts a WebhookEvent with type "license.<kind>",
// signed with the headers from package webhook when a secret is set.
package notifications
