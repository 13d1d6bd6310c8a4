// Package logger builds log/slog loggers and keeps attribute names
// consistent across keygate.
//
// New takes functional options. WithEnvironment picks the preset for a
// deployment stage, WithConfig applies LOG_LEVEL and LOG_FORMAT overrides,
// and WithContextExtractors adds request-scoped attributes on every record:
//
//	log := logger.New(
//		logger.WithEnvironment(env, "keygate"),
//		logger.WithConfig(cfg.Log),
//		logger.WithContextExtractors(
//			requestid.LoggerExtractor(),
//			environment.LoggerExtractor(),
//		),
//	)
//	log.InfoContext(ctx, "license issued", logger.UserID(userID), logger.LicenseID(lic.ID))
//
// The attribute helpers in attr.go (UserID, SubscriptionID, LicenseID,
// ExternalID, EventID, Provider, Error and friends) are what every package
// uses instead of ad-hoc keys. Error and Errors return an empty attribute
// for nil errors, so they are safe to pass unconditionally.
package logger
