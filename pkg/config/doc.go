// Package config loads typed configuration from environment variables.
//
// Fields are described with github.com/caarlos0/env tags. A .env file is
// picked up through github.com/joho/godotenv for local development; real
// environment variables always win.
//
//	var cfg Config
//	config.MustLoad(&cfg)
//
// Configs that implement Validator are checked right after parsing, which is
// where cross-field rules live (for example: production requires a webhook
// signing secret).
package config
