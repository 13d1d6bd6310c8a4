// Package environment names the deployment stage (development, staging or
// production) and carries it through request contexts.
//
// Parse accepts the short aliases used in env files:
//
//	env, err := environment.Parse(os.Getenv("APP_ENV"))
//	if err != nil {
//		return err
//	}
//	if env.IsProduction() {
//		// require webhook signing
//	}
//
// Middleware stores the value on each request and LoggerExtractor exposes it
// to the logger's context decorator, so request-scoped records carry "env".
package environment
