// Package pg bootstraps PostgreSQL access on top of pgx/v5.
//
// Connect opens a *pgxpool.Pool from Config with retries, Migrate runs goose
// migrations from an fs.FS (normally embedded by the package that owns the
// schema) and Healthcheck returns a probe for readiness endpoints. The error
// helpers classify *pgconn.PgError values by SQLSTATE so stores can map
// constraint violations onto their own error kinds.
//
// # Usage
//
//	var cfg pg.Config
//	if err := env.Parse(&cfg); err != nil {
//	    return err
//	}
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, cfg, slog.Default()); err != nil {
//	    return err
//	}
//
// # Configuration
//
// Fields are populated from PG_* environment variables; see the tags on Config.
package pg
