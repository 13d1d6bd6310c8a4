// Package redis connects to Redis from environment configuration.
//
// The service uses Redis for the shared webhook event ledger so that
// several replicas agree on which provider events were already handled.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	ledger := redisledger.New(client, redisledger.WithPrefix(cfg.KeyPrefix))
//
// Connect retries the initial ping and stops early when ctx is done.
// Healthcheck returns a ping probe for readiness endpoints.
package redis
