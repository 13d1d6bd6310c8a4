// Package mongo opens MongoDB clients from environment configuration.
//
// It backs the MongoDB licensing store. Change sets are written in
// multi-document transactions, so point MONGODB_URL at a replica set:
//
//	cfg := mongo.Config{ConnectionURL: "mongodb://localhost:27017/?replicaSet=rs0", Database: "keygate"}
//	db, err := mongo.NewWithDatabase(ctx, cfg, cfg.Database)
//	if err != nil {
//		return err
//	}
//	defer db.Client().Disconnect(context.Background())
//
//	store := mongostore.New(db)
//	if err := store.EnsureIndexes(ctx); err != nil {
//		return err
//	}
//
// Healthcheck returns a ping probe suitable for readiness endpoints.
// Connection failures are joined with ErrFailedToConnectToMongo.
package mongo
