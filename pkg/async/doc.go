// Package async runs functions in goroutines and hands back typed futures.
//
//	futures := make([]*async.Future[int], len(ids))
//	for i, id := range ids {
//		futures[i] = async.Async(ctx, id, countSeats)
//	}
//	for _, f := range futures {
//		seats, err := f.Await()
//		// ...
//	}
//
// A future started with an already cancelled context never calls its
// function and resolves to the context error.
package async
