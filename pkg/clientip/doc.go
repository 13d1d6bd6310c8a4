// Package clientip determines the address of the HTTP client, used as the
// rate limit key for public endpoints and as a log attribute.
//
// Forwarding headers are only read when the resolver is told to trust them;
// behind no proxy a client could otherwise pick its own address:
//
//	res := clientip.Resolver{}
//	if cfg.TrustProxyHeaders {
//		res = clientip.Trusted()
//	}
//	r.Use(clientip.Middleware(res))
package clientip
