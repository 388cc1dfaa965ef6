// Package testmerchant provides in-memory merchants for tests and local runs:
// a discovery-protocol merchant serving REST and/or JSON-RPC, and a
// bearer-authenticated checkout-session merchant. Both are chi routers meant
// to be wrapped in an httptest.Server.
package testmerchant
