// Package ucp is a client for merchants that publish a discovery profile at a
// well-known path and expose their shopping service over REST, JSON-RPC, or both.
//
// A Client is bound to one merchant at a time. Discover resolves a domain to a
// profile, normalizes it and caches the result; a later Discover replaces it.
// The profile may describe capabilities as a flat array or as a map keyed by
// capability name, and each service key may hold one object or an array of
// them. Both shapes normalize to the same Capability and Service values.
//
// CallAPI issues a REST-style request (method, path, body) over the chosen
// transport. With TransportAuto the request is translated to a JSON-RPC call
// when the merchant advertises an MCP endpoint, and retried once over REST if
// that call fails and a REST endpoint exists. The suppressed JSON-RPC error is
// logged at debug level, attached to the active span and counted.
package ucp
