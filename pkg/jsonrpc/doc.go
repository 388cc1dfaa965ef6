// Package jsonrpc is a minimal JSON-RPC 2.0 client over HTTP POST.
//
// Failures come in two kinds: *HTTPError when the endpoint answered with a
// non-2xx status, and *Error when the body carried a JSON-RPC error member.
// Use IsTransportError and IsProtocolError to tell them apart.
package jsonrpc
