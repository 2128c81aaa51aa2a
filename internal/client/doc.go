// Package client implements the kvs-client side of the wire protocol:
// dial the server, send exactly one Command, read exactly one
// Response, close the connection. Each call opens its own connection,
// mirroring the server's one-shot-per-connection contract.
package client
