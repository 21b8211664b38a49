// Package driver is an HTTP client for the TypeDB 3.x server API. It
// authenticates with a bearer token, opens server-side transactions, and
// decodes query answers from MessagePack. The Session type adapts a
// Driver to the connection interface the bridge package consumes.
package driver
