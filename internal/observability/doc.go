// Package observability holds the Prometheus collectors shared by the
// receiver, sender and console server.
package observability
