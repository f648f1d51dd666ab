// Package bridge wires discovery registration, the loopback server and a host
// into a service with a start/stop lifecycle.
package bridge
