package server

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"strconv"
)

const (
	// DefaultPortMin is the lowest candidate port (inclusive)
	DefaultPortMin = 10000
	// DefaultPortMax is the highest candidate port (exclusive)
	DefaultPortMax = 65535
	// DefaultPortAttempts is the number of random candidates tried
	DefaultPortAttempts = 100
	// DefaultBindHost keeps the server reachable from this machine only
	DefaultBindHost = "127.0.0.1"
)

// ErrNoPort is returned when no candidate port could be bound
var ErrNoPort = errors.New("no available port")

// Listen binds the first free port among attempts random candidates in [portMin, portMax)
func Listen(bindHost string, portMin, portMax, attempts int) (net.Listener, error) {
	if bindHost == "" {
		bindHost = DefaultBindHost
	}
	if portMin <= 0 || portMax <= portMin {
		return nil, fmt.Errorf("invalid port range [%v, %v)", portMin, portMax)
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		port := portMin + rand.IntN(portMax-portMin)
		listener, err := net.Listen("tcp", net.JoinHostPort(bindHost, strconv.Itoa(port)))
		if err == nil {
			return listener, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w after %v attempts: %v", ErrNoPort, attempts, lastErr)
	}
	return nil, ErrNoPort
}

// Port returns the TCP port a listener is bound to
func Port(listener net.Listener) int {
	if addr, ok := listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}
