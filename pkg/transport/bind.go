package transport

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// Bound is a live listener plus the canonical address string clients would
// use to reach it (with any kernel-assigned port filled in).
type Bound struct {
	Listener net.Listener
	Addr     string

	// unlinkPath is set for unix: listeners so Close can remove the socket
	// file, per spec.md §5's cancellation requirement.
	unlinkPath string
}

// Close closes the listener and, for unix: addresses, unlinks the socket
// path.
func (b *Bound) Close() error {
	err := b.Listener.Close()
	if b.unlinkPath != "" {
		_ = os.Remove(b.unlinkPath)
	}
	return err
}

// Bind binds one listen address per spec.md §6.
func Bind(address string) (*Bound, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	switch addr.Transport {
	case "unix":
		return bindUnix(addr)
	case "tcp":
		return bindTCP(addr)
	default:
		return nil, fmt.Errorf("transport: unknown transport %q", addr.Transport)
	}
}

func bindUnix(addr *Address) (*Bound, error) {
	path := addr.Props["path"]
	if path == "" {
		dir, err := os.MkdirTemp("", "dbusd-")
		if err != nil {
			return nil, fmt.Errorf("transport: create temp dir for unix socket: %w", err)
		}
		path = filepath.Join(dir, "dbus-socket")
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("transport: bind unix socket %q: %w", path, err)
	}
	return &Bound{
		Listener:   ln,
		Addr:       fmt.Sprintf("unix:path=%s", path),
		unlinkPath: path,
	}, nil
}

func bindTCP(addr *Address) (*Bound, error) {
	host, ok := addr.Props["host"]
	if !ok {
		return nil, fmt.Errorf("transport: tcp address missing host=")
	}
	port := addr.Props["port"]
	if port == "" {
		port = "0"
	}

	network := "tcp"
	switch addr.Props["family"] {
	case "", "ipv4":
		network = "tcp4"
	case "ipv6":
		network = "tcp6"
	default:
		return nil, fmt.Errorf("transport: unknown family %q", addr.Props["family"])
	}

	ln, err := net.Listen(network, net.JoinHostPort(host, port))
	if err != nil {
		return nil, fmt.Errorf("transport: bind tcp %s:%s: %w", host, port, err)
	}

	tcpAddr, ok := ln.Addr().(*net.TCPAddr)
	resolvedPort := port
	if ok {
		resolvedPort = fmt.Sprintf("%d", tcpAddr.Port)
	}
	return &Bound{
		Listener: ln,
		Addr:     fmt.Sprintf("tcp:host=%s,port=%s", host, resolvedPort),
	}, nil
}
