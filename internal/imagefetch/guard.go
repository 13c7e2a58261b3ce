package imagefetch

import (
	"context"
	"fmt"
	"net"
	"strings"
)

// blockedHosts are never fetched when the guard is enabled
var blockedHosts = []string{
	"metadata.google.internal",
	"169.254.169.254", // AWS/GCP metadata service
	"127.0.0.1",
	"0.0.0.0",
	"::1",
}

// checkIP refuses loopback, private, link-local and unspecified addresses.
func checkIP(ip net.IP) error {
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("%w: loopback address %s", ErrHostBlocked, ip)
	case ip.IsPrivate():
		return fmt.Errorf("%w: private address %s", ErrHostBlocked, ip)
	case ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast():
		return fmt.Errorf("%w: link-local address %s", ErrHostBlocked, ip)
	case ip.IsUnspecified():
		return fmt.Errorf("%w: unspecified address %s", ErrHostBlocked, ip)
	}
	return nil
}

// checkHostSafety refuses internal hostnames and IP literals before any
// lookup happens.
func checkHostSafety(hostname string) error {
	if ip := net.ParseIP(hostname); ip != nil {
		if err := checkIP(ip); err != nil {
			return err
		}
	}

	hostname = strings.ToLower(hostname)
	if hostname == "localhost" || strings.HasSuffix(hostname, ".localhost") || strings.HasSuffix(hostname, ".local") {
		return fmt.Errorf("%w: %s", ErrHostBlocked, hostname)
	}

	for _, b := range blockedHosts {
		if hostname == b {
			return fmt.Errorf("%w: %s", ErrHostBlocked, hostname)
		}
	}

	return nil
}

// allowList holds hosts exempt from the guard, as "host" or "host:port"
type allowList map[string]struct{}

func newAllowList(hosts []string) allowList {
	a := allowList{}
	for _, h := range hosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			a[h] = struct{}{}
		}
	}
	return a
}

func (a allowList) allows(hostport string) bool {
	hostport = strings.ToLower(hostport)
	if _, ok := a[hostport]; ok {
		return true
	}
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		return false
	}
	_, ok := a[host]
	return ok
}

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// guardedDial resolves addr itself and refuses to connect when any of its
// addresses is internal. It runs for every connection, redirects included.
func guardedDial(dialer *net.Dialer, allowed allowList) dialFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if allowed.allows(addr) {
			return dialer.DialContext(ctx, network, addr)
		}

		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		if err := checkHostSafety(host); err != nil {
			return nil, err
		}
		ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, err
		}
		for _, ip := range ips {
			if err := checkIP(ip.IP); err != nil {
				return nil, fmt.Errorf("%s: %w", host, err)
			}
		}

		lastErr := fmt.Errorf("no addresses for %s", host)
		for _, ip := range ips {
			conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip.IP.String(), port))
			if err == nil {
				return conn, nil
			}
			lastErr = err
		}
		return nil, lastErr
	}
}
