// Package proxy rotates upstream proxies for the emulating client and dials
// through them.
package proxy

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
)

// Pool holds a list of upstream proxies and hands them out round-robin.
//
// Thread-safety: a sync.Mutex serialises all access to the list and the
// index, so Next may be called from any number of goroutines.
type Pool struct {
	proxies []*url.URL
	index   int
	mutex   sync.Mutex
}

// ParseURL parses one proxy address.  A bare "host:port" means an HTTP
// proxy; supported schemes are http, https, socks5 and socks5h.
func ParseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("proxy: parse %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
	default:
		return nil, fmt.Errorf("proxy: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("proxy: %q has no host", raw)
	}
	return u, nil
}

// NewPool returns a Pool of the given addresses.
func NewPool(addrs ...string) (*Pool, error) {
	p := &Pool{}
	for _, a := range addrs {
		u, err := ParseURL(a)
		if err != nil {
			return nil, err
		}
		p.proxies = append(p.proxies, u)
	}
	return p, nil
}

// LoadProxies reads a newline-delimited list of proxy addresses from
// filename.  Blank lines and lines beginning with '#' are ignored.  The
// loaded list replaces any previous one.
func (p *Pool) LoadProxies(filename string) error {
	f, err := os.Open(filename) // #nosec G304 – filename is an operator-supplied config path
	if err != nil {
		return fmt.Errorf("proxy: open %q: %w", filename, err)
	}
	defer f.Close()

	var loaded []*url.URL
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		u, err := ParseURL(text)
		if err != nil {
			return fmt.Errorf("proxy: %s:%d: %w", filename, line, err)
		}
		loaded = append(loaded, u)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("proxy: read %q: %w", filename, err)
	}

	p.mutex.Lock()
	p.proxies = loaded
	p.index = 0
	p.mutex.Unlock()
	return nil
}

// Next returns the next proxy in the rotation, or nil when the pool is empty
// and connections should be made directly.
func (p *Pool) Next() *url.URL {
	if p == nil {
		return nil
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if len(p.proxies) == 0 {
		return nil
	}
	u := p.proxies[p.index]
	p.index = (p.index + 1) % len(p.proxies)
	return u
}

// Count returns the number of loaded proxies.
func (p *Pool) Count() int {
	if p == nil {
		return 0
	}
	p.mutex.Lock()
	n := len(p.proxies)
	p.mutex.Unlock()
	return n
}
