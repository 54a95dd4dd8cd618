package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// SourcePolicyConfig filters web research hits by host. A host matches an
// entry when it equals it or is a subdomain of it.
type SourcePolicyConfig struct {
	// Allow, when non-empty, is the only set of hosts research may cite.
	Allow []string `mapstructure:"allow"`
	// Disallow hosts are dropped from results.
	Disallow []string `mapstructure:"disallow"`
	// Paywall hosts are cited from their search snippet but never fetched.
	Paywall []string `mapstructure:"paywall"`
}

// Normalize cleans entries and removes duplicates.
func (c SourcePolicyConfig) Normalize() SourcePolicyConfig {
	return SourcePolicyConfig{
		Allow:    sanitizeDomainList(c.Allow),
		Disallow: sanitizeDomainList(c.Disallow),
		Paywall:  sanitizeDomainList(c.Paywall),
	}
}

// Validate ensures configured entries do not conflict.
func (c SourcePolicyConfig) Validate() error {
	norm := c.Normalize()
	allow := make(map[string]struct{}, len(norm.Allow))
	for _, host := range norm.Allow {
		allow[host] = struct{}{}
	}
	disallow := make(map[string]struct{}, len(norm.Disallow))
	for _, host := range norm.Disallow {
		if _, ok := allow[host]; ok {
			return fmt.Errorf("source policy conflict: host %q present in both allow and disallow lists", host)
		}
		disallow[host] = struct{}{}
	}
	for _, host := range norm.Paywall {
		if _, ok := disallow[host]; ok {
			return fmt.Errorf("source policy conflict: host %q marked disallow and paywall", host)
		}
	}
	return nil
}

// Permits reports whether a hit at rawURL may be cited.
func (c SourcePolicyConfig) Permits(rawURL string) bool {
	host := urlHost(rawURL)
	if host == "" {
		return false
	}
	if matchHost(host, c.Disallow) {
		return false
	}
	return len(c.Allow) == 0 || matchHost(host, c.Allow)
}

// Fetchable reports whether the page at rawURL may be downloaded.
func (c SourcePolicyConfig) Fetchable(rawURL string) bool {
	return c.Permits(rawURL) && !matchHost(urlHost(rawURL), c.Paywall)
}

func urlHost(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func matchHost(host string, list []string) bool {
	for _, entry := range list {
		entry = normalizeHost(entry)
		if entry != "" && (host == entry || strings.HasSuffix(host, "."+entry)) {
			return true
		}
	}
	return false
}

func sanitizeDomainList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	for _, raw := range values {
		host := normalizeHost(raw)
		if host == "" {
			continue
		}
		seen[host] = struct{}{}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for host := range seen {
		out = append(out, host)
	}
	sort.Strings(out)
	return out
}

func normalizeHost(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return ""
	}
	if strings.Contains(value, "://") {
		u, err := url.Parse(value)
		if err != nil || u.Hostname() == "" {
			return ""
		}
		value = u.Hostname()
	}
	return strings.TrimPrefix(value, "www.")
}
