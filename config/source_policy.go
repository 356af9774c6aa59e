package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// SourcePolicyConfig drops items from blocked hosts and labels items whose feed gave no source.
type SourcePolicyConfig struct {
	Block  []string          `mapstructure:"block" json:"block"`
	Labels map[string]string `mapstructure:"labels" json:"labels"`
}

// Normalize cleans entries and removes duplicates.
func (c SourcePolicyConfig) Normalize() SourcePolicyConfig {
	norm := c
	norm.Block = sanitizeDomainList(norm.Block)
	labels := make(map[string]string, len(norm.Labels))
	for host, val := range norm.Labels {
		key := normalizeHost(host)
		if key == "" {
			continue
		}
		labels[key] = strings.TrimSpace(val)
	}
	norm.Labels = labels
	return norm
}

// Validate ensures configured policy entries do not conflict.
func (c SourcePolicyConfig) Validate() error {
	norm := c.Normalize()
	blocked := make(map[string]struct{}, len(norm.Block))
	for _, host := range norm.Block {
		blocked[host] = struct{}{}
	}
	for host, label := range norm.Labels {
		if _, ok := blocked[host]; ok {
			return fmt.Errorf("source policy conflict: host %q is both blocked and labelled", host)
		}
		if label == "" {
			return fmt.Errorf("source policy label for %q must not be empty", host)
		}
	}
	return nil
}

// Allowed reports whether link points at a host that is not blocked. Subdomains of a blocked
// host are blocked too. Call on a normalized policy.
func (c SourcePolicyConfig) Allowed(link string) bool {
	host := normalizeHost(link)
	for _, b := range c.Block {
		if host == b || strings.HasSuffix(host, "."+b) {
			return false
		}
	}
	return true
}

// Label returns the configured source label for link's host.
func (c SourcePolicyConfig) Label(link string) (string, bool) {
	host := normalizeHost(link)
	for host != "" {
		if v, ok := c.Labels[host]; ok {
			return v, true
		}
		i := strings.IndexByte(host, '.')
		if i < 0 {
			break
		}
		host = host[i+1:]
	}
	return "", false
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
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		if u, err := url.Parse(value); err == nil && u.Host != "" {
			return strings.TrimPrefix(u.Hostname(), "www.")
		}
		return ""
	}
	return strings.TrimPrefix(value, "www.")
}
