package policy

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test plan:
// 1. Test exact host/port/scheme matching with explicit and default ports
// 2. Test suffix wildcard and bare wildcard host patterns
// 3. Test scheme-conventional ports for every supported backend scheme
// 4. Test malformed destinations surface ErrInvalidAddress, not ErrDenied
// 5. Test self entries and per-scheme self restrictions
// 6. Test decisions are deterministic and independent of rule order
// 7. Test malformed allow-list entries fail at parse time

func mustParse(t *testing.T, entries ...string) *AllowedHosts {
	t.Helper()
	allowed, err := ParseAllowedHosts(entries)
	require.NoError(t, err)
	return allowed
}

func TestAllowedHosts_ExactMatch(t *testing.T) {
	allowed := mustParse(t, "https://example.com:443")

	assert.NoError(t, allowed.Authorize("https://example.com/", "https"))
	assert.NoError(t, allowed.Authorize("https://example.com:443/path?q=1", "https"))

	// Different port, scheme, or host is denied.
	assert.ErrorIs(t, allowed.Authorize("https://example.com:8443/", "https"), ErrDenied)
	assert.ErrorIs(t, allowed.Authorize("http://example.com/", "https"), ErrDenied)
	assert.ErrorIs(t, allowed.Authorize("https://example.org/", "https"), ErrDenied)
	assert.ErrorIs(t, allowed.Authorize("https://sub.example.com/", "https"), ErrDenied)
}

func TestAllowedHosts_HostPatterns(t *testing.T) {
	allowed := mustParse(t, "https://*.example.com")

	assert.NoError(t, allowed.Authorize("https://api.example.com/", "https"))
	assert.NoError(t, allowed.Authorize("https://a.b.example.com/", "https"))
	// The suffix pattern does not match the apex host.
	assert.ErrorIs(t, allowed.Authorize("https://example.com/", "https"), ErrDenied)

	anyHost := mustParse(t, "https://*")
	assert.NoError(t, anyHost.Authorize("https://anything.test/", "https"))
	assert.ErrorIs(t, anyHost.Authorize("http://anything.test/", "https"), ErrDenied)
}

func TestAllowedHosts_SchemeDefaults(t *testing.T) {
	allowed := mustParse(t,
		"http://web.test",
		"redis://cache.test",
		"mysql://db.test",
	)

	assert.NoError(t, allowed.Authorize("http://web.test:80/", "http"))
	assert.NoError(t, allowed.Authorize("redis://cache.test:6379", "redis"))
	assert.NoError(t, allowed.Authorize("mysql://db.test:3306/app", "mysql"))

	// Schemeless addresses assume the adapter's scheme.
	assert.NoError(t, allowed.Authorize("cache.test:6379", "redis"))
	assert.NoError(t, allowed.Authorize("cache.test", "redis"))

	assert.ErrorIs(t, allowed.Authorize("redis://cache.test:6380", "redis"), ErrDenied)
	assert.ErrorIs(t, allowed.Authorize("mysql://db.test:3307/app", "mysql"), ErrDenied)
}

func TestAllowedHosts_AnyPortAndAnyScheme(t *testing.T) {
	allowed := mustParse(t, "*://example.com:*")

	assert.NoError(t, allowed.Authorize("https://example.com:8443/", "https"))
	assert.NoError(t, allowed.Authorize("redis://example.com:6380", "redis"))
	assert.ErrorIs(t, allowed.Authorize("redis://other.com", "redis"), ErrDenied)
}

func TestAllowedHosts_InvalidAddressIsNotDenial(t *testing.T) {
	allowed := mustParse(t, "https://example.com")

	err := allowed.Authorize("://oops", "https")
	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.NotErrorIs(t, err, ErrDenied)

	err = allowed.Authorize("", "https")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestAllowedHosts_Self(t *testing.T) {
	none := mustParse(t, "https://example.com")
	assert.ErrorIs(t, none.AuthorizeRelative([]string{"http", "https"}), ErrDenied)
	assert.False(t, none.AllowsSelf())

	all := mustParse(t, "*://self")
	assert.NoError(t, all.AuthorizeRelative([]string{"http", "https"}))
	assert.True(t, all.AllowsSelf())

	httpsOnly := mustParse(t, "https://self")
	assert.NoError(t, httpsOnly.AuthorizeRelative([]string{"http", "https"}))
	assert.NoError(t, httpsOnly.AuthorizeRelative([]string{"https"}))
	assert.ErrorIs(t, httpsOnly.AuthorizeRelative([]string{"http"}), ErrDenied)
}

func TestAllowedHosts_OrderIndependence(t *testing.T) {
	entries := []string{
		"https://example.com:443",
		"http://*.internal.test",
		"redis://cache.test",
		"mysql://db.test:3306",
		"*://wild.test:*",
	}
	destinations := []struct {
		address string
		scheme  string
	}{
		{"https://example.com/", "https"},
		{"https://example.com:8443/", "https"},
		{"http://api.internal.test/", "http"},
		{"http://internal.test/", "http"},
		{"redis://cache.test:6379", "redis"},
		{"redis://cache.test:6380", "redis"},
		{"mysql://db.test/app", "mysql"},
		{"https://wild.test:9999/", "https"},
	}

	reference := mustParse(t, entries...)
	want := make([]bool, len(destinations))
	for i, d := range destinations {
		want[i] = reference.Authorize(d.address, d.scheme) == nil
	}

	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 20; trial++ {
		shuffled := append([]string(nil), entries...)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		allowed := mustParse(t, shuffled...)
		for i, d := range destinations {
			got := allowed.Authorize(d.address, d.scheme) == nil
			assert.Equal(t, want[i], got, "destination %s with order %v", d.address, shuffled)
		}
	}
}

func TestParseAllowedHosts_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		entry string
	}{
		{"missing scheme", "example.com"},
		{"missing host", "https://"},
		{"bad port", "https://example.com:http"},
		{"port out of range", "https://example.com:70000"},
		{"mid-host wildcard", "https://api.*.example.com"},
		{"bare suffix", "https://*."},
		{"self with port", "https://self:443"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAllowedHosts([]string{tt.entry})
			assert.Error(t, err)
		})
	}
}

func TestParseAllowedHosts_IgnoresBlankEntries(t *testing.T) {
	allowed, err := ParseAllowedHosts([]string{"", "  ", "https://example.com"})
	require.NoError(t, err)
	assert.NoError(t, allowed.Authorize("https://example.com/", "https"))
}

func TestAllowedHosts_IPv6Literal(t *testing.T) {
	allowed := mustParse(t, "redis://[2001:db8::1]:6379")

	assert.NoError(t, allowed.Authorize("redis://[2001:db8::1]:6379", "redis"))
	assert.ErrorIs(t, allowed.Authorize("redis://[2001:db8::2]:6379", "redis"), ErrDenied)
}
