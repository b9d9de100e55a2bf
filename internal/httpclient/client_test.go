package httpclient

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateURL(t *testing.T) {
	blocking := New(5*time.Second, Options{BlockPrivateHosts: true})
	open := New(5*time.Second, Options{})

	tests := []struct {
		name    string
		client  *SafeClient
		url     string
		wantErr bool
	}{
		{"public https allowed", blocking, "https://example.com/hook", false},
		{"public http allowed", blocking, "http://example.com/hook", false},
		{"ftp scheme rejected", blocking, "ftp://example.com/file", true},
		{"file scheme rejected", open, "file:///etc/passwd", true},
		{"userinfo rejected", blocking, "https://user@example.com/", true},
		{"missing hostname rejected", blocking, "https:///path", true},
		{"localhost blocked when blocking", blocking, "http://localhost:8080/hook", true},
		{"localhost subdomain blocked", blocking, "http://api.localhost/hook", true},
		{"loopback IP blocked when blocking", blocking, "http://127.0.0.1:9999/", true},
		{"private IP blocked when blocking", blocking, "http://192.168.1.10/hook", true},
		{"link-local blocked when blocking", blocking, "http://169.254.169.254/meta", true},
		{"localhost allowed when open", open, "http://localhost:8080/hook", false},
		{"private IP allowed when open", open, "http://10.0.0.5/hook", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.client.ValidateURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsNonPublicIP(t *testing.T) {
	nonPublic := []string{"127.0.0.1", "10.1.2.3", "172.16.0.1", "192.168.0.1", "169.254.169.254", "0.0.0.0", "224.0.0.1", "::1", "fe80::1", "fd00::1", "::"}
	for _, s := range nonPublic {
		ip := net.ParseIP(s)
		require.NotNil(t, ip, s)
		assert.True(t, isNonPublicIP(ip), "%s should be non-public", s)
	}

	public := []string{"8.8.8.8", "1.1.1.1", "93.184.216.34", "2001:4860:4860::8888"}
	for _, s := range public {
		ip := net.ParseIP(s)
		require.NotNil(t, ip, s)
		assert.False(t, isNonPublicIP(ip), "%s should be public", s)
	}
}

func TestWrapDisablesBlocking(t *testing.T) {
	c := Wrap(New(time.Second, Options{}).Client)
	_, err := c.ValidateURL("http://127.0.0.1:12345/anything")
	assert.NoError(t, err, "wrapped clients must accept loopback targets")
}
