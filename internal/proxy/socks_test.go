package proxy

import (
	"net/http"
	"testing"
	"time"
)

func TestNewHTTPClient_Direct(t *testing.T) {
	c, err := NewHTTPClient("", 5*time.Second)
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}
	if c.Transport != nil {
		t.Error("Direct client must use the default transport")
	}
	if c.Timeout != 5*time.Second {
		t.Errorf("Expected 5s timeout, got %s", c.Timeout)
	}
}

func TestNewHTTPClient_Socks(t *testing.T) {
	c, err := NewHTTPClient("127.0.0.1:1080", time.Minute)
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}

	tr, ok := c.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("Expected *http.Transport, got %T", c.Transport)
	}
	if tr.DialContext == nil {
		t.Error("Expected proxy dialer on transport")
	}
}
