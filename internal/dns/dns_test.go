package dns

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup_Literals(t *testing.T) {
	r := NewResolver()

	tests := []struct {
		host string
		want string
	}{
		{host: "192.0.2.10", want: "192.0.2.10"},
		{host: "::1", want: "::1"},
		{host: "localhost", want: "127.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			got, err := r.Lookup(context.Background(), tt.host)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDialContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		if c, err := ln.Accept(); err == nil {
			c.Close()
		}
	}()

	_, port, _ := net.SplitHostPort(ln.Addr().String())
	conn, err := NewResolver().DialContext(context.Background(), "tcp", net.JoinHostPort("localhost", port))
	require.NoError(t, err)
	conn.Close()
}

func TestDialContext_BadAddress(t *testing.T) {
	_, err := NewResolver().DialContext(context.Background(), "tcp", "no-port")
	assert.Error(t, err)
}

func TestTrimBrackets(t *testing.T) {
	assert.Equal(t, "2606:4700:4700::1111", trimBrackets("[2606:4700:4700::1111]"))
	assert.Equal(t, "1.1.1.1", trimBrackets("1.1.1.1"))
}
