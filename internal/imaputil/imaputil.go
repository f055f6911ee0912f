package imaputil

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/emersion/go-imap/client"
)

// ServerInfo describes how to reach and log into one IMAP server.
type ServerInfo struct {
	Host     string
	Port     int // 0 selects 993 with TLS, 143 without
	User     string
	Password string
	TLS      bool // implicit TLS
	StartTLS bool // upgrade a plain connection; ignored when TLS is set
}

// Addr returns host:port, filling in the protocol default port.
func (s ServerInfo) Addr() string {
	port := s.Port
	if port == 0 {
		port = 143
		if s.TLS {
			port = 993
		}
	}
	return net.JoinHostPort(s.Host, strconv.Itoa(port))
}

const dialTimeout = 30 * time.Second

// DialAndLogin connects and logs into an IMAP server.
func DialAndLogin(ctx context.Context, info ServerInfo, tlsConfig *tls.Config) (*client.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if tlsConfig == nil {
		tlsConfig = &tls.Config{}
	}
	if tlsConfig.ServerName == "" {
		tlsConfig = tlsConfig.Clone()
		tlsConfig.ServerName = info.Host
	}
	dialer := &net.Dialer{Timeout: dialTimeout}
	var c *client.Client
	var err error
	if info.TLS {
		c, err = client.DialWithDialerTLS(dialer, info.Addr(), tlsConfig)
	} else {
		c, err = client.DialWithDialer(dialer, info.Addr())
	}
	if err != nil {
		return nil, err
	}
	if !info.TLS && info.StartTLS {
		// Plain connection, then upgrade with STARTTLS
		if err := c.StartTLS(tlsConfig); err != nil {
			_ = c.Logout()
			return nil, fmt.Errorf("starttls: %w", err)
		}
	}
	// Enable raw IMAP wire debug if requested via environment variable
	if os.Getenv("IMAPMOVER_IMAP_DEBUG") == "1" {
		c.SetDebug(os.Stderr)
	}
	if err := c.Login(info.User, info.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("login %s: %w", info.User, err)
	}
	return c, nil
}
