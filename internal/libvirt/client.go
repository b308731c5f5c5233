package libvirt

import (
	"context"
	"fmt"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/digitalocean/go-libvirt/socket/dialers"
)

const (
	// DefaultSocket is the qemu:///system control socket.
	DefaultSocket = "/var/run/libvirt/libvirt-sock"

	// DefaultDialTimeout bounds connection setup.
	DefaultDialTimeout = 5 * time.Second
)

// Client owns a go-libvirt connection.
type Client struct {
	libvirt *libvirt.Libvirt
	socket  string
}

// Connect dials the local libvirt daemon over its UNIX socket.
// Empty socketPath and zero timeout select the defaults.
func Connect(socketPath string, timeout time.Duration) (*Client, error) {
	if socketPath == "" {
		socketPath = DefaultSocket
	}
	if timeout == 0 {
		timeout = DefaultDialTimeout
	}

	dialer := dialers.NewLocal(
		dialers.WithSocket(socketPath),
		dialers.WithLocalTimeout(timeout),
	)

	l := libvirt.NewWithDialer(dialer)
	if err := l.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to libvirt at %s: %w", socketPath, err)
	}

	return &Client{libvirt: l, socket: socketPath}, nil
}

// ConnectWithContext is Connect, abandoned early if ctx ends first.
func ConnectWithContext(ctx context.Context, socketPath string, timeout time.Duration) (*Client, error) {
	type result struct {
		client *Client
		err    error
	}
	resultCh := make(chan result, 1)

	go func() {
		c, err := Connect(socketPath, timeout)
		resultCh <- result{client: c, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("connection cancelled: %w", ctx.Err())
	case res := <-resultCh:
		return res.client, res.err
	}
}

// Close disconnects. It is safe to call more than once.
func (c *Client) Close() error {
	if c.libvirt == nil {
		return nil
	}

	l := c.libvirt
	c.libvirt = nil
	if err := l.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect from libvirt: %w", err)
	}

	return nil
}

// Libvirt returns the underlying connection. Consumers hold it behind their
// own narrow interfaces.
func (c *Client) Libvirt() *libvirt.Libvirt {
	return c.libvirt
}

// Socket returns the socket path this client dialed.
func (c *Client) Socket() string {
	return c.socket
}

type versionGetter interface {
	ConnectGetLibVersion() (uint64, error)
}

// Ping checks the connection and returns the daemon's library version as
// major.minor.micro.
func (c *Client) Ping() (string, error) {
	if c.libvirt == nil {
		return "", fmt.Errorf("client not connected")
	}
	return ping(c.libvirt)
}

func ping(v versionGetter) (string, error) {
	ver, err := v.ConnectGetLibVersion()
	if err != nil {
		return "", fmt.Errorf("libvirt connection is dead: %w", err)
	}
	return FormatVersion(ver), nil
}

// FormatVersion renders libvirt's packed version number.
func FormatVersion(v uint64) string {
	return fmt.Sprintf("%d.%d.%d", v/1000000, (v/1000)%1000, v%1000)
}
