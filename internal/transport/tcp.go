package transport

import (
	"context"
	"fmt"
	"net"
)

// DialTCP connects to addr ("host:port") and returns an Adapter ready for
// SendOne/SendSequence.
func DialTCP(ctx context.Context, addr string) (*Adapter, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial tcp %s: %w", addr, err)
	}
	return New(conn), nil
}
