package singleinstance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rodspot/src/grid"
)

type tcpClient struct{}

func newTcpClient() Client { return &tcpClient{} }

func (c *tcpClient) SendBounds(ctx context.Context, rect grid.Rect) (bool, error) {
	req := fmt.Sprintf("%s %d %d %d %d", RequestBounds, rect.X, rect.Y, rect.Width, rect.Height)
	delegated, _, err := c.request(ctx, req)
	return delegated, err
}

func (c *tcpClient) Status(ctx context.Context) (bool, string, error) {
	return c.request(ctx, RequestStatus.String())
}

// request finds the resident with PING and sends req to it.
func (c *tcpClient) request(ctx context.Context, req string) (bool, string, error) {
	timeout := timeoutFrom(ctx, 2*time.Second)
	start, end := portRange()
	for port := start; port <= end; port++ {
		addr := residentAddr(port)
		if !ping(addr, timeout) {
			continue
		}
		status, body, err := exchange(addr, req, timeout)
		if err != nil {
			return true, "", err
		}
		switch status {
		case okStatus:
			return true, body, nil
		case errorStatus:
			return true, "", errors.New(body)
		default:
			return true, "", fmt.Errorf("unexpected resident response %q", status)
		}
	}
	return false, "", nil
}
