package singleinstance

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"
)

const (
	pingRequest  = "PING"
	pongResponse = "PONG"
	okStatus     = "OK"
	errorStatus  = "ERROR"
)

// DetectResidentPort scans the port range and returns (port, true) if a
// resident responds to PING.
func DetectResidentPort(ctx context.Context) (int, bool) {
	timeout := timeoutFrom(ctx, 300*time.Millisecond)
	start, end := portRange()
	for port := start; port <= end; port++ {
		if ping(residentAddr(port), timeout) {
			return port, true
		}
	}
	return 0, false
}

func timeoutFrom(ctx context.Context, def time.Duration) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 {
			return d
		}
	}
	return def
}

func ping(addr string, timeout time.Duration) bool {
	status, _, err := exchange(addr, pingRequest, timeout)
	return err == nil && status == pongResponse
}

// exchange sends one request line and reads the status line plus whatever
// body follows until the server closes the connection.
func exchange(addr, request string, timeout time.Duration) (string, string, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return "", "", err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	w := bufio.NewWriter(conn)
	if _, err := w.WriteString(request + "\n"); err != nil {
		return "", "", err
	}
	if err := w.Flush(); err != nil {
		return "", "", err
	}

	br := bufio.NewReader(conn)
	status, err := br.ReadString('\n')
	if err != nil {
		return "", "", err
	}
	body, err := io.ReadAll(br)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", "", err
	}
	return strings.TrimRight(status, "\r\n"), strings.TrimRight(string(body), "\r\n"), nil
}
