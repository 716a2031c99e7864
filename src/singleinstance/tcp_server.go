package singleinstance

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"rodspot/src/grid"
)

// tcpServer implements Server over TCP loopback.
type tcpServer struct {
	lis       net.Listener
	incoming  chan *tcpConn
	port      int
	closeOnce sync.Once
}

func newTcpServer() Server { return &tcpServer{incoming: make(chan *tcpConn, 8)} }

// Start binds ONLY the start port of the configured range. If occupied, fail.
func (s *tcpServer) Start(ctx context.Context) error {
	if s.lis != nil {
		return nil
	}
	start, _ := portRange()
	addr := residentAddr(start)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Printf("singleinstance: failed to bind %s: %v", addr, err)
		return err
	}
	s.lis = lis
	s.port = start
	log.Printf("singleinstance: listening on %s", addr)
	go s.acceptLoop(ctx, lis)
	return nil
}

// Port returns the bound port (0 if not started).
func (s *tcpServer) Port() int { return s.port }

func (s *tcpServer) acceptLoop(ctx context.Context, lis net.Listener) {
	for {
		c, err := lis.Accept()
		if err != nil {
			return
		}
		remote := c.RemoteAddr().String()
		_ = c.SetDeadline(time.Now().Add(3 * time.Second))
		br := bufio.NewReader(c)
		line, _ := br.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		bw := bufio.NewWriter(c)

		if line == pingRequest {
			_, _ = bw.WriteString(pongResponse + "\n")
			_ = bw.Flush()
			_ = c.Close()
			continue
		}

		req, err := parseRequest(line)
		if err != nil {
			log.Printf("singleinstance: bad request from %s: %v", remote, err)
			tc := &tcpConn{c: c, w: bw}
			_ = tc.RespondError(err.Error())
			_ = tc.Close()
			continue
		}
		log.Printf("singleinstance: %s request from %s", req.Kind, remote)

		select {
		case s.incoming <- &tcpConn{c: c, r: req, w: bw}:
		case <-ctx.Done():
			_ = c.Close()
			return
		}
	}
}

// parseRequest accepts "BOUNDS <x> <y> <w> <h>" and "STATUS".
func parseRequest(line string) (Request, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Request{}, fmt.Errorf("empty request")
	}
	switch fields[0] {
	case RequestStatus.String():
		if len(fields) != 1 {
			return Request{}, fmt.Errorf("STATUS takes no arguments")
		}
		return Request{Kind: RequestStatus}, nil
	case RequestBounds.String():
		if len(fields) != 5 {
			return Request{}, fmt.Errorf("BOUNDS needs x y width height")
		}
		var v [4]int
		for i, f := range fields[1:] {
			n, err := strconv.Atoi(f)
			if err != nil {
				return Request{}, fmt.Errorf("BOUNDS: %q is not an integer", f)
			}
			v[i] = n
		}
		r := grid.Rect{X: v[0], Y: v[1], Width: v[2], Height: v[3]}
		if !r.Valid() {
			return Request{}, fmt.Errorf("BOUNDS: width and height must be positive")
		}
		return Request{Kind: RequestBounds, Rect: r}, nil
	default:
		return Request{}, fmt.Errorf("unknown request %q", fields[0])
	}
}

func (s *tcpServer) Next(ctx context.Context) (Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case tc, ok := <-s.incoming:
		if !ok {
			return nil, net.ErrClosed
		}
		return tc, nil
	}
}

func (s *tcpServer) Close() error {
	s.closeOnce.Do(func() {
		if s.lis != nil {
			_ = s.lis.Close()
		}
	})
	return nil
}

type tcpConn struct {
	c net.Conn
	r Request
	w *bufio.Writer
}

func (tc *tcpConn) Request() Request { return tc.r }

func (tc *tcpConn) RespondOK(body string) error {
	_ = tc.c.SetDeadline(time.Now().Add(3 * time.Second))
	msg := okStatus + "\n"
	if body != "" {
		msg += body + "\n"
	}
	if _, err := tc.w.WriteString(msg); err != nil {
		return err
	}
	return tc.w.Flush()
}

func (tc *tcpConn) RespondError(msg string) error {
	_ = tc.c.SetDeadline(time.Now().Add(3 * time.Second))
	if _, err := tc.w.WriteString(errorStatus + "\n" + msg); err != nil {
		return err
	}
	return tc.w.Flush()
}

func (tc *tcpConn) Close() error { return tc.c.Close() }
