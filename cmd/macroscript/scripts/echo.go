//go:build ignore

// Echo server: every chunk a client sends is written back to it.
// The first script argument is the listen address (default 127.0.0.1:9001).
package main

import (
	"macro"
	"strconv"
	"strings"
)

var (
	server  *macro.Socket
	clients []*macro.Socket
)

func Init() error {
	host, port := "127.0.0.1", 9001
	if args := macro.Args(); len(args) > 0 && args[0] != "" {
		addr := args[0]
		if i := strings.LastIndex(addr, ":"); i >= 0 {
			if i > 0 {
				host = addr[:i]
			}
			p, err := strconv.Atoi(addr[i+1:])
			if err != nil {
				return err
			}
			port = p
		}
	}

	s, err := macro.NewSocket("tcp")
	if err != nil {
		return err
	}
	if err := s.Listen(host, port); err != nil {
		return err
	}
	server = s
	macro.Log("echo server listening on %s:%d", host, s.Port())
	return nil
}

func Terminate() {
	for _, c := range clients {
		c.Close()
	}
	clients = nil
	if server != nil {
		server.Close()
	}
}

func Event(name string, args ...any) error {
	switch name {
	case "socketconnected":
		if len(args) == 2 {
			clients = append(clients, args[0].(*macro.Socket))
		}
	case "socketreceived":
		s := args[0].(*macro.Socket)
		for {
			data, ok := s.Recv()
			if !ok {
				break
			}
			s.Send(data)
		}
	case "socketdisconnected", "socketerror":
		s := args[0].(*macro.Socket)
		for i, c := range clients {
			if c.Equal(s) {
				clients = append(clients[:i], clients[i+1:]...)
				break
			}
		}
		s.Release()
	case "warning", "error":
		macro.Log("%s: %v", name, args)
	}
	return nil
}
