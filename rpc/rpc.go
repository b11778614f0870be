// Package rpc streams slot status snapshots between processes, so a separate
// monitor process (e.g. a hardware controller bridge) can follow a running
// matrix.
package rpc

import (
	"fmt"
	"net"
	"net/http"
	"net/rpc"

	"github.com/helgoboss/clipmatrix/engine"
)

type StatusServer struct {
	channel chan []engine.SlotStatus
}

func (s *StatusServer) Push(statuses []engine.SlotStatus, reply *int) error {
	select {
	case s.channel <- statuses:
	default:
	}
	return nil
}

func Receiver() (<-chan []engine.SlotStatus, error) {
	c := make(chan []engine.SlotStatus, 1)
	server := &StatusServer{channel: c}
	rpc.Register(server)
	rpc.HandleHTTP()
	l, e := net.Listen("tcp", ":31337")
	if e != nil {
		return nil, fmt.Errorf("net.Listen failed: %v", e)
	}
	go func() {
		defer close(c)
		http.Serve(l, nil)
	}()
	return c, nil
}

func Sender(serverAddress string) (chan<- []engine.SlotStatus, error) {
	c := make(chan []engine.SlotStatus, 256)
	client, err := rpc.DialHTTP("tcp", serverAddress+":31337")
	if err != nil {
		return nil, fmt.Errorf("rpc.DialHTTP failed: %v", err)
	}
	go func() {
		for msg := range c {
			var reply int
			if err := client.Call("StatusServer.Push", msg, &reply); err != nil {
				return
			}
		}
	}()
	return c, nil
}
