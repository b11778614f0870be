package rpc_test

import (
	"testing"

	"github.com/helgoboss/clipmatrix/engine"
	"github.com/helgoboss/clipmatrix/rpc"
)

func TestSendReceive(t *testing.T) {
	receiver, err := rpc.Receiver()
	if err != nil {
		t.Fatalf("rpc.Receiver error: %v", err)
	}
	sender, err := rpc.Sender("127.0.0.1")
	if err != nil {
		t.Fatalf("rpc.Sender error: %v", err)
	}
	value := []engine.SlotStatus{{Column: 1, Row: 2, State: engine.Playing, PosFrames: 42}}
	sender <- value
	valueGot := <-receiver
	if len(valueGot) != 1 || valueGot[0] != value[0] {
		t.Fatalf("received %v, sent %v", valueGot, value)
	}
}
