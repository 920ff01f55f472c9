package stratum

import (
	"encoding/json"
	"net"
	"testing"
)

func TestCodecReadRequestParsesLine(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	codec := NewCodec(server)

	go func() {
		client.Write([]byte(`{"id":1,"method":"mining.subscribe","params":[]}` + "\n"))
	}()

	req, err := codec.ReadRequest()
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if req.Method != "mining.subscribe" {
		t.Fatalf("unexpected method: %q", req.Method)
	}
	id, ok := req.ID.(float64)
	if !ok || id != 1 {
		t.Fatalf("unexpected id: %+v", req.ID)
	}
}

func TestCodecReadRequestOnClosedConnErrors(t *testing.T) {
	client, server := net.Pipe()
	codec := NewCodec(server)
	client.Close()
	server.Close()

	if _, err := codec.ReadRequest(); err == nil {
		t.Fatal("expected an error reading from a closed connection")
	}
}

func TestCodecSendResponseWritesJSONLine(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	codec := NewCodec(server)
	done := make(chan error, 1)
	go func() { done <- codec.SendResponse(&Response{ID: 7, Result: true}) }()

	dec := json.NewDecoder(client)
	var resp Response
	if err := dec.Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("SendResponse: %v", err)
	}
	id, ok := resp.ID.(float64)
	if !ok || id != 7 {
		t.Fatalf("unexpected id: %+v", resp.ID)
	}
	if resp.Result != true {
		t.Fatalf("unexpected result: %+v", resp.Result)
	}
}

func TestCodecSendNotificationWritesJSONLine(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	codec := NewCodec(server)
	done := make(chan error, 1)
	go func() {
		done <- codec.SendNotification(&Notification{Method: "mining.set_difficulty", Params: []interface{}{1.5}})
	}()

	dec := json.NewDecoder(client)
	var notif Notification
	if err := dec.Decode(&notif); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("SendNotification: %v", err)
	}
	if notif.Method != "mining.set_difficulty" {
		t.Fatalf("unexpected method: %q", notif.Method)
	}
}
