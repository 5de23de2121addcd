package transportquic

import (
	"context"
	"testing"
	"time"

	"github.com/rosslwheeler/ualink-go/pkg/dl"
)

func TestSendReceiveRoundTrip(t *testing.T) {
	server, err := New(Config{Address: "127.0.0.1:0", IsServer: true})
	if err != nil {
		t.Fatalf("server New: %v", err)
	}
	defer server.Close()

	// quic.Listen binds an ephemeral port; read it back from the
	// listener's Addr rather than reusing the wildcard "127.0.0.1:0".
	dialAddr := server.listener.Addr().String()

	client, err := New(Config{Address: dialAddr, IsServer: false})
	if err != nil {
		t.Fatalf("client New: %v", err)
	}
	defer client.Close()

	flit, _, err := dl.Pack(dl.ExplicitFlitHeader{FlitSeqNo: 5}, nil)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.SendFlit(ctx, flit); err != nil {
		t.Fatalf("SendFlit: %v", err)
	}

	got, err := server.ReceiveFlit(ctx)
	if err != nil {
		t.Fatalf("ReceiveFlit: %v", err)
	}
	if got.Bytes()[0] != flit.Bytes()[0] {
		t.Fatalf("received flit header mismatch")
	}

	if server.Statistics().FlitsReceived != 1 {
		t.Fatalf("FlitsReceived = %d, want 1", server.Statistics().FlitsReceived)
	}
	if client.Statistics().FlitsSent != 1 {
		t.Fatalf("FlitsSent = %d, want 1", client.Statistics().FlitsSent)
	}
}

func TestNewRejectsEmptyAddress(t *testing.T) {
	if _, err := New(Config{Address: ""}); err == nil {
		t.Fatal("expected an error for an empty address")
	}
}
