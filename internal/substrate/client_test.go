package substrate

import (
	"context"
	"errors"
	"net/rpc"
	"testing"
)

// fakeRPC resolves calls synchronously from a per-method reply table.
type fakeRPC struct {
	replies map[string]interface{}
	errs    map[string]error
	calls   []string
	args    map[string]interface{}
	closed  bool
	block   map[string]bool
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{
		replies: make(map[string]interface{}),
		errs:    make(map[string]error),
		args:    make(map[string]interface{}),
		block:   make(map[string]bool),
	}
}

func (f *fakeRPC) Go(serviceMethod string, args interface{}, reply interface{}, done chan *rpc.Call) *rpc.Call {
	f.calls = append(f.calls, serviceMethod)
	f.args[serviceMethod] = args

	if done == nil {
		done = make(chan *rpc.Call, 1)
	}
	call := &rpc.Call{ServiceMethod: serviceMethod, Args: args, Reply: reply, Done: done}

	if f.block[serviceMethod] {
		return call
	}

	if err, ok := f.errs[serviceMethod]; ok {
		call.Error = err
	} else if val, ok := f.replies[serviceMethod]; ok {
		assign(reply, val)
	}

	done <- call
	return call
}

func (f *fakeRPC) Close() error {
	f.closed = true
	return nil
}

func assign(reply, val interface{}) {
	switch target := reply.(type) {
	case *string:
		*target = val.(string)
	case *bool:
		*target = val.(bool)
	case *int64:
		*target = val.(int64)
	case *[]Contact:
		*target = val.([]Contact)
	case *Event:
		*target = val.(Event)
	}
}

func dialWithFake(t *testing.T, fake *fakeRPC) *Client {
	t.Helper()

	original := dialRPC
	dialRPC = func(string) (rpcCaller, error) { return fake, nil }
	t.Cleanup(func() { dialRPC = original })

	client, err := Dial(context.Background(), "127.0.0.1:20808")
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return client
}

func TestDialResolvesSelfAddr(t *testing.T) {
	fake := newFakeRPC()
	fake.replies[rpcSelfAddr] = "bot@example.org"

	client := dialWithFake(t, fake)

	if client.SelfAddr() != "bot@example.org" {
		t.Fatalf("unexpected self addr: %s", client.SelfAddr())
	}
}

func TestDialRejectsEmptySelfAddr(t *testing.T) {
	fake := newFakeRPC()
	fake.replies[rpcSelfAddr] = ""

	original := dialRPC
	dialRPC = func(string) (rpcCaller, error) { return fake, nil }
	defer func() { dialRPC = original }()

	if _, err := Dial(context.Background(), "127.0.0.1:20808"); err == nil {
		t.Fatal("expected error for empty self address")
	}
	if !fake.closed {
		t.Fatal("expected connection to be closed after failed dial")
	}
}

func TestDialRequiresAddress(t *testing.T) {
	if _, err := Dial(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty address")
	}
}

func TestChatOperations(t *testing.T) {
	fake := newFakeRPC()
	fake.replies[rpcSelfAddr] = "bot@example.org"
	fake.replies[rpcChatName] = "Friends"
	fake.replies[rpcChatIsGroup] = true
	fake.replies[rpcDirectChat] = int64(77)
	fake.replies[rpcChatMembers] = []Contact{{Addr: "a@example.org"}, {Addr: "bot@example.org"}}
	fake.replies[rpcCreateGroup] = int64(42)
	fake.replies[rpcAddMember] = true
	fake.replies[rpcRemoveMember] = true
	fake.replies[rpcChatImage] = "/tmp/avatar.png"
	fake.replies[rpcJoinQR] = "OPENPGP4FPR:ABC"
	fake.replies[rpcSendMessage] = true

	client := dialWithFake(t, fake)
	ctx := context.Background()

	name, err := client.ChatName(ctx, 5)
	if err != nil || name != "Friends" {
		t.Fatalf("unexpected chat name: %q err=%v", name, err)
	}

	isGroup, err := client.ChatIsGroup(ctx, 5)
	if err != nil || !isGroup {
		t.Fatalf("unexpected is-group: %v err=%v", isGroup, err)
	}

	direct, err := client.DirectChat(ctx, "a@example.org")
	if err != nil || direct != 77 {
		t.Fatalf("unexpected direct chat: %d err=%v", direct, err)
	}
	if args, ok := fake.args[rpcDirectChat].(AddrArgs); !ok || args.Addr != "a@example.org" {
		t.Fatalf("unexpected direct chat args: %+v", fake.args[rpcDirectChat])
	}

	members, err := client.ChatMembers(ctx, 5)
	if err != nil || len(members) != 2 {
		t.Fatalf("unexpected members: %+v err=%v", members, err)
	}

	chatID, err := client.CreateGroup(ctx, "Nature Lovers", []string{"a@example.org"})
	if err != nil || chatID != 42 {
		t.Fatalf("unexpected create group: %d err=%v", chatID, err)
	}

	if err := client.AddMember(ctx, 42, "b@example.org"); err != nil {
		t.Fatalf("add member failed: %v", err)
	}
	if err := client.RemoveMember(ctx, 42, "b@example.org"); err != nil {
		t.Fatalf("remove member failed: %v", err)
	}

	image, err := client.ChatImage(ctx, 5)
	if err != nil || image != "/tmp/avatar.png" {
		t.Fatalf("unexpected image: %q err=%v", image, err)
	}

	payload, err := client.JoinQR(ctx, 5)
	if err != nil || payload != "OPENPGP4FPR:ABC" {
		t.Fatalf("unexpected join qr: %q err=%v", payload, err)
	}

	if err := client.SendMessage(ctx, Outgoing{ChatID: 5, Text: "hi"}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
}

func TestCallPropagatesError(t *testing.T) {
	fake := newFakeRPC()
	fake.replies[rpcSelfAddr] = "bot@example.org"
	fake.errs[rpcChatName] = errors.New("chat gone")

	client := dialWithFake(t, fake)

	if _, err := client.ChatName(context.Background(), 9); err == nil {
		t.Fatal("expected error from rpc failure")
	}
}

func TestCallAbortsOnCanceledContext(t *testing.T) {
	fake := newFakeRPC()
	fake.replies[rpcSelfAddr] = "bot@example.org"
	fake.block[rpcNextEvent] = true

	client := dialWithFake(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.NextEvent(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestCloseIsNilSafe(t *testing.T) {
	var client *Client
	if err := client.Close(); err != nil {
		t.Fatalf("nil client close should be a no-op, got %v", err)
	}
}
