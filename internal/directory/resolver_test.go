package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"group_directory_bot/internal/domain"
	"group_directory_bot/internal/substrate"
)

// fakeChats reports membership per chat id; missing chats error like the
// substrate does for dead chats.
type fakeChats struct {
	self    string
	members map[int64][]substrate.Contact
}

func (f *fakeChats) SelfAddr() string {
	return f.self
}

func (f *fakeChats) ChatMembers(ctx context.Context, chatID int64) ([]substrate.Contact, error) {
	members, ok := f.members[chatID]
	if !ok {
		return nil, errors.New("chat not found")
	}
	return members, nil
}

func newResolverFixture() (*fixture, *fakeChats, *Resolver) {
	f := newFixture()
	chats := &fakeChats{
		self:    "bot@example.org",
		members: make(map[int64][]substrate.Contact),
	}

	logger, _ := logtest.NewNullLogger()
	resolver := NewResolver(f.store, chats, logrus.NewEntry(logger))

	return f, chats, resolver
}

func TestLiveSubscriberChatsPrunesDeadLinks(t *testing.T) {
	f, chats, resolver := newResolverFixture()

	f.cchats.findDocs = []interface{}{
		domain.SubscriberChat{ChatID: 800, ChannelID: 7},
		domain.SubscriberChat{ChatID: 801, ChannelID: 7},
	}
	chats.members[800] = []substrate.Contact{
		{Addr: "bot@example.org"},
		{Addr: "a@example.org"},
	}
	// 801 is dead: it must be pruned and skipped

	chatIDs, err := resolver.LiveSubscriberChats(context.Background(), 7, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(chatIDs) != 1 || chatIDs[0] != 800 {
		t.Fatalf("unexpected live chats: %v", chatIDs)
	}

	if len(f.cchats.deleteFilters) != 1 {
		t.Fatalf("expected 1 pruned link, got %d", len(f.cchats.deleteFilters))
	}
}

func TestLiveSubscriberChatsSkipsChatsWithoutBot(t *testing.T) {
	f, chats, resolver := newResolverFixture()

	f.cchats.findDocs = []interface{}{
		domain.SubscriberChat{ChatID: 800, ChannelID: 7},
	}
	chats.members[800] = []substrate.Contact{{Addr: "a@example.org"}}

	chatIDs, err := resolver.LiveSubscriberChats(context.Background(), 7, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chatIDs) != 0 {
		t.Fatalf("expected no live chats, got %v", chatIDs)
	}
	if len(f.cchats.deleteFilters) != 1 {
		t.Fatal("expected the link to be pruned")
	}
}

func TestLiveSubscriberChatsIncludeAdminListsAdminFirst(t *testing.T) {
	f, chats, resolver := newResolverFixture()

	f.channels.findOneDoc = domain.Channel{ID: 7, Name: "Deals", AdminChatID: 500}
	f.cchats.findDocs = []interface{}{
		domain.SubscriberChat{ChatID: 800, ChannelID: 7},
	}
	chats.members[500] = []substrate.Contact{{Addr: "bot@example.org"}, {Addr: "op@example.org"}}
	chats.members[800] = []substrate.Contact{{Addr: "bot@example.org"}, {Addr: "a@example.org"}}

	chatIDs, err := resolver.LiveSubscriberChats(context.Background(), 7, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chatIDs) != 2 || chatIDs[0] != 500 || chatIDs[1] != 800 {
		t.Fatalf("unexpected chat order: %v", chatIDs)
	}
}

func TestDeadAdminChatRemovesWholeChannel(t *testing.T) {
	f, _, resolver := newResolverFixture()

	f.channels.findOneDoc = domain.Channel{ID: 7, Name: "Deals", AdminChatID: 500}
	// admin chat 500 is dead

	if _, err := resolver.LiveSubscriberChats(context.Background(), 7, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.channels.deleteFilters) != 1 {
		t.Fatal("expected channel to be removed")
	}
	if len(f.cchats.deleteManyF) != 1 {
		t.Fatal("expected subscriber links cascade")
	}
}

func TestSubscriberCountExcludesBot(t *testing.T) {
	f, chats, resolver := newResolverFixture()

	f.cchats.findDocs = []interface{}{
		domain.SubscriberChat{ChatID: 800, ChannelID: 7},
		domain.SubscriberChat{ChatID: 801, ChannelID: 7},
	}
	chats.members[800] = []substrate.Contact{
		{Addr: "bot@example.org"},
		{Addr: "a@example.org"},
		{Addr: "b@example.org"},
	}
	chats.members[801] = []substrate.Contact{
		{Addr: "bot@example.org"},
		{Addr: "c@example.org"},
	}

	count, err := resolver.SubscriberCount(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 subscribers, got %d", count)
	}
}

func TestLiveGroupMembersPrunesDeadGroup(t *testing.T) {
	f, _, resolver := newResolverFixture()

	members, ok := resolver.LiveGroupMembers(context.Background(), 10)
	if ok {
		t.Fatalf("expected dead group, got members %v", members)
	}

	if len(f.groups.deleteFilters) != 1 {
		t.Fatal("expected group to be pruned")
	}
	if len(f.lastSeens.deleteManyF) != 1 {
		t.Fatal("expected activity markers cascade")
	}
}

func TestLiveGroupMembersReturnsMembers(t *testing.T) {
	_, chats, resolver := newResolverFixture()

	chats.members[10] = []substrate.Contact{
		{Addr: "bot@example.org"},
		{Addr: "a@example.org"},
	}

	members, ok := resolver.LiveGroupMembers(context.Background(), 10)
	if !ok || len(members) != 2 {
		t.Fatalf("unexpected result: ok=%v members=%v", ok, members)
	}
}
