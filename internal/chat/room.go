// Package chat holds the room and registry state of the chat service:
// membership, bounded history, ordered fan-out and presence propagation.
package chat

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Tyrowin/roomchat/internal/presence"
	"github.com/Tyrowin/roomchat/internal/protocol"
)

// DefaultHistoryLimit is the number of messages a room retains for replay.
const DefaultHistoryLimit = 50

// Member is the outbound side of one connection as seen by a room.
//
// Enqueue must never block: it returns false when the payload could not be
// queued, and the room then evicts the member. Close must be idempotent.
type Member interface {
	Enqueue(payload []byte) bool
	Close()
}

// roomObserver is notified of membership changes while the room lock is held
// and supplies presence labels for user lists. Implementations must not call
// back into any Room.
type roomObserver interface {
	memberJoined(room, username string)
	memberLeft(room, username string)
	statusesOf(usernames []string) map[string]string
}

type detachedObserver struct{}

func (detachedObserver) memberJoined(string, string) {}
func (detachedObserver) memberLeft(string, string)   {}
func (detachedObserver) statusesOf(usernames []string) map[string]string {
	out := make(map[string]string, len(usernames))
	for _, name := range usernames {
		out[name] = presence.StatusUnknown
	}
	return out
}

type record struct {
	msg     protocol.Message
	payload []byte
}

type departure struct {
	username string
	member   Member
}

// Room is a named broadcast group with a bounded, ordered message history.
// All membership and history mutations are serialized by the room's mutex,
// so every member observes broadcasts in the same order.
type Room struct {
	name  string
	topic string
	limit int
	now   func() time.Time
	obs   roomObserver

	mu      sync.Mutex
	members map[string]Member
	order   []string
	history []record
}

// NewRoom creates a standalone room that is not attached to a Registry.
// Members of a standalone room always report an unknown status.
func NewRoom(name, topic string) *Room {
	return newRoom(name, topic, DefaultHistoryLimit, time.Now, detachedObserver{})
}

func newRoom(name, topic string, limit int, now func() time.Time, obs roomObserver) *Room {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Room{
		name:    name,
		topic:   topic,
		limit:   limit,
		now:     now,
		obs:     obs,
		members: make(map[string]Member),
		history: make([]record, 0, limit),
	}
}

// Name returns the room's unique name.
func (r *Room) Name() string { return r.name }

// Topic returns the informational topic line.
func (r *Room) Topic() string { return r.topic }

// Join admits m under username. The new member first receives the history
// snapshot, then every member including the new one receives the updated user
// list followed by the join notice.
func (r *Room) Join(username string, m Member) error {
	if m == nil {
		return errors.New("chat: nil member")
	}

	r.mu.Lock()
	if _, exists := r.members[username]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q in %q", ErrDuplicateMember, username, r.name)
	}

	r.members[username] = m
	r.order = append(r.order, username)
	r.obs.memberJoined(r.name, username)

	var dropped []departure
	for _, rec := range r.history {
		if !m.Enqueue(rec.payload) {
			dropped = append(dropped, departure{username: username, member: m})
			break
		}
	}
	dropped = append(dropped, r.broadcastMembersLocked()...)
	dropped = append(dropped, r.postLocked(r.notice(username+" has joined the room"))...)
	r.mu.Unlock()

	r.evict(dropped)
	return nil
}

// Leave removes username from the room and closes its connection. Leaving a
// room the user is not in does nothing.
func (r *Room) Leave(username string) {
	r.leave(username, nil)
}

// leave removes username only while it is still bound to want; a nil want
// matches any member. It reports whether a member was removed.
func (r *Room) leave(username string, want Member) bool {
	r.mu.Lock()
	m, ok := r.members[username]
	if !ok || (want != nil && m != want) {
		r.mu.Unlock()
		return false
	}

	delete(r.members, username)
	r.order = removeName(r.order, username)
	r.obs.memberLeft(r.name, username)

	dropped := r.postLocked(r.notice(username + " has left the room"))
	dropped = append(dropped, r.broadcastMembersLocked()...)
	r.mu.Unlock()

	m.Close()
	r.evict(dropped)
	return true
}

// Post appends msg to the history and broadcasts it to every member.
func (r *Room) Post(msg protocol.Message) error {
	if msg == nil {
		return errors.New("chat: nil message")
	}
	payload, err := protocol.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode message for %q: %w", r.name, err)
	}

	r.mu.Lock()
	dropped := r.appendAndBroadcastLocked(record{msg: msg, payload: payload})
	r.mu.Unlock()

	r.evict(dropped)
	return nil
}

// Members returns the member usernames in join order.
func (r *Room) Members() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// Contains reports whether username is currently a member.
func (r *Room) Contains(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.members[username]
	return ok
}

// Len returns the number of members.
func (r *Room) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// History returns the retained messages, oldest first.
func (r *Room) History() []protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]protocol.Message, len(r.history))
	for i, rec := range r.history {
		out[i] = rec.msg
	}
	return out
}

// refreshMembers re-broadcasts the user list, e.g. after a status change.
func (r *Room) refreshMembers() {
	r.mu.Lock()
	dropped := r.broadcastMembersLocked()
	r.mu.Unlock()

	r.evict(dropped)
}

func (r *Room) notice(content string) protocol.SystemNotice {
	return protocol.SystemNotice{
		Content:   content,
		Room:      r.name,
		Timestamp: protocol.Stamp(r.now()),
	}
}

func (r *Room) postLocked(msg protocol.Message) []departure {
	payload, err := protocol.Encode(msg)
	if err != nil {
		log.Printf("Error encoding message for room %q: %v", r.name, err)
		return nil
	}
	return r.appendAndBroadcastLocked(record{msg: msg, payload: payload})
}

func (r *Room) appendAndBroadcastLocked(rec record) []departure {
	if len(r.history) == r.limit {
		copy(r.history, r.history[1:])
		r.history = r.history[:r.limit-1]
	}
	r.history = append(r.history, rec)
	return r.broadcastLocked(rec.payload)
}

func (r *Room) broadcastMembersLocked() []departure {
	if len(r.order) == 0 {
		return nil
	}
	users := append([]string(nil), r.order...)
	payload, err := protocol.Encode(protocol.UserList{
		Users:    users,
		Statuses: r.obs.statusesOf(users),
	})
	if err != nil {
		log.Printf("Error encoding user list for room %q: %v", r.name, err)
		return nil
	}
	return r.broadcastLocked(payload)
}

// broadcastLocked enqueues payload to every member in join order and returns
// the members whose queues rejected it.
func (r *Room) broadcastLocked(payload []byte) []departure {
	var dropped []departure
	for _, name := range r.order {
		m := r.members[name]
		if !m.Enqueue(payload) {
			dropped = append(dropped, departure{username: name, member: m})
		}
	}
	return dropped
}

func (r *Room) evict(dropped []departure) {
	for _, d := range dropped {
		if r.leave(d.username, d.member) {
			log.Printf("Evicted %q from room %q: outbound queue full", d.username, r.name)
		}
	}
}

func removeName(names []string, target string) []string {
	for i, name := range names {
		if name == target {
			return append(names[:i], names[i+1:]...)
		}
	}
	return names
}
