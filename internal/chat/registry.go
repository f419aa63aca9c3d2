package chat

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Tyrowin/roomchat/internal/presence"
	"github.com/Tyrowin/roomchat/internal/protocol"
)

// RoomConfig names a room created when the registry starts.
type RoomConfig struct {
	Name  string `mapstructure:"name"`
	Topic string `mapstructure:"topic"`
}

// DefaultRooms are created by NewRegistry unless WithRooms overrides them.
var DefaultRooms = []RoomConfig{
	{Name: "General", Topic: "Welcome to the general discussion room"},
	{Name: "Random", Topic: "For random discussions"},
	{Name: "Work", Topic: "Work-related discussions"},
	{Name: "Social", Topic: "Social chat room"},
}

// RoomInfo is a point-in-time summary of a room.
type RoomInfo struct {
	Name    string `json:"name"`
	Topic   string `json:"topic"`
	Members int    `json:"members"`
}

// Option configures a Registry.
type Option func(*Registry)

// WithHistoryLimit sets how many messages every room retains.
func WithHistoryLimit(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.historyLimit = n
		}
	}
}

// WithClock replaces the clock used to stamp broadcast messages.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRooms replaces the rooms created at startup.
func WithRooms(rooms []RoomConfig) Option {
	return func(r *Registry) {
		r.seed = append([]RoomConfig(nil), rooms...)
	}
}

// WithPresence shares an existing tracker instead of creating a new one.
func WithPresence(t *presence.Tracker) Option {
	return func(r *Registry) {
		if t != nil {
			r.presence = t
		}
	}
}

// Registry owns every room and the process-wide presence tracker. It is the
// only place rooms are created, and it routes inbound payloads to them.
//
// Lock order is room, then registry, then tracker. The registry never takes a
// room lock while holding its own.
type Registry struct {
	presence     *presence.Tracker
	now          func() time.Time
	historyLimit int
	seed         []RoomConfig

	mu          sync.RWMutex
	rooms       map[string]*Room
	memberships map[string]map[string]struct{}
}

// NewRegistry builds a registry with the default rooms already created.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		presence:     presence.NewTracker(),
		now:          time.Now,
		historyLimit: DefaultHistoryLimit,
		seed:         DefaultRooms,
		rooms:        make(map[string]*Room),
		memberships:  make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, rc := range r.seed {
		if rc.Name == "" {
			continue
		}
		if _, exists := r.rooms[rc.Name]; !exists {
			r.rooms[rc.Name] = newRoom(rc.Name, rc.Topic, r.historyLimit, r.now, r)
		}
	}
	return r
}

// Presence exposes the tracker shared by all rooms.
func (r *Registry) Presence() *presence.Tracker {
	return r.presence
}

// Room looks up a room without creating it.
func (r *Registry) Room(name string) (*Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[name]
	return room, ok
}

// Rooms summarizes every room, sorted by name.
func (r *Registry) Rooms() []RoomInfo {
	r.mu.RLock()
	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.mu.RUnlock()

	infos := make([]RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		infos = append(infos, RoomInfo{Name: room.Name(), Topic: room.Topic(), Members: room.Len()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// roomFor returns the named room, creating it with an empty topic on first
// use. This is the only implicit creation path.
func (r *Registry) roomFor(name string) *Room {
	r.mu.RLock()
	room, ok := r.rooms[name]
	r.mu.RUnlock()
	if ok {
		return room
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok = r.rooms[name]; ok {
		return room
	}
	room = newRoom(name, "", r.historyLimit, r.now, r)
	r.rooms[name] = room
	return room
}

// Connect joins m to roomName as username and marks the user Online.
func (r *Registry) Connect(m Member, username, roomName string) error {
	if username == "" || roomName == "" {
		return ErrInvalidName
	}

	room := r.roomFor(roomName)
	prior := r.presence.StatusOf(username)
	if err := room.Join(username, m); err != nil {
		if errors.Is(err, ErrDuplicateMember) {
			return fmt.Errorf("%w: %w", ErrRoomJoinConflict, err)
		}
		return err
	}

	// The user kept a custom status in other rooms; those lists now need the
	// Online label the join just applied.
	if prior != presence.StatusUnknown && prior != presence.StatusOnline {
		r.ripple(username, roomName)
	}
	return nil
}

// Disconnect removes username from roomName. Unknown rooms and absent users
// are ignored.
func (r *Registry) Disconnect(username, roomName string) {
	if room, ok := r.Room(roomName); ok {
		room.Leave(username)
	}
}

// DisconnectMember is Disconnect for a specific connection: it does nothing
// if username has since been re-bound to a different member.
func (r *Registry) DisconnectMember(m Member, username, roomName string) {
	if room, ok := r.Room(roomName); ok {
		room.leave(username, m)
	}
}

// SetStatus updates the presence of a connected user and re-broadcasts the
// user list of every room the user is in.
func (r *Registry) SetStatus(username, status string) (string, error) {
	r.mu.Lock()
	if len(r.memberships[username]) == 0 {
		r.mu.Unlock()
		return "", fmt.Errorf("%w: %q", ErrNotMember, username)
	}
	prior, _ := r.presence.SetStatus(username, status)
	r.mu.Unlock()

	r.ripple(username, "")
	return prior, nil
}

// Dispatch decodes one inbound payload from username's connection to
// roomName and applies it.
func (r *Registry) Dispatch(raw []byte, username, roomName string) error {
	in, err := protocol.Decode(raw)
	if err != nil {
		return err
	}

	room, ok := r.Room(roomName)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRoom, roomName)
	}
	if !room.Contains(username) {
		return fmt.Errorf("%w: %q in %q", ErrNotMember, username, roomName)
	}

	switch req := in.(type) {
	case protocol.StatusRequest:
		_, err := r.SetStatus(username, req.Status)
		return err
	case protocol.ChatRequest:
		if req.Room != "" && req.Room != roomName {
			return fmt.Errorf("%w: declared %q, joined %q", ErrRoomMismatch, req.Room, roomName)
		}
		return room.Post(protocol.Chat{
			Username:  username,
			Content:   req.Content,
			Room:      roomName,
			Timestamp: protocol.Stamp(r.now()),
		})
	default:
		return fmt.Errorf("%w: unhandled %T", ErrMalformedPayload, in)
	}
}

// RoomsOf returns the rooms username is joined to, sorted by name.
func (r *Registry) RoomsOf(username string) []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.memberships[username]))
	for name := range r.memberships[username] {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// ripple refreshes the user list of every room holding username except
// skip. Rooms are visited one at a time in name order.
func (r *Registry) ripple(username, skip string) {
	for _, name := range r.RoomsOf(username) {
		if name == skip {
			continue
		}
		if room, ok := r.Room(name); ok {
			room.refreshMembers()
		}
	}
}

func (r *Registry) memberJoined(room, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.memberships[username]
	if !ok {
		set = make(map[string]struct{})
		r.memberships[username] = set
	}
	set[room] = struct{}{}
	r.presence.SetStatus(username, presence.StatusOnline)
}

func (r *Registry) memberLeft(room, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.memberships[username]
	delete(set, room)
	if len(set) == 0 {
		delete(r.memberships, username)
		r.presence.ClearStatus(username)
	}
}

func (r *Registry) statusesOf(usernames []string) map[string]string {
	return r.presence.StatusesOf(usernames)
}
