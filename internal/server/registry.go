// Package server keeps per-room message history and membership in the
// Registry. The registry is owned by a single Hub and is never touched from
// any other goroutine, so it carries no locks.
package server

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// DefaultHistoryLimit is the number of messages retained per room.
const DefaultHistoryLimit = 50

// Payload validation errors.
var (
	ErrMissingRoom     = errors.New("room is required")
	ErrMissingUsername = errors.New("username is required")
	ErrMissingContent  = errors.New("content is required")
)

// Registry maps room names to their bounded history and member usernames.
type Registry struct {
	history map[string][]Message
	members map[string]map[string]struct{}
	limit   int
	now     func() time.Time
}

// NewRegistry returns an empty registry keeping at most limit messages per
// room. A non-positive limit selects DefaultHistoryLimit.
func NewRegistry(limit int) *Registry {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Registry{
		history: make(map[string][]Message),
		members: make(map[string]map[string]struct{}),
		limit:   limit,
		now:     time.Now,
	}
}

// Join adds username to room, creating the room on first use. It returns the
// history as it was before the join and the join notice, which has already
// been appended.
func (r *Registry) Join(room, username string) ([]Message, Message, error) {
	if err := validateJoin(room, username); err != nil {
		return nil, Message{}, err
	}

	if _, ok := r.history[room]; !ok {
		r.history[room] = make([]Message, 0, r.limit)
	}
	if _, ok := r.members[room]; !ok {
		r.members[room] = make(map[string]struct{})
	}
	r.members[room][username] = struct{}{}

	snapshot := append([]Message(nil), r.history[room]...)
	if snapshot == nil {
		snapshot = []Message{}
	}

	notice := r.newMessage(room, SystemUsername, username+" joined the room")
	r.appendMessage(notice)
	return snapshot, notice, nil
}

// Post builds a message for room. The message is stored only if the room
// already has a history; stored reports whether it was.
func (r *Registry) Post(room, username, content string) (msg Message, stored bool, err error) {
	if err := validatePost(room, username, content); err != nil {
		return Message{}, false, err
	}

	msg = r.newMessage(room, username, content)
	return msg, r.appendMessage(msg), nil
}

// Leave removes username from room. When the room has a history the leave
// notice is appended and returned with announced set.
func (r *Registry) Leave(room, username string) (notice Message, announced bool) {
	if set, ok := r.members[room]; ok {
		delete(set, username)
	}
	if _, ok := r.history[room]; !ok {
		return Message{}, false
	}

	notice = r.newMessage(room, SystemUsername, username+" left the room")
	r.appendMessage(notice)
	return notice, true
}

// History returns a copy of the room's messages, oldest first.
func (r *Registry) History(room string) ([]Message, bool) {
	messages, ok := r.history[room]
	if !ok {
		return nil, false
	}
	return append([]Message(nil), messages...), true
}

// Members returns the sorted usernames present in room.
func (r *Registry) Members(room string) []string {
	set := r.members[room]
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasMember reports whether username is in room's membership set.
func (r *Registry) HasMember(room, username string) bool {
	_, ok := r.members[room][username]
	return ok
}

// Rooms returns the number of rooms created so far.
func (r *Registry) Rooms() int {
	return len(r.history)
}

func validateJoin(room, username string) error {
	switch {
	case room == "":
		return fmt.Errorf("join: %w", ErrMissingRoom)
	case username == "":
		return fmt.Errorf("join: %w", ErrMissingUsername)
	}
	return nil
}

func validatePost(room, username, content string) error {
	switch {
	case room == "":
		return fmt.Errorf("send: %w", ErrMissingRoom)
	case username == "":
		return fmt.Errorf("send: %w", ErrMissingUsername)
	case content == "":
		return fmt.Errorf("send: %w", ErrMissingContent)
	}
	return nil
}

func (r *Registry) newMessage(room, username, content string) Message {
	ts := r.now()
	return Message{
		ID:        strconv.FormatInt(ts.UnixMilli(), 10),
		Room:      room,
		Username:  username,
		Content:   content,
		Timestamp: ts,
	}
}

// appendMessage stores msg in its room, evicting the oldest entry once the
// limit is exceeded. Rooms without a history are left alone.
func (r *Registry) appendMessage(msg Message) bool {
	messages, ok := r.history[msg.Room]
	if !ok {
		return false
	}
	messages = append(messages, msg)
	if len(messages) > r.limit {
		messages = messages[len(messages)-r.limit:]
	}
	r.history[msg.Room] = messages
	return true
}
