package gateway

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/parse"
)

// Mock is an in-memory gateway used by tests and the local dry-run mode.
// Failure fields, when set, are returned by the matching operation.
type Mock struct {
	mu sync.Mutex

	nextID   int
	messages map[string]Message
	order    []MessageRef
	edits    map[string]int

	users       map[string]User
	roleHolders map[string][]string
	roles       map[string]Role
	memberRoles map[string]map[string]bool
	channels    map[string]Channel
	occupancy   map[string]int
	directs     []string

	SendErr   error
	EditErr   error
	FetchErr  error
	RoleErr   error
	DirectErr error
}

func NewMock() *Mock {
	return &Mock{
		messages:    make(map[string]Message),
		edits:       make(map[string]int),
		users:       make(map[string]User),
		roleHolders: make(map[string][]string),
		roles:       make(map[string]Role),
		memberRoles: make(map[string]map[string]bool),
		channels:    make(map[string]Channel),
		occupancy:   make(map[string]int),
	}
}

// AddUser makes a user resolvable by mention. Passing role IDs makes the
// user a holder of those roles.
func (m *Mock) AddUser(u User, roleIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	for _, r := range roleIDs {
		m.roleHolders[r] = append(m.roleHolders[r], u.ID)
	}
}

func (m *Mock) SendMessage(ctx context.Context, channelID string, msg Message) (MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return MessageRef{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return MessageRef{}, m.SendErr
	}
	m.nextID++
	ref := MessageRef{ChannelID: channelID, MessageID: "m" + strconv.Itoa(m.nextID)}
	m.messages[ref.MessageID] = msg
	m.order = append(m.order, ref)
	return ref, nil
}

func (m *Mock) EditMessage(ctx context.Context, ref MessageRef, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EditErr != nil {
		return m.EditErr
	}
	if _, ok := m.messages[ref.MessageID]; !ok {
		return ErrMessageNotFound
	}
	m.messages[ref.MessageID] = msg
	m.edits[ref.MessageID]++
	return nil
}

func (m *Mock) FetchMessage(ctx context.Context, ref MessageRef) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FetchErr != nil {
		return Message{}, m.FetchErr
	}
	msg, ok := m.messages[ref.MessageID]
	if !ok {
		return Message{}, ErrMessageNotFound
	}
	return msg, nil
}

// Sent returns every published message ref in send order.
func (m *Mock) Sent() []MessageRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MessageRef(nil), m.order...)
}

// Message returns the current content of a published message.
func (m *Mock) Message(ref MessageRef) (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[ref.MessageID]
	return msg, ok
}

// Edits reports how many times a message was edited.
func (m *Mock) Edits(ref MessageRef) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.edits[ref.MessageID]
}

// DeleteMessage simulates a message removed by a moderator.
func (m *Mock) DeleteMessage(ref MessageRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.messages, ref.MessageID)
}

func (m *Mock) ResolveMentions(ctx context.Context, _ string, mentions []parse.Mention) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool)
	var out []User
	add := func(id string) {
		u, ok := m.users[id]
		if !ok || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, u)
	}
	for _, mention := range mentions {
		switch mention.Kind {
		case parse.MentionUser:
			add(mention.ID)
		case parse.MentionRole:
			for _, id := range m.roleHolders[mention.ID] {
				add(id)
			}
		}
	}
	return out, nil
}

func (m *Mock) CreateRole(_ context.Context, _ string, name string, _ bool) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RoleErr != nil {
		return Role{}, m.RoleErr
	}
	m.nextID++
	r := Role{ID: "r" + strconv.Itoa(m.nextID), Name: name}
	m.roles[r.ID] = r
	return r, nil
}

func (m *Mock) DeleteRole(_ context.Context, _ string, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[roleID]; !ok {
		return fmt.Errorf("role %s not found", roleID)
	}
	delete(m.roles, roleID)
	for _, held := range m.memberRoles {
		delete(held, roleID)
	}
	return nil
}

func (m *Mock) AddMemberRole(_ context.Context, _ string, userID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.memberRoles[userID] == nil {
		m.memberRoles[userID] = make(map[string]bool)
	}
	m.memberRoles[userID][roleID] = true
	return nil
}

func (m *Mock) RemoveMemberRole(_ context.Context, _ string, userID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.memberRoles[userID], roleID)
	return nil
}

// HasRole reports whether a user currently holds a role.
func (m *Mock) HasRole(userID, roleID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.memberRoles[userID][roleID]
}

// RoleExists reports whether a role was created and not deleted.
func (m *Mock) RoleExists(roleID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.roles[roleID]
	return ok
}

func (m *Mock) CreateVoiceChannel(_ context.Context, _ string, name, _ string) (Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	ch := Channel{ID: "c" + strconv.Itoa(m.nextID), Name: name}
	m.channels[ch.ID] = ch
	return ch, nil
}

func (m *Mock) DeleteChannel(_ context.Context, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[channelID]; !ok {
		return ErrChannelNotFound
	}
	delete(m.channels, channelID)
	delete(m.occupancy, channelID)
	return nil
}

// ChannelExists reports whether a channel was created and not deleted.
func (m *Mock) ChannelExists(channelID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.channels[channelID]
	return ok
}

// SetOccupancy sets how many users are connected to a voice channel.
func (m *Mock) SetOccupancy(channelID string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.occupancy[channelID] = n
}

func (m *Mock) VoiceOccupancy(_ context.Context, _ string, channelID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[channelID]; !ok {
		return 0, ErrChannelNotFound
	}
	return m.occupancy[channelID], nil
}

func (m *Mock) SendDirect(_ context.Context, userID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DirectErr != nil {
		return m.DirectErr
	}
	m.directs = append(m.directs, userID+": "+content)
	return nil
}

// Directs returns the direct messages sent so far as "userID: content".
func (m *Mock) Directs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.directs...)
}
