// Package registry tracks live connections of subjects and observers and
// fans messages out to the channels they belong to.
package registry

import (
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"

	types "github.com/okian/guardline/internal/domain/types"
	"github.com/okian/guardline/pkg/metrics"
)

const defaultShardCount = 32

// Role of a connection.
type Role string

// Roles.
const (
	RoleSubject  Role = "subject"
	RoleObserver Role = "observer"
)

// Channel name prefixes.
const (
	subjectPrefix    = "subject:"
	observerPrefix   = "observer:"
	monitoringPrefix = "monitoring:"
)

// SubjectChannel holds exactly the subject's own connections.
func SubjectChannel(subjectID string) string { return subjectPrefix + subjectID }

// ObserverChannel holds an observer's own connections.
func ObserverChannel(observerID string) string { return observerPrefix + observerID }

// MonitoringChannel holds every observer watching the subject.
func MonitoringChannel(subjectID string) string { return monitoringPrefix + subjectID }

// Conn is a live connection able to receive messages. Send must not block;
// it reports whether the message was accepted.
type Conn interface {
	ID() string
	Send(msg types.Message) bool
}

// Session describes what a connection joined as.
type Session struct {
	ConnectionID string `json:"connectionId"`
	Role         Role   `json:"role"`
	SubjectID    string `json:"subjectId"`
	ObserverID   string `json:"observerId,omitempty"`
}

// Channels returns the channels the session belongs to.
func (s Session) Channels() []string {
	switch s.Role {
	case RoleSubject:
		return []string{SubjectChannel(s.SubjectID)}
	case RoleObserver:
		return []string{ObserverChannel(s.ObserverID), MonitoringChannel(s.SubjectID)}
	default:
		return nil
	}
}

func (s Session) validate() error {
	switch s.Role {
	case RoleSubject:
		if s.SubjectID == "" {
			return fmt.Errorf("%w: subject id required", ErrInvalidSession)
		}
	case RoleObserver:
		if s.SubjectID == "" || s.ObserverID == "" {
			return fmt.Errorf("%w: observer and subject id required", ErrInvalidSession)
		}
	default:
		return fmt.Errorf("%w: unknown role %q", ErrInvalidSession, s.Role)
	}
	return nil
}

type member struct {
	conn     Conn
	session  Session
	channels map[string]struct{}
}

type connShard struct {
	mu      sync.Mutex
	members map[string]*member
}

type channelShard struct {
	mu       sync.RWMutex
	channels map[string]map[string]Conn
}

// Registry is a sharded connection and channel table. Membership mutations
// for one connection are serialized by its connection shard lock; channel
// shards take one writer at a time and publishers read a snapshot.
type Registry struct {
	conns    []*connShard
	channels []*channelShard
	count    atomic.Int64
}

// Option configures a Registry.
type Option func(*config)

type config struct {
	shards int
}

// WithShardCount sets the number of shards for both tables.
func WithShardCount(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.shards = n
		}
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	cfg := config{shards: defaultShardCount}
	for _, opt := range opts {
		opt(&cfg)
	}
	r := &Registry{
		conns:    make([]*connShard, cfg.shards),
		channels: make([]*channelShard, cfg.shards),
	}
	for i := 0; i < cfg.shards; i++ {
		r.conns[i] = &connShard{members: make(map[string]*member)}
		r.channels[i] = &channelShard{channels: make(map[string]map[string]Conn)}
	}
	return r
}

func shardIndex(key string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n)) //nolint:gosec // n is a small positive shard count
}

func (r *Registry) connShardFor(id string) *connShard { return r.conns[shardIndex(id, len(r.conns))] }

func (r *Registry) channelShardFor(ch string) *channelShard {
	return r.channels[shardIndex(ch, len(r.channels))]
}

// Join registers conn under session and adds it to the session's channels.
// Joining again with the same connection adds the new channels and replaces
// the stored session.
func (r *Registry) Join(conn Conn, session Session) error {
	if conn == nil {
		return ErrNilConn
	}
	session.ConnectionID = conn.ID()
	if err := session.validate(); err != nil {
		return err
	}

	cs := r.connShardFor(conn.ID())
	cs.mu.Lock()
	defer cs.mu.Unlock()

	m, ok := cs.members[conn.ID()]
	if !ok {
		m = &member{conn: conn, channels: make(map[string]struct{})}
		cs.members[conn.ID()] = m
		metrics.UpdateRegistryConnections(int(r.count.Add(1)))
	}
	m.session = session
	for _, ch := range session.Channels() {
		if _, in := m.channels[ch]; in {
			continue
		}
		m.channels[ch] = struct{}{}
		r.addToChannel(ch, conn)
	}
	return nil
}

func (r *Registry) addToChannel(ch string, conn Conn) {
	s := r.channelShardFor(ch)
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.channels[ch]
	if !ok {
		set = make(map[string]Conn)
		s.channels[ch] = set
	}
	set[conn.ID()] = conn
}

func (r *Registry) removeFromChannel(ch, connID string) {
	s := r.channelShardFor(ch)
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.channels[ch]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(s.channels, ch)
	}
}

// Leave removes connID from every channel. It returns the session the
// connection had joined with; unknown ids are a no-op returning false.
func (r *Registry) Leave(connID string) (Session, bool) {
	cs := r.connShardFor(connID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	m, ok := cs.members[connID]
	if !ok {
		return Session{}, false
	}
	delete(cs.members, connID)
	for ch := range m.channels {
		r.removeFromChannel(ch, connID)
	}
	metrics.UpdateRegistryConnections(int(r.count.Add(-1)))
	return m.session, true
}

// Session returns the session a connection joined with.
func (r *Registry) Session(connID string) (Session, bool) {
	cs := r.connShardFor(connID)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	m, ok := cs.members[connID]
	if !ok {
		return Session{}, false
	}
	return m.session, true
}

func (r *Registry) snapshot(ch string) []Conn {
	s := r.channelShardFor(ch)
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.channels[ch]
	if len(set) == 0 {
		return nil
	}
	out := make([]Conn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// Publish delivers msg to every connection in the channel at call time and
// returns how many accepted it. An empty channel is a silent no-op.
func (r *Registry) Publish(channel string, msg types.Message) int {
	return deliver(r.snapshot(channel), msg)
}

// NotifySubject publishes msg to the subject's own connections.
func (r *Registry) NotifySubject(subjectID string, msg types.Message) int {
	return r.Publish(SubjectChannel(subjectID), msg)
}

// NotifyMonitors publishes msg to every observer watching the subject.
func (r *Registry) NotifyMonitors(subjectID string, msg types.Message) int {
	return r.Publish(MonitoringChannel(subjectID), msg)
}

// NotifyObserver publishes msg to an observer's own connections.
func (r *Registry) NotifyObserver(observerID string, msg types.Message) int {
	return r.Publish(ObserverChannel(observerID), msg)
}

// Send delivers msg to a single connection.
func (r *Registry) Send(connID string, msg types.Message) bool {
	cs := r.connShardFor(connID)
	cs.mu.Lock()
	m, ok := cs.members[connID]
	cs.mu.Unlock()
	if !ok {
		metrics.RecordMessageDropped("unknown_conn")
		return false
	}
	return deliver([]Conn{m.conn}, msg) == 1
}

// Broadcast delivers msg to every registered connection.
func (r *Registry) Broadcast(msg types.Message) int {
	var all []Conn
	for _, cs := range r.conns {
		cs.mu.Lock()
		for _, m := range cs.members {
			all = append(all, m.conn)
		}
		cs.mu.Unlock()
	}
	return deliver(all, msg)
}

func deliver(conns []Conn, msg types.Message) int {
	delivered := 0
	for _, c := range conns {
		if c.Send(msg) {
			delivered++
		} else {
			metrics.RecordMessageDropped("backpressure")
		}
	}
	if len(conns) == 0 {
		metrics.RecordMessageDropped("no_listeners")
	}
	metrics.RecordMessagesPublished(msg.Type, delivered)
	return delivered
}

// Members returns the number of connections in a channel.
func (r *Registry) Members(channel string) int {
	s := r.channelShardFor(channel)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.channels[channel])
}

// Connections returns the number of registered connections.
func (r *Registry) Connections() int {
	return int(r.count.Load())
}
