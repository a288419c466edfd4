package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ymliu/convo/internal/auth"
	"github.com/ymliu/convo/internal/domain"
	"github.com/ymliu/convo/internal/hub"
)

// fakeConn scripts inbound frames and records everything sent back.
type fakeConn struct {
	mu           sync.Mutex
	inbound      []string
	idx          int
	sentJSON     []interface{}
	sentRaw      [][]byte
	policyReason string
	closed       int
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sentRaw = append(c.sentRaw, data)
	return nil
}

func (c *fakeConn) SendJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sentJSON = append(c.sentJSON, v)
	return nil
}

func (c *fakeConn) ReadText() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idx >= len(c.inbound) {
		return "", io.EOF
	}
	msg := c.inbound[c.idx]
	c.idx++
	return msg, nil
}

func (c *fakeConn) rawFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sentRaw))
	copy(out, c.sentRaw)
	return out
}

func (c *fakeConn) ClosePolicy(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policyReason = reason
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

// fakeGate admits a fixed identity or rejects everything.
type fakeGate struct {
	identity *domain.Identity
	err      error
}

func (g *fakeGate) Authenticate(ctx context.Context, credential string) (*domain.Identity, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.identity, nil
}

// recorder keeps a shared ordered trace of the side effects a session
// performs, so tests can assert ordering across collaborators.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) trace() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

type fakeStore struct {
	rec       *recorder
	recent    []domain.Message
	recentErr error
	createErr error
	created   []domain.Message
}

func (s *fakeStore) Create(ctx context.Context, msg *domain.Message) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.rec.add("persist")
	msg.ID = uint(len(s.created) + 1)
	msg.Timestamp = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.created = append(s.created, *msg)
	return nil
}

func (s *fakeStore) FetchRecent(ctx context.Context, roomID uint, limit int) ([]domain.Message, error) {
	if s.recentErr != nil {
		return nil, s.recentErr
	}
	if limit < len(s.recent) {
		return s.recent[:limit], nil
	}
	return s.recent, nil
}

func (s *fakeStore) FetchPage(ctx context.Context, roomID uint, skip, limit int) ([]domain.Message, error) {
	return s.recent, nil
}

type fakeRegistrar struct {
	rec *recorder
}

func (r *fakeRegistrar) Register(roomID, userID uint, s hub.Sender) {
	r.rec.add("register")
}

func (r *fakeRegistrar) Deregister(roomID, userID uint, s hub.Sender) {
	r.rec.add("deregister")
}

type fakeBroadcaster struct {
	rec  *recorder
	sent []*domain.Envelope
}

func (b *fakeBroadcaster) Broadcast(roomID uint, env *domain.Envelope) {
	b.rec.add("broadcast")
	b.sent = append(b.sent, env)
}

func alice() *domain.Identity {
	return &domain.Identity{UserID: 10, Username: "alice", Role: domain.RoleUser}
}

func newTestDeps(rec *recorder, store *fakeStore) (Deps, *fakeRegistrar, *fakeBroadcaster) {
	registrar := &fakeRegistrar{rec: rec}
	broadcaster := &fakeBroadcaster{rec: rec}
	deps := Deps{
		Gate:        &fakeGate{identity: alice()},
		Messages:    store,
		Registry:    registrar,
		Broadcaster: broadcaster,
		ReplayDepth: 10,
	}
	return deps, registrar, broadcaster
}

func TestSession_AuthFailureClosesWithPolicyViolation(t *testing.T) {
	rec := &recorder{}
	deps, _, broadcaster := newTestDeps(rec, &fakeStore{rec: rec})
	deps.Gate = &fakeGate{err: auth.ErrInvalidCredential}

	conn := &fakeConn{inbound: []string{"should never be read"}}
	sess := New(1, conn, deps)
	sess.Run(context.Background(), "bad-token")

	if conn.policyReason == "" {
		t.Error("expected a policy-violation close")
	}
	if conn.closed != 1 {
		t.Errorf("conn closed %d times, want 1", conn.closed)
	}
	for _, event := range rec.trace() {
		if event == "register" {
			t.Error("rejected connection must never reach the registry")
		}
	}
	if len(broadcaster.sent) != 0 {
		t.Error("rejected connection must not broadcast")
	}
	if sess.State() != StateClosed {
		t.Errorf("state = %d, want StateClosed", sess.State())
	}
}

func TestSession_PersistsBeforeBroadcast(t *testing.T) {
	rec := &recorder{}
	store := &fakeStore{rec: rec}
	deps, _, broadcaster := newTestDeps(rec, store)

	conn := &fakeConn{inbound: []string{"first", "second"}}
	sess := New(1, conn, deps)
	sess.Run(context.Background(), "token")

	want := []string{"register", "persist", "broadcast", "persist", "broadcast", "deregister"}
	got := rec.trace()
	if len(got) != len(want) {
		t.Fatalf("trace = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("trace = %v, want %v", got, want)
		}
	}

	if len(store.created) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(store.created))
	}
	if store.created[0].Content != "first" || store.created[0].UserID != 10 || store.created[0].RoomID != 1 {
		t.Errorf("unexpected persisted message: %+v", store.created[0])
	}

	if len(broadcaster.sent) != 2 {
		t.Fatalf("broadcast %d envelopes, want 2", len(broadcaster.sent))
	}
	env := broadcaster.sent[0]
	if env.Content != "first" || env.Sender != "alice" {
		t.Errorf("unexpected envelope: %+v", env)
	}
	// The envelope must carry the persisted timestamp.
	if env.Timestamp != store.created[0].Timestamp.Format(time.RFC3339Nano) {
		t.Errorf("envelope timestamp %q, want persisted %q",
			env.Timestamp, store.created[0].Timestamp.Format(time.RFC3339Nano))
	}
	if sess.State() != StateClosed {
		t.Errorf("state = %d, want StateClosed", sess.State())
	}
}

func TestSession_PersistenceFailureAbortsWithoutBroadcast(t *testing.T) {
	rec := &recorder{}
	store := &fakeStore{rec: rec, createErr: errors.New("database down")}
	deps, _, broadcaster := newTestDeps(rec, store)

	conn := &fakeConn{inbound: []string{"doomed", "never read"}}
	sess := New(1, conn, deps)
	sess.Run(context.Background(), "token")

	if len(broadcaster.sent) != 0 {
		t.Error("a message that failed to persist must not be broadcast")
	}
	if conn.idx != 1 {
		t.Errorf("read %d frames, want 1: the session must stop at the failed write", conn.idx)
	}

	// Cleanup still runs.
	got := rec.trace()
	if got[len(got)-1] != "deregister" {
		t.Errorf("trace = %v, want deregister last", got)
	}
	if conn.closed != 1 {
		t.Errorf("conn closed %d times, want 1", conn.closed)
	}
}

func TestSession_ReplaysHistoryChronologically(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := &recorder{}
	store := &fakeStore{
		rec: rec,
		// Newest first, as the store returns them.
		recent: []domain.Message{
			{ID: 3, Content: "third", Username: "carol", Timestamp: base.Add(2 * time.Second)},
			{ID: 2, Content: "second", Username: "bob", Timestamp: base.Add(time.Second)},
			{ID: 1, Content: "first", Username: "alice", Timestamp: base},
		},
	}
	deps, _, _ := newTestDeps(rec, store)

	conn := &fakeConn{}
	sess := New(1, conn, deps)
	sess.Run(context.Background(), "token")

	if len(conn.sentJSON) != 3 {
		t.Fatalf("replayed %d messages, want 3", len(conn.sentJSON))
	}
	wantOrder := []string{"first", "second", "third"}
	for i, v := range conn.sentJSON {
		env, ok := v.(*domain.Envelope)
		if !ok {
			t.Fatalf("replay payload %d is %T, want *domain.Envelope", i, v)
		}
		if env.Content != wantOrder[i] {
			t.Errorf("replay[%d].Content = %q, want %q", i, env.Content, wantOrder[i])
		}
	}
}

func TestSession_ReplayRespectsDepth(t *testing.T) {
	rec := &recorder{}
	var recent []domain.Message
	for i := 20; i > 0; i-- {
		recent = append(recent, domain.Message{ID: uint(i), Content: "m", Username: "alice"})
	}
	store := &fakeStore{rec: rec, recent: recent}
	deps, _, _ := newTestDeps(rec, store)
	deps.ReplayDepth = 10

	conn := &fakeConn{}
	sess := New(1, conn, deps)
	sess.Run(context.Background(), "token")

	if len(conn.sentJSON) != 10 {
		t.Fatalf("replayed %d messages, want 10", len(conn.sentJSON))
	}
}

func TestSession_EmptyRoomReplaysNothing(t *testing.T) {
	rec := &recorder{}
	deps, _, _ := newTestDeps(rec, &fakeStore{rec: rec})

	conn := &fakeConn{}
	sess := New(1, conn, deps)
	sess.Run(context.Background(), "token")

	if len(conn.sentJSON) != 0 {
		t.Errorf("replayed %d messages for an empty room, want 0", len(conn.sentJSON))
	}
}

func TestSession_ReplayFailureStillCleansUp(t *testing.T) {
	rec := &recorder{}
	store := &fakeStore{rec: rec, recentErr: errors.New("database down")}
	deps, _, _ := newTestDeps(rec, store)

	conn := &fakeConn{inbound: []string{"never read"}}
	sess := New(1, conn, deps)
	sess.Run(context.Background(), "token")

	if conn.idx != 0 {
		t.Error("session must not stream after a failed replay")
	}
	got := rec.trace()
	if len(got) == 0 || got[len(got)-1] != "deregister" {
		t.Errorf("trace = %v, want deregister last", got)
	}
}

// blockingConn holds its read loop open until release is closed, so tests
// can interleave two live sessions deterministically.
type blockingConn struct {
	fakeConn
	release chan struct{}
}

func (c *blockingConn) ReadText() (string, error) {
	<-c.release
	return "", io.EOF
}

func waitUntil(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// A reconnect replaces the registry entry; when the replaced session's
// read loop finally returns, its cleanup must not evict the live one.
func TestSession_StaleCleanupKeepsReconnectedRegistration(t *testing.T) {
	rec := &recorder{}
	store := &fakeStore{rec: rec}
	registry := hub.NewRegistry()
	broadcaster := hub.NewBroadcaster(registry)
	deps := Deps{
		Gate:        &fakeGate{identity: alice()},
		Messages:    store,
		Registry:    registry,
		Broadcaster: broadcaster,
		ReplayDepth: 10,
	}

	first := &blockingConn{release: make(chan struct{})}
	firstDone := make(chan struct{})
	go func() {
		New(1, first, deps).Run(context.Background(), "token")
		close(firstDone)
	}()
	waitUntil(t, func() bool { return registry.Registered(1, 10) },
		"first session never registered")

	second := &blockingConn{release: make(chan struct{})}
	secondDone := make(chan struct{})
	go func() {
		New(1, second, deps).Run(context.Background(), "token")
		close(secondDone)
	}()
	waitUntil(t, func() bool {
		p := registry.Participants(1)
		return len(p) == 1 && p[0] == hub.Sender(second)
	}, "second session never replaced the registration")

	// The replaced session disconnects after the reconnect.
	close(first.release)
	<-firstDone

	if !registry.Registered(1, 10) {
		t.Fatal("stale cleanup evicted the reconnected session's registration")
	}

	broadcaster.Broadcast(1, domain.NewEnvelope("still here", "alice", time.Now()))
	if got := len(second.rawFrames()); got != 1 {
		t.Errorf("reconnected session received %d broadcast frames, want 1", got)
	}

	close(second.release)
	<-secondDone
	if registry.Registered(1, 10) {
		t.Error("registration should be gone once the live session ends")
	}
}

// End to end through the real registry and broadcaster: a streamed message
// comes back on the sender's own connection.
func TestSession_EchoesOwnMessageBack(t *testing.T) {
	rec := &recorder{}
	store := &fakeStore{rec: rec}
	registry := hub.NewRegistry()
	deps := Deps{
		Gate:        &fakeGate{identity: alice()},
		Messages:    store,
		Registry:    registry,
		Broadcaster: hub.NewBroadcaster(registry),
		ReplayDepth: 10,
	}

	conn := &fakeConn{inbound: []string{"hello room"}}
	sess := New(7, conn, deps)
	sess.Run(context.Background(), "token")

	if len(conn.sentRaw) != 1 {
		t.Fatalf("sender received %d broadcast frames, want 1", len(conn.sentRaw))
	}
	var env domain.Envelope
	if err := json.Unmarshal(conn.sentRaw[0], &env); err != nil {
		t.Fatalf("broadcast frame is not valid JSON: %v", err)
	}
	if env.Content != "hello room" || env.Sender != "alice" {
		t.Errorf("echoed envelope = %+v", env)
	}
	if env.Timestamp == "" {
		t.Error("echoed envelope must carry a timestamp")
	}

	if registry.Count(7) != 0 {
		t.Error("registry must be empty after the session ends")
	}
}
