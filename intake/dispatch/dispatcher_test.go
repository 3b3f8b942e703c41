package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/m3rciful/enrollbot/core/telegram/state"
	"github.com/m3rciful/enrollbot/intake/catalog"
	"github.com/m3rciful/enrollbot/intake/flow"
	"github.com/m3rciful/enrollbot/intake/submission"
)

type memorySink struct {
	mu   sync.Mutex
	subs []flow.Submission
	err  error
}

func (s *memorySink) Append(_ context.Context, sub flow.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return &submission.WriteError{Sink: "memory", Err: s.err}
	}
	s.subs = append(s.subs, sub)
	return nil
}

type recorder struct {
	mu      sync.Mutex
	replies []flow.Reply
}

func (r *recorder) Send(_ context.Context, reply flow.Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, reply)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.replies)
}

type fixture struct {
	d     *Dispatcher
	store *state.MemoryStore[flow.Session]
	sink  *memorySink
	out   *recorder
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	m, err := flow.NewMachine(cat, flow.Options{
		DefaultLanguage: "ru",
		Courses:         []string{"Python", "LEGO WeDo", "MINDSTORMS", "Arduino"},
	})
	if err != nil {
		t.Fatalf("machine: %v", err)
	}
	f := &fixture{
		store: state.NewMemoryStore(flow.NewSession, flow.Session.Clone),
		sink:  &memorySink{},
		out:   &recorder{},
	}
	opts := Options{Store: f.store, Machine: m, Sink: f.sink, Transport: f.out, Workers: 4}
	if mutate != nil {
		mutate(&opts)
	}
	f.d, err = New(opts)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	t.Cleanup(f.d.Close)
	return f
}

func traversal(uid int64, name, age, course, phone string) []flow.Event {
	return []flow.Event{
		{UserID: uid, Kind: flow.KindCommand, Payload: "/start"},
		{UserID: uid, Kind: flow.KindCallback, Payload: "lang_ru"},
		{UserID: uid, Kind: flow.KindText, Payload: "📝 Записаться"},
		{UserID: uid, Kind: flow.KindText, Payload: name},
		{UserID: uid, Kind: flow.KindText, Payload: age},
		{UserID: uid, Kind: flow.KindText, Payload: course},
		{UserID: uid, Kind: flow.KindText, Payload: phone},
	}
}

func TestHandleRegistrationScenario(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	for _, ev := range traversal(1, "Ivan", "30", "Python", "+77001234567") {
		if err := f.d.Handle(ctx, ev); err != nil {
			t.Fatalf("handle %+v: %v", ev, err)
		}
	}

	if len(f.sink.subs) != 1 {
		t.Fatalf("submissions = %d, want 1", len(f.sink.subs))
	}
	want := flow.Submission{UserID: 1, Name: "Ivan", Age: "30", Course: "Python", Phone: "+77001234567", Language: "ru"}
	if f.sink.subs[0] != want {
		t.Fatalf("submission = %+v, want %+v", f.sink.subs[0], want)
	}
	snap, ok := f.store.Get(1)
	if !ok || snap.Value.State != flow.StateIdle || len(snap.Value.Fields) != 0 || snap.Value.Language != "ru" {
		t.Fatalf("final session = %+v", snap.Value)
	}
	if f.out.count() < 7 {
		t.Fatalf("replies = %d, every event must be answered", f.out.count())
	}
}

func TestSubmitConcurrentUsers(t *testing.T) {
	f := newFixture(t, nil)
	const users = 24
	ctx := context.Background()

	var wg sync.WaitGroup
	for u := int64(1); u <= users; u++ {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()
			for _, ev := range traversal(uid, fmt.Sprintf("name-%d", uid), fmt.Sprint(uid), "Arduino", fmt.Sprintf("phone-%d", uid)) {
				if err := f.d.Submit(ctx, ev); err != nil {
					t.Errorf("submit: %v", err)
					return
				}
			}
		}(u)
	}
	wg.Wait()
	f.d.Close()

	if len(f.sink.subs) != users {
		t.Fatalf("submissions = %d, want %d", len(f.sink.subs), users)
	}
	for _, sub := range f.sink.subs {
		if sub.Name != fmt.Sprintf("name-%d", sub.UserID) ||
			sub.Age != fmt.Sprint(sub.UserID) ||
			sub.Phone != fmt.Sprintf("phone-%d", sub.UserID) {
			t.Fatalf("fields of different users interleaved: %+v", sub)
		}
	}
	if err := f.d.Submit(ctx, flow.Event{UserID: 1, Kind: flow.KindText}); !errors.Is(err, ErrClosed) {
		t.Fatalf("submit after close = %v", err)
	}
}

func TestHandleSurfacesWriteErrorAfterCommit(t *testing.T) {
	f := newFixture(t, nil)
	f.sink.err = errors.New("disk full")
	ctx := context.Background()

	events := traversal(5, "Aru", "9", "MINDSTORMS", "+7700")
	for _, ev := range events[:len(events)-1] {
		if err := f.d.Handle(ctx, ev); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	before := f.out.count()
	err := f.d.Handle(ctx, events[len(events)-1])

	var we *submission.WriteError
	if !errors.As(err, &we) || we.Code() != "WRITE_ERROR" {
		t.Fatalf("expected WriteError, got %v", err)
	}
	snap, _ := f.store.Get(5)
	if snap.Value.State != flow.StateIdle || len(snap.Value.Fields) != 0 {
		t.Fatalf("session must stay committed as idle: %+v", snap.Value)
	}
	if f.out.count() <= before {
		t.Fatal("completion reply must still be sent")
	}
}

func TestHandleUnknownStoredLanguage(t *testing.T) {
	f := newFixture(t, nil)
	snap := f.store.GetOrCreate(3)
	s := snap.Value.Clone()
	s.Language = "de"
	if err := f.store.Commit(3, snap.Version, s); err != nil {
		t.Fatalf("seed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := f.d.Handle(context.Background(), flow.Event{UserID: 3, Kind: flow.KindText, Payload: "hello"}); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	got, _ := f.store.Get(3)
	if got.Value.Language != "de" {
		t.Fatalf("stored language changed to %q", got.Value.Language)
	}
	if f.out.count() != 3 {
		t.Fatalf("replies = %d, each attempt must be answered", f.out.count())
	}
}

type brokenStore struct {
	*state.MemoryStore[flow.Session]
	mu     sync.Mutex
	stale  int
	always error
}

func (b *brokenStore) Commit(userID int64, version uint64, value flow.Session) error {
	b.mu.Lock()
	if b.always != nil {
		b.mu.Unlock()
		return b.always
	}
	if b.stale > 0 {
		b.stale--
		b.mu.Unlock()
		return state.ErrStaleSession
	}
	b.mu.Unlock()
	return b.MemoryStore.Commit(userID, version, value)
}

func TestHandleNoSideEffectsWhenCommitFails(t *testing.T) {
	store := &brokenStore{
		MemoryStore: state.NewMemoryStore(flow.NewSession, flow.Session.Clone),
		always:      errors.New("store offline"),
	}
	f := newFixture(t, func(o *Options) { o.Store = store })

	err := f.d.Handle(context.Background(), flow.Event{UserID: 1, Kind: flow.KindCommand, Payload: "/start"})
	if err == nil {
		t.Fatal("expected commit error")
	}
	if f.out.count() != 0 || len(f.sink.subs) != 0 {
		t.Fatal("no side effects may run before a successful commit")
	}
}

func TestHandleRetriesStaleCommit(t *testing.T) {
	store := &brokenStore{
		MemoryStore: state.NewMemoryStore(flow.NewSession, flow.Session.Clone),
		stale:       2,
	}
	f := newFixture(t, func(o *Options) { o.Store = store })

	if err := f.d.Handle(context.Background(), flow.Event{UserID: 1, Kind: flow.KindCallback, Payload: "lang_kz"}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	snap, _ := store.Get(1)
	if snap.Value.Language != "kz" {
		t.Fatalf("language = %q", snap.Value.Language)
	}
	if f.out.count() != 1 {
		t.Fatalf("replies = %d, retries must not duplicate sends", f.out.count())
	}

	store.stale = 10
	err := f.d.Handle(context.Background(), flow.Event{UserID: 1, Kind: flow.KindText, Payload: "x"})
	if !errors.Is(err, state.ErrStaleSession) {
		t.Fatalf("expected stale error after retries, got %v", err)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error for empty options")
	}
}

func TestReasonCode(t *testing.T) {
	if got := reasonCode(fmt.Errorf("x: %w", catalog.ErrUnknownLanguage)); got != "unknown_language" {
		t.Fatalf("reason = %q", got)
	}
	if got := reasonCode(fmt.Errorf("x: %w", flow.ErrInvalidCourse)); got != "invalid_course" {
		t.Fatalf("reason = %q", got)
	}
	if got := reasonCode(errors.New("other")); got != "rejected" {
		t.Fatalf("reason = %q", got)
	}
}

type panicTransport struct{ recorder }

func (p *panicTransport) Send(ctx context.Context, reply flow.Reply) error {
	if reply.UserID == 13 {
		panic("transport exploded")
	}
	return p.recorder.Send(ctx, reply)
}

func TestWorkerSurvivesPanic(t *testing.T) {
	out := &panicTransport{}
	f := newFixture(t, func(o *Options) { o.Transport = out; o.Workers = 1 })
	ctx := context.Background()

	if err := f.d.Submit(ctx, flow.Event{UserID: 13, Kind: flow.KindCommand, Payload: "/start"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := f.d.Submit(ctx, flow.Event{UserID: 14, Kind: flow.KindCommand, Payload: "/start"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	f.d.Close()
	if out.count() != 1 {
		t.Fatalf("replies = %d, the worker must keep serving after a panic", out.count())
	}
}
