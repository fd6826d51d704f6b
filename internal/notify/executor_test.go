package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/santa-bot/internal/coordinator"
	"github.com/p-blackswan/santa-bot/internal/matcher"
	"github.com/p-blackswan/santa-bot/internal/store"
)

type call struct {
	method string
	target string
	ref    string
	text   string
}

type fakeTransport struct {
	calls   []call
	failFor map[string]bool
	seq     int
}

func (f *fakeTransport) next() string {
	f.seq++
	return fmt.Sprintf("ref-%d", f.seq)
}

func (f *fakeTransport) PostAnnouncement(_ context.Context, room, text string, _ []coordinator.Control) (string, error) {
	f.calls = append(f.calls, call{method: "post", target: room, text: text})
	if f.failFor[room] {
		return "", errors.New("channel_not_found")
	}
	return f.next(), nil
}

func (f *fakeTransport) UpdateAnnouncement(_ context.Context, room, ref, text string, _ []coordinator.Control) error {
	f.calls = append(f.calls, call{method: "update", target: room, ref: ref, text: text})
	return nil
}

func (f *fakeTransport) SendPrivate(_ context.Context, _, recipient, text, replyTo string, _ []coordinator.Control) (string, error) {
	f.calls = append(f.calls, call{method: "dm", target: recipient, ref: replyTo, text: text})
	if f.failFor[recipient] {
		return "", errors.New("cannot_dm_bot")
	}
	return f.next(), nil
}

func (f *fakeTransport) UpdatePrivate(_ context.Context, recipient, ref, text string) error {
	f.calls = append(f.calls, call{method: "dm_update", target: recipient, ref: ref, text: text})
	return nil
}

type fakeBinder struct {
	bindings []coordinator.Binding
	err      error
}

func (b *fakeBinder) Bind(_ context.Context, binding coordinator.Binding) error {
	b.bindings = append(b.bindings, binding)
	return b.err
}

type fakeRecorder struct{ ok, failed int }

func (r *fakeRecorder) Delivery(_ string, ok bool) {
	if ok {
		r.ok++
	} else {
		r.failed++
	}
}

func TestRunBindsDeliveredRefs(t *testing.T) {
	tr := &fakeTransport{}
	binder := &fakeBinder{}
	rec := &fakeRecorder{}
	e := NewExecutor(tr, binder, rec, zerolog.Nop())

	report := e.Run(context.Background(), []coordinator.Notification{
		{Kind: coordinator.KindPostAnnouncement, Room: "C1", Text: "hello",
			Bind: &coordinator.Binding{Kind: coordinator.BindAnnouncement, Room: "C1", SessionID: "s1"}},
		{Kind: coordinator.KindRenderAnnouncement, Room: "C1", Text: "rendered"},
		{Kind: coordinator.KindSendPrivate, Room: "C1", Recipient: "UA", Text: "match",
			Bind: &coordinator.Binding{Kind: coordinator.BindMatch, Room: "C1", SessionID: "s1", Participant: "UA"}},
	})

	assert.True(t, report.OK())
	assert.Equal(t, 3, report.Delivered)
	assert.Equal(t, 3, rec.ok)

	require.Len(t, tr.calls, 3)
	assert.Equal(t, call{method: "update", target: "C1", ref: "ref-1", text: "rendered"}, tr.calls[1])

	require.Len(t, binder.bindings, 2)
	assert.Equal(t, "ref-1", binder.bindings[0].Ref)
	assert.Equal(t, coordinator.BindAnnouncement, binder.bindings[0].Kind)
	assert.Equal(t, "ref-2", binder.bindings[1].Ref)
	assert.Equal(t, "UA", binder.bindings[1].Participant)
}

func TestRunContinuesAfterFailures(t *testing.T) {
	tr := &fakeTransport{failFor: map[string]bool{"UB": true}}
	binder := &fakeBinder{}
	rec := &fakeRecorder{}
	e := NewExecutor(tr, binder, rec, zerolog.Nop())

	report := e.Run(context.Background(), []coordinator.Notification{
		{Kind: coordinator.KindSendPrivate, Recipient: "UB", Text: "void",
			Bind: &coordinator.Binding{Kind: coordinator.BindMatch, Participant: "UB"}},
		{Kind: coordinator.KindSendPrivate, Recipient: "UA", Text: "void"},
		{Kind: coordinator.KindReplaceAnnouncement, Room: "C1", Text: "canceled"},
	})

	assert.False(t, report.OK())
	assert.Equal(t, 1, report.Delivered)
	require.Len(t, report.Failures, 2)
	assert.Equal(t, "UB", report.Failures[0].Recipient)
	assert.Contains(t, report.Failures[0].Error(), "UB")
	assert.Contains(t, report.Failures[1].Error(), "no announcement")
	assert.Empty(t, binder.bindings)
	assert.Equal(t, 2, rec.failed)
}

func TestRunClearsPrivateControls(t *testing.T) {
	tr := &fakeTransport{}
	e := NewExecutor(tr, nil, nil, zerolog.Nop())

	report := e.Run(context.Background(), []coordinator.Notification{
		{Kind: coordinator.KindClearPrivateControls, Recipient: "UA", Ref: "D1:1.1", Text: "left"},
		{Kind: "bogus"},
	})

	assert.Equal(t, 1, report.Delivered)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, []call{{method: "dm_update", target: "UA", ref: "D1:1.1", text: "left"}}, tr.calls)
}

func TestRunBindErrorIsNotADeliveryFailure(t *testing.T) {
	tr := &fakeTransport{}
	binder := &fakeBinder{err: errors.New("store down")}
	e := NewExecutor(tr, binder, nil, zerolog.Nop())

	report := e.Run(context.Background(), []coordinator.Notification{
		{Kind: coordinator.KindSendPrivate, Recipient: "UA", Text: "joined",
			Bind: &coordinator.Binding{Kind: coordinator.BindJoin, Participant: "UA"}},
	})
	assert.True(t, report.OK())
	assert.Len(t, binder.bindings, 1)
}

func TestRunWithoutTransportDropsPlan(t *testing.T) {
	binder := &fakeBinder{}
	e := NewExecutor(nil, binder, nil, zerolog.Nop())

	report := e.Run(context.Background(), []coordinator.Notification{
		{Kind: coordinator.KindPostAnnouncement, Room: "C1", Bind: &coordinator.Binding{Kind: coordinator.BindAnnouncement, Room: "C1"}},
	})
	assert.True(t, report.OK())
	assert.Zero(t, report.Delivered)
	assert.Empty(t, binder.bindings)
}

func (f *fakeTransport) lastUpdate(t *testing.T) call {
	t.Helper()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].method == "update" {
			return f.calls[i]
		}
	}
	t.Fatal("no announcement update")
	return call{}
}

func TestRunSkipsStaleAnnouncementEdits(t *testing.T) {
	tr := &fakeTransport{}
	rec := &fakeRecorder{}
	e := NewExecutor(tr, nil, rec, zerolog.Nop())
	ctx := context.Background()

	e.Run(ctx, []coordinator.Notification{{Kind: coordinator.KindPostAnnouncement, Room: "C1", SessionID: "s1", Seq: 1}})
	report := e.Run(ctx, []coordinator.Notification{
		{Kind: coordinator.KindRenderAnnouncement, Room: "C1", SessionID: "s1", Ref: "ref-1", Text: "started", Seq: 3},
	})
	require.True(t, report.OK())

	report = e.Run(ctx, []coordinator.Notification{
		{Kind: coordinator.KindRenderAnnouncement, Room: "C1", SessionID: "s1", Ref: "ref-1", Text: "open", Seq: 2},
		{Kind: coordinator.KindSendPrivate, Room: "C1", Recipient: "UA", Text: "joined"},
	})
	assert.True(t, report.OK())
	assert.Equal(t, 1, report.Superseded)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, "started", tr.lastUpdate(t).text)
	assert.Equal(t, 3, rec.ok)

	report = e.Run(ctx, []coordinator.Notification{
		{Kind: coordinator.KindRenderAnnouncement, Room: "C2", Ref: "ref-9", Text: "other room", Seq: 2},
	})
	assert.Zero(t, report.Superseded, "edits are ordered per room")
}

func TestRunFallsBackToKnownAnnouncement(t *testing.T) {
	tr := &fakeTransport{}
	e := NewExecutor(tr, nil, nil, zerolog.Nop())
	ctx := context.Background()

	e.Run(ctx, []coordinator.Notification{{Kind: coordinator.KindPostAnnouncement, Room: "C1", SessionID: "s1", Seq: 1}})

	report := e.Run(ctx, []coordinator.Notification{
		{Kind: coordinator.KindRenderAnnouncement, Room: "C1", SessionID: "s1", Text: "joined", Seq: 2},
	})
	require.True(t, report.OK())
	assert.Equal(t, "ref-1", tr.lastUpdate(t).ref)

	report = e.Run(ctx, []coordinator.Notification{
		{Kind: coordinator.KindRenderAnnouncement, Room: "C1", SessionID: "s2", Text: "joined", Seq: 3},
	})
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0].Error(), "no announcement")
}

func TestRunOutOfOrderJoinsKeepLatestAnnouncement(t *testing.T) {
	ctx := context.Background()
	drafter, err := matcher.New(matcher.StrategyCycle, nil)
	require.NoError(t, err)
	st := store.NewMemory()
	coord := coordinator.New(st, drafter, coordinator.DefaultRules(), zerolog.Nop())
	tr := &fakeTransport{}
	e := NewExecutor(tr, coord, nil, zerolog.Nop())

	created, err := coord.CreateSession(ctx, coordinator.Room{ID: "C1", Title: "general"}, coordinator.Actor{ID: "UC", DisplayName: "Carol"})
	require.NoError(t, err)
	joinA, err := coord.Join(ctx, "C1", coordinator.Actor{ID: "UA", DisplayName: "Alice"})
	require.NoError(t, err)
	joinB, err := coord.Join(ctx, "C1", coordinator.Actor{ID: "UB", DisplayName: "Bob"})
	require.NoError(t, err)

	require.True(t, e.Run(ctx, created.Plan).OK())
	require.True(t, e.Run(ctx, joinB.Plan).OK(), "render without a bound ref uses the posted announcement")
	late := e.Run(ctx, joinA.Plan)
	assert.True(t, late.OK())
	assert.Equal(t, 1, late.Superseded)
	assert.Equal(t, 1, late.Delivered, "the join confirmation is still sent")

	last := tr.lastUpdate(t)
	assert.Equal(t, "ref-1", last.ref)
	for _, name := range []string{"Carol", "Alice", "Bob"} {
		assert.Contains(t, last.text, name)
	}

	s, err := st.Get(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, 3, s.Count())
	assert.Equal(t, "ref-1", s.AnnouncementRef)
}

func TestReportUndelivered(t *testing.T) {
	r := Report{Failures: []Failure{
		{Kind: coordinator.KindSendPrivate, Recipient: "UA"},
		{Kind: coordinator.KindRenderAnnouncement, Room: "C1"},
		{Kind: coordinator.KindSendPrivate, Recipient: "UB"},
	}}
	assert.Equal(t, []string{"UA", "UB"}, r.Undelivered())
	assert.Empty(t, Report{}.Undelivered())
}
