package judging

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/DoyleJ11/hackathon-judging/internal/audit"
	"github.com/DoyleJ11/hackathon-judging/internal/config"
	"github.com/DoyleJ11/hackathon-judging/internal/confirm"
	"github.com/DoyleJ11/hackathon-judging/internal/directory"
	"github.com/DoyleJ11/hackathon-judging/internal/engine"
)

type fakeConfirmer struct {
	mu      sync.Mutex
	outcome confirm.Outcome
	err     error
	asked   []string
	panics  bool

	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *fakeConfirmer) Confirm(_ context.Context, operator, message string) (confirm.Outcome, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	// widen the window for overlapping callers
	time.Sleep(time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("confirmer exploded")
	}
	f.asked = append(f.asked, message)
	return f.outcome, f.err
}

func (f *fakeConfirmer) set(o confirm.Outcome) {
	f.mu.Lock()
	f.outcome = o
	f.mu.Unlock()
}

type fakeSink struct {
	mu   sync.Mutex
	recs []audit.Record
	err  error
}

func (s *fakeSink) Commit(_ context.Context, rec audit.Record, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return s.err
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

type notice struct {
	Channel string
	Text    string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notice
}

func (n *fakeNotifier) Notify(_ context.Context, a directory.Artifacts, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notice{a.TextChannel, text})
	return nil
}

type fixture struct {
	svc  *Service
	dir  *directory.Memory
	conf *fakeConfirmer
	sink *fakeSink
	note *fakeNotifier
}

func team(name string, tracks ...string) directory.Team {
	return directory.Team{
		Name: name, Tracks: tracks,
		TextChannel: name + "-text", VoiceChannel: name + "-vc", Role: name,
	}
}

func newFixture(t *testing.T, teams ...directory.Team) *fixture {
	t.Helper()
	ev := &config.Event{
		Tracks: []config.Track{{ID: "x", Name: "Track X", Order: 1}, {ID: "y", Name: "Track Y", Order: 2}},
		Rooms: []config.Room{
			{ID: "r1", DisplayName: "Room 1", Medium: config.MediumInPerson, Location: "Hall B", TextChannel: "r1-text", Tracks: []string{"x"}},
			{ID: "r2", DisplayName: "Online Room", Medium: config.MediumOnline, TextChannel: "r2-text"},
		},
		PublicTopic:  "public",
		PrivateTopic: "private",
	}
	if len(teams) == 0 {
		teams = []directory.Team{team("alpha"), team("beta"), team("gamma"), {Name: "ghost"}}
	}
	f := &fixture{
		dir:  directory.NewMemory(teams...),
		conf: &fakeConfirmer{outcome: confirm.Confirmed},
		sink: &fakeSink{},
		note: &fakeNotifier{},
	}
	f.svc = NewService(ev, f.dir, f.conf, f.sink, f.note, nil)
	return f
}

func (f *fixture) load(t *testing.T, p engine.Plan) {
	t.Helper()
	res := f.svc.Load(context.Background(), "op", p)
	require.True(t, res.OK, res.Reason)
}

func abg(current int) engine.Plan {
	return engine.Plan{"r1": {Teams: []string{"alpha", "beta", "gamma"}, Current: current}}
}

func req(room string) Request { return Request{Operator: "op", Room: room} }

func TestLoad_RoundTrip(t *testing.T) {
	f := newFixture(t)
	p := engine.Plan{
		"r1": {Teams: []string{"alpha", "beta"}, Current: 1},
		"r2": {Teams: []string{"gamma"}, Current: -1},
	}
	f.load(t, p)

	assert.Equal(t, p, f.svc.Export())
	require.Equal(t, 1, f.sink.count())
	assert.Equal(t, engine.OpLoad, f.sink.recs[0].Op)
	assert.ErrorIs(t, f.dir.SetTracks(context.Background(), "alpha", []string{"y"}), directory.ErrTracksLocked)
}

func TestLoad_RejectsInvalidPlan(t *testing.T) {
	f := newFixture(t)
	f.load(t, abg(-1))

	res := f.svc.Load(context.Background(), "op", engine.Plan{
		"r9": {Teams: []string{"nobody"}, Current: 4},
	})
	assert.False(t, res.OK)
	assert.Contains(t, res.Reason, "Judging was not started")
	assert.Contains(t, res.Reason, "r9")
	assert.Equal(t, abg(-1), f.svc.Export(), "previous queue stays active")
	assert.Len(t, f.conf.asked, 1, "only the first load asked for confirmation")
}

func TestOperations_BeforeLoad(t *testing.T) {
	f := newFixture(t)
	res := f.svc.Advance(context.Background(), req("r1"))
	assert.False(t, res.OK)
	assert.Contains(t, res.Reason, "has not started")

	_, err := f.svc.Status("", false)
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.Nil(t, f.svc.Export())
}

func TestScenario_AlphaBetaGamma(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.load(t, abg(-1))

	res := f.svc.Advance(ctx, req("r1"))
	require.True(t, res.OK, res.Reason)
	assert.Equal(t, 0, res.Snapshot["r1"].Current)

	res = f.svc.Ping(ctx, req("r1"))
	require.True(t, res.OK, res.Reason)
	require.Len(t, f.note.sent, 1)
	assert.Equal(t, "beta-text", f.note.sent[0].Channel)
	assert.Contains(t, f.note.sent[0].Text, "front desk")
	assert.Contains(t, res.Reason, "Hall B")

	res = f.svc.Advance(ctx, req("r1"))
	require.True(t, res.OK, res.Reason)
	assert.Equal(t, 1, res.Snapshot["r1"].Current)

	res = f.svc.Skip(ctx, req("r1"))
	assert.False(t, res.OK)
	assert.Equal(t, abg(1), f.svc.Export())

	res = f.svc.Advance(ctx, req("r1"))
	require.True(t, res.OK, res.Reason)
	assert.Equal(t, 2, res.Snapshot["r1"].Current)

	res = f.svc.Advance(ctx, req("r1"))
	require.True(t, res.OK, res.Reason)
	assert.Equal(t, 3, res.Snapshot["r1"].Current)
	assert.Contains(t, res.Reason, "All teams have now been judged")

	res = f.svc.Advance(ctx, req("r1"))
	assert.False(t, res.OK)
	assert.Equal(t, abg(3), f.svc.Export())

	// load + four advances; ping and rejected ops leave no record
	assert.Equal(t, 5, f.sink.count())
}

func TestUnconfirmed_LeavesQueueUnchanged(t *testing.T) {
	ops := map[string]func(*Service, context.Context, Request) Result{
		"advance": (*Service).Advance,
		"skip":    (*Service).Skip,
		"setnext": (*Service).SetNext,
		"ping":    (*Service).Ping,
	}
	outcomes := []struct {
		outcome confirm.Outcome
		reason  string
	}{
		{confirm.Cancelled, "not"},
		{confirm.TimedOut, "timed out waiting for confirmation"},
	}
	for name, op := range ops {
		for _, o := range outcomes {
			t.Run(name+"/"+o.outcome.String(), func(t *testing.T) {
				f := newFixture(t, team("alpha"), team("beta"), team("gamma"), team("delta"))
				f.load(t, engine.Plan{"r1": {Teams: []string{"alpha", "beta", "gamma", "delta"}, Current: 0}})
				before := f.svc.Export()
				f.conf.set(o.outcome)

				r := req("r1")
				r.Team = "delta"
				res := op(f.svc, context.Background(), r)

				assert.False(t, res.OK)
				assert.Contains(t, res.Reason, o.reason)
				assert.Equal(t, before, f.svc.Export())
				assert.Equal(t, before, res.Snapshot)
				assert.Equal(t, 1, f.sink.count())
				assert.Empty(t, f.note.sent)
			})
		}
	}
}

func TestSkip_ReordersAndNotifies(t *testing.T) {
	f := newFixture(t)
	f.load(t, abg(-1))

	res := f.svc.Skip(context.Background(), req("r1"))
	require.True(t, res.OK, res.Reason)
	assert.Equal(t, engine.PlanRoom{Teams: []string{"beta", "gamma", "alpha"}, Current: -1}, res.Snapshot["r1"])
	require.Len(t, f.note.sent, 1)
	assert.Equal(t, "alpha-text", f.note.sent[0].Channel)
	assert.Contains(t, f.conf.asked[1], "will be skipped")

	status, err := f.svc.Status("r1", false)
	require.NoError(t, err)
	assert.Contains(t, status, "(skipped x1)")
	public, err := f.svc.Status("r1", true)
	require.NoError(t, err)
	assert.NotContains(t, public, "skipped")
}

func TestSkip_LookupFailureStillCommits(t *testing.T) {
	f := newFixture(t)
	f.load(t, engine.Plan{"r1": {Teams: []string{"ghost", "alpha", "beta"}, Current: -1}})

	res := f.svc.Skip(context.Background(), req("r1"))
	assert.True(t, res.OK)
	assert.Contains(t, res.Reason, "handle them manually")
	assert.Equal(t, []string{"alpha", "beta", "ghost"}, f.svc.Export()["r1"].Teams)
	assert.Empty(t, f.note.sent)
}

func TestSetNext(t *testing.T) {
	f := newFixture(t, team("alpha"), team("beta"), team("gamma"), team("delta"))
	f.load(t, engine.Plan{"r1": {Teams: []string{"alpha", "beta", "gamma", "delta"}, Current: 0}})

	r := req("r1")
	r.Team = "delta"
	res := f.svc.SetNext(context.Background(), r)
	require.True(t, res.OK, res.Reason)
	assert.Equal(t, []string{"alpha", "delta", "beta", "gamma"}, res.Snapshot["r1"].Teams)
	assert.Equal(t, 0, res.Snapshot["r1"].Current)
	assert.Empty(t, f.note.sent, "set next does not ping")

	r.Team = "alpha"
	res = f.svc.SetNext(context.Background(), r)
	assert.False(t, res.OK)
	assert.Contains(t, res.Reason, engine.ErrTeamAlreadyCalled.Error())
}

func TestPing(t *testing.T) {
	tests := []struct {
		name     string
		plan     engine.Plan
		team     string
		wantOK   bool
		reason   string
		notified string
	}{
		{"explicit team", abg(0), "gamma", true, "gamma", "gamma-text"},
		{"unknown team", abg(0), "nobody", false, "does not exist", ""},
		{"final team presenting", abg(2), "", false, engine.ErrFinalTeamPresenting.Error(), ""},
		{"room done", abg(3), "", false, engine.ErrRoomDone.Error(), ""},
		{"missing artifacts", engine.Plan{"r1": {Teams: []string{"ghost"}, Current: -1}}, "", false, "handle them manually", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.load(t, tt.plan)
			r := req("r1")
			r.Team = tt.team

			res := f.svc.Ping(context.Background(), r)
			assert.Equal(t, tt.wantOK, res.OK, res.Reason)
			assert.Contains(t, res.Reason, tt.reason)
			if tt.notified != "" {
				require.Len(t, f.note.sent, 1)
				assert.Equal(t, tt.notified, f.note.sent[0].Channel)
			} else {
				assert.Empty(t, f.note.sent)
			}
			assert.Equal(t, tt.plan, f.svc.Export())
			assert.Equal(t, 1, f.sink.count())
		})
	}
}

func TestContextMismatch(t *testing.T) {
	f := newFixture(t)
	f.load(t, abg(-1))

	r := req("r1")
	r.Context = "r2"
	res := f.svc.Advance(context.Background(), r)
	assert.False(t, res.OK)
	assert.Contains(t, res.Reason, "does not match the channel")
	assert.Equal(t, abg(-1), f.svc.Export())
	assert.Len(t, f.conf.asked, 1, "rejected before confirmation")
}

func TestUnknownRoom(t *testing.T) {
	f := newFixture(t)
	f.load(t, abg(-1))

	res := f.svc.Advance(context.Background(), req("r2"))
	assert.False(t, res.OK)
	assert.Contains(t, res.Reason, "does not exist")

	_, err := f.svc.Status("r2", false)
	assert.ErrorIs(t, err, engine.ErrUnknownRoom)
}

func TestPanicIsRecovered(t *testing.T) {
	f := newFixture(t)
	f.load(t, abg(-1))

	f.conf.mu.Lock()
	f.conf.panics = true
	f.conf.mu.Unlock()

	res := f.svc.Advance(context.Background(), req("r1"))
	assert.False(t, res.OK)
	assert.Equal(t, "internal error", res.Reason)
	assert.Equal(t, abg(-1), res.Snapshot)

	// the op lock was released
	f.conf.mu.Lock()
	f.conf.panics = false
	f.conf.mu.Unlock()
	assert.True(t, f.svc.Advance(context.Background(), req("r1")).OK)
}

func TestConfirmerError(t *testing.T) {
	f := newFixture(t)
	f.load(t, abg(-1))
	f.conf.mu.Lock()
	f.conf.err = errors.New("operator offline")
	f.conf.mu.Unlock()

	res := f.svc.Advance(context.Background(), req("r1"))
	assert.False(t, res.OK)
	assert.Contains(t, res.Reason, "operator offline")
	assert.Equal(t, abg(-1), f.svc.Export())
}

func TestAuditFailureKeepsCommit(t *testing.T) {
	f := newFixture(t)
	f.load(t, abg(-1))
	f.sink.mu.Lock()
	f.sink.err = errors.New("disk full")
	f.sink.mu.Unlock()

	res := f.svc.Advance(context.Background(), req("r1"))
	assert.True(t, res.OK)
	assert.Contains(t, res.Reason, "disk full")
	assert.Equal(t, abg(0), f.svc.Export())
}

func TestConcurrentAdvances_Serialized(t *testing.T) {
	names := []string{"t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7", "t8", "t9"}
	var teams []directory.Team
	for _, n := range names {
		teams = append(teams, team(n))
	}
	f := newFixture(t, teams...)
	f.load(t, engine.Plan{"r1": {Teams: names, Current: -1}})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, f.svc.Advance(context.Background(), req("r1")).OK)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.conf.maxSeen.Load(), "confirmation windows never overlap")
	assert.Equal(t, 7, f.svc.Export()["r1"].Current)
	assert.Equal(t, 9, f.sink.count())
}

func TestPlan(t *testing.T) {
	f := newFixture(t,
		directory.Team{Name: "a", Tracks: []string{"x"}},
		directory.Team{Name: "b"},
		directory.Team{Name: "c", Tracks: []string{"y"}},
	)
	dir := t.TempDir()

	rep, err := f.svc.Plan(context.Background(), "first-match", dir)
	require.NoError(t, err)
	assert.Equal(t, engine.Plan{
		"r1": {Teams: []string{"a"}, Current: -1},
		"r2": {Teams: []string{"c"}, Current: -1},
	}, rep.Queue)
	assert.Equal(t, []string{"b"}, rep.Unchosen)
	assert.Empty(t, rep.Unassigned)

	data, err := os.ReadFile(rep.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "a -> r1 for track x")
	assert.Contains(t, string(data), "b: no declared tracks")

	_, err = f.svc.Plan(context.Background(), "round-robin", dir)
	assert.Error(t, err)
}

func TestPlan_LogsStructuredFields(t *testing.T) {
	f := newFixture(t,
		directory.Team{Name: "a", Tracks: []string{"x"}},
		directory.Team{Name: "b"},
	)
	core, logs := observer.New(zap.InfoLevel)
	f.svc.log = zap.New(core)

	_, err := f.svc.Plan(context.Background(), "first-match", t.TempDir())
	require.NoError(t, err)

	placed := logs.FilterMessage("a -> r1 for track x").All()
	require.Len(t, placed, 1)
	ctx := placed[0].ContextMap()
	assert.Equal(t, "a", ctx["team"])
	assert.Equal(t, "r1", ctx["room"])
	assert.Equal(t, "x", ctx["track"])

	skipped := logs.FilterField(zap.String("team", "b")).All()
	require.Len(t, skipped, 1)
	assert.NotContains(t, skipped[0].ContextMap(), "room")
}
