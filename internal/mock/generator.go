// Package mock drives the push server with synthetic switchboard traffic.
package mock

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/phonelog/liveview/internal/calls"
)

// Refresher pushes the store's current state to clients.
type Refresher interface {
	Refresh() error
}

type pattern string

const (
	patternAnswered pattern = "answered"
	patternNoAnswer pattern = "no_answer"
	patternBusy     pattern = "busy"
	patternInvalid  pattern = "invalid"
	patternOutgoing pattern = "outgoing"
)

type mockCall struct {
	state   *calls.Session
	pattern pattern
	age     int
	// answerAt and endAt are ticks after the call started.
	answerAt int
	endAt    int
}

type agent struct {
	name  string
	desk  string
	phone string
}

var (
	agents = []agent{
		{"Kari Nordmann", "Desk 3", "4722000003"},
		{"Ola Hansen", "Desk 7", "4722000007"},
		{"Ingrid Berg", "Home office", "4790000017"},
	}
	callers = []string{
		"4790000000", "4741234567", "46701234567", "4531234567", "447700900123", "4799887766",
	}
	services = []struct{ name, number string }{
		{"Support", "4722000100"},
		{"Sales", "4722000200"},
	}
	patterns = []pattern{patternAnswered, patternNoAnswer, patternAnswered, patternBusy, patternOutgoing, patternInvalid}
)

// Generator starts, answers and hangs up synthetic calls on a fixed tick.
type Generator struct {
	store     *calls.Store
	refresher Refresher
	interval  time.Duration
	maxCalls  int
	clock     clock.Clock
	rng       *rand.Rand
	log       zerolog.Logger

	calls []*mockCall
	seq   int
	tick  int
}

func NewGenerator(store *calls.Store, refresher Refresher, interval time.Duration, maxCalls int, log zerolog.Logger) *Generator {
	return &Generator{
		store:     store,
		refresher: refresher,
		interval:  interval,
		maxCalls:  maxCalls,
		clock:     clock.New(),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		log:       log.With().Str("component", "mock").Logger(),
	}
}

// Start seeds a few finished calls and runs the generator until ctx ends.
func (g *Generator) Start(ctx context.Context) {
	now := g.clock.Now()
	for i, p := range []pattern{patternAnswered, patternNoAnswer, patternInvalid} {
		cs := g.newCall(p, now.Add(-time.Duration(10-i)*time.Minute))
		g.finish(cs, cs.state.StartedAt.Add(time.Duration(40+i*20)*time.Second))
		g.store.Update(cs.state)
	}
	g.publish()

	go g.run(ctx)
}

func (g *Generator) run(ctx context.Context) {
	ticker := g.clock.Ticker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Step()
		}
	}
}

// Step advances every active call by one tick, maybe starts a new one, and
// publishes the result.
func (g *Generator) Step() {
	g.tick++
	now := g.clock.Now()

	active := g.calls[:0]
	for _, mc := range g.calls {
		g.advance(mc, now)
		g.store.Update(mc.state)
		if mc.state.Active() {
			active = append(active, mc)
		}
	}
	g.calls = active

	if g.tick%2 == 1 || len(g.calls) == 0 {
		mc := g.newCall(patterns[g.seq%len(patterns)], now)
		g.calls = append(g.calls, mc)
		g.store.Update(mc.state)
	}

	g.store.Prune(g.maxCalls)
	g.publish()
}

func (g *Generator) publish() {
	if err := g.refresher.Refresh(); err != nil {
		g.log.Error().Err(err).Msg("refresh failed")
	}
}

func (g *Generator) newCall(p pattern, at time.Time) *mockCall {
	g.seq++
	caller := callers[g.rng.Intn(len(callers))]
	svc := services[g.rng.Intn(len(services))]

	mc := &mockCall{
		pattern:  p,
		answerAt: 1 + g.rng.Intn(2),
		endAt:    3 + g.rng.Intn(4),
		state: &calls.Session{
			ID:        fmt.Sprintf("mock-%04d", g.seq),
			StartedAt: at,
			From:      caller,
			To:        svc.number,
			Incoming:  true,
		},
	}
	mc.state.ServiceInfo = "«" + svc.name + "»"

	switch p {
	case patternOutgoing:
		a := agents[g.rng.Intn(len(agents))]
		mc.state.Incoming = false
		mc.state.ServiceInfo = ""
		mc.state.From = a.phone
		mc.state.To = caller
		mc.state.AgentInfo = agentInfo(a)
		g.detail(mc, at, "Call from "+a.name)
	case patternInvalid:
		mc.state.From = caller[:7]
		mc.endAt = 1
		g.detail(mc, at, "Call")
	case patternNoAnswer:
		// Rings long enough to trigger the no-answer warning.
		mc.endAt = int(calls.MaxNoAnswerBeforeWarn/g.interval) + 2
		g.detail(mc, at, "Call")
	default:
		g.detail(mc, at, "Call")
	}
	return mc
}

func (g *Generator) advance(mc *mockCall, now time.Time) {
	mc.age++
	switch {
	case mc.age == mc.answerAt && (mc.pattern == patternAnswered || mc.pattern == patternOutgoing):
		a := agents[g.rng.Intn(len(agents))]
		mc.state.Answered = true
		if mc.state.AgentInfo == "" {
			mc.state.AgentInfo = agentInfo(a)
		}
		g.detail(mc, now, "Answered by "+a.name)
	case mc.age == mc.answerAt && mc.pattern == patternBusy:
		g.finish(mc, now)
	case mc.age >= mc.endAt:
		g.finish(mc, now)
	}
}

func (g *Generator) finish(mc *mockCall, at time.Time) {
	cs := mc.state
	if !cs.Active() {
		return
	}
	cs.EndedAt = at
	switch mc.pattern {
	case patternBusy:
		cs.Hangup = calls.HangupBusy
	case patternInvalid:
		cs.Hangup = calls.HangupInvalidNumber
	case patternNoAnswer:
		cs.Hangup = calls.HangupTimeout
	default:
		cs.Hangup = calls.HangupNormal
	}
	g.detail(mc, at, "Hangup ("+string(cs.Hangup)+")")
}

func (g *Generator) detail(mc *mockCall, at time.Time, text string) {
	mc.state.Details = append(mc.state.Details, calls.Detail{At: at, Text: text})
}

func agentInfo(a agent) string {
	return fmt.Sprintf("«%s», %s (%s)", a.name, a.desk, calls.PrettyPhone(a.phone, " "))
}
