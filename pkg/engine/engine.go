// Package engine walks the mounted dialogue graphs: it enters nodes, resolves
// their content and visible choices against the game state, and performs the
// transitions triggered by the player, interrupt timers and simulations.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/dialogue-engine/pkg/conditionals"
	"github.com/jwebster45206/dialogue-engine/pkg/dialogue"
	"github.com/jwebster45206/dialogue-engine/pkg/state"
	"github.com/jwebster45206/dialogue-engine/pkg/textfilter"
)

// Committer receives every new state. *persistence.Store satisfies it.
type Committer interface {
	Commit(gs *state.GameState, reason string)
}

type nopCommitter struct{}

func (nopCommitter) Commit(*state.GameState, string) {}

const DefaultEnrichmentTimeout = 2 * time.Second

type Options struct {
	Committer         Committer      // Defaults to discarding commits
	Scheduler         Scheduler      // Defaults to RealScheduler
	Now               func() time.Time
	Enricher          ChoiceEnricher // Optional
	Deduplicator      Deduplicator   // Optional
	EnrichmentTimeout time.Duration  // Bound on each enrichment or dedup call
	AcceptThreshold   float64        // Minimum enrichment confidence
	DedupThreshold    float64        // Similarity at which choices count as duplicates
	Profanity         *textfilter.ProfanityFilter
}

// ChoiceView is a choice as presented to the player.
type ChoiceView struct {
	ID        string        `json:"id"`
	Text      string        `json:"text"`
	Target    string        `json:"target,omitempty"`
	Pattern   state.Pattern `json:"pattern,omitempty"`
	Augmented bool          `json:"augmented,omitempty"`
}

type resolvedChoice struct {
	ChoiceView
	consequence *state.StateChange
}

type InterruptView struct {
	Target     string    `json:"target"`
	DurationMS int       `json:"duration_ms"`
	Deadline   time.Time `json:"deadline"`
}

type SimulationView struct {
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
}

// View is everything a driver needs to present the current node.
type View struct {
	NodeID      string          `json:"node_id"`
	GraphID     string          `json:"graph_id"`
	CharacterID string          `json:"character_id"`
	Speaker     string          `json:"speaker,omitempty"`
	Text        string          `json:"text"`
	Choices     []ChoiceView    `json:"choices"`
	Interrupt   *InterruptView  `json:"interrupt,omitempty"`
	Simulation  *SimulationView `json:"simulation,omitempty"`
	Terminal    bool            `json:"terminal"`
	Error       *IntegrityError `json:"error,omitempty"` // Last refused transition, cleared by the next successful one
}

type observer struct {
	id int
	fn func(View)
}

// Engine is the traversal state machine for one playthrough. All methods are
// safe for concurrent use; mutations are serialized.
type Engine struct {
	mu sync.Mutex

	lib       *dialogue.Library
	logger    *slog.Logger
	committer Committer
	scheduler Scheduler
	now       func() time.Time

	enricher        ChoiceEnricher
	dedup           Deduplicator
	enrichTimeout   time.Duration
	acceptThreshold float64
	dedupThreshold  float64
	profanity       *textfilter.ProfanityFilter

	gs         *state.GameState
	node       *dialogue.Node
	character  string
	choices    []resolvedChoice
	view       View
	generation uint64
	timer      Timer
	armed      bool
	changed    bool
	closed     bool

	observers    []observer
	nextObserver int
}

func New(lib *dialogue.Library, logger *slog.Logger, opts Options) *Engine {
	e := &Engine{
		lib:             lib,
		logger:          logger,
		committer:       opts.Committer,
		scheduler:       opts.Scheduler,
		now:             opts.Now,
		enricher:        opts.Enricher,
		dedup:           opts.Deduplicator,
		enrichTimeout:   opts.EnrichmentTimeout,
		acceptThreshold: opts.AcceptThreshold,
		dedupThreshold:  opts.DedupThreshold,
		profanity:       opts.Profanity,
	}
	if e.committer == nil {
		e.committer = nopCommitter{}
	}
	if e.scheduler == nil {
		e.scheduler = RealScheduler{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.enrichTimeout <= 0 {
		e.enrichTimeout = DefaultEnrichmentTimeout
	}
	if e.acceptThreshold <= 0 {
		e.acceptThreshold = DefaultAcceptThreshold
	}
	if e.dedupThreshold <= 0 {
		e.dedupThreshold = DefaultDedupThreshold
	}
	if e.profanity == nil {
		e.profanity = textfilter.NewProfanityFilter()
	}
	return e
}

// Start positions the engine. When gs carries a cursor that still resolves
// the engine resumes there without re-applying entry effects; otherwise it
// enters the start node of graphID. An empty graphID picks the graph of the
// saved cursor's character, then the first mounted graph. A nil gs starts a
// new playthrough.
func (e *Engine) Start(ctx context.Context, gs *state.GameState, graphID string) error {
	return e.run(func() error {
		if gs == nil {
			gs = state.New(uuid.New(), e.now())
		}
		e.gs = gs

		if id := gs.Cursor.NodeID; id != "" {
			if node, ok := e.lib.Node(id); ok {
				e.resume(ctx, node)
				return nil
			}
			e.logger.Warn("Saved cursor does not resolve, starting from graph start", "node_id", id)
		}

		g, err := e.startGraph(graphID, gs.Cursor.CharacterID)
		if err != nil {
			return err
		}
		start, ok := e.lib.Node(g.StartNode)
		if !ok {
			return fmt.Errorf("%w: start node %s of graph %s", ErrNodeNotFound, g.StartNode, g.ID)
		}
		e.enter(ctx, start, "start")
		return nil
	})
}

func (e *Engine) startGraph(graphID, characterID string) (*dialogue.Graph, error) {
	if graphID == "" {
		if characterID != "" {
			if g, ok := e.lib.GraphForCharacter(characterID); ok {
				return g, nil
			}
		}
		graphs := e.lib.Graphs()
		if len(graphs) == 0 {
			return nil, fmt.Errorf("%w: no graphs mounted", dialogue.ErrGraphNotFound)
		}
		return graphs[0], nil
	}
	g, ok := e.lib.Graph(graphID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", dialogue.ErrGraphNotFound, graphID)
	}
	return g, nil
}

// SelectChoice applies the consequence of a visible choice and follows its
// target. A choice without a target keeps the cursor on the node and cancels
// its interrupt.
func (e *Engine) SelectChoice(ctx context.Context, choiceID string) error {
	return e.run(func() error {
		if e.node == nil {
			return ErrNotStarted
		}
		for _, c := range e.choices {
			if c.ID == choiceID {
				return e.transition(ctx, c.consequence, c.Target, "choice:"+c.ID)
			}
		}
		return fmt.Errorf("%w: %q on node %s", ErrChoiceUnavailable, choiceID, e.node.ID)
	})
}

// OnInterruptElapsed fires the armed interrupt of the current node now.
func (e *Engine) OnInterruptElapsed(ctx context.Context) error {
	return e.run(func() error {
		if e.node == nil {
			return ErrNotStarted
		}
		if !e.armed {
			return ErrNoActiveInterrupt
		}
		return e.fireInterrupt(ctx)
	})
}

// CompleteSimulation resumes after the simulation hosted by the current node.
func (e *Engine) CompleteSimulation(ctx context.Context, success bool) error {
	return e.run(func() error {
		if e.node == nil {
			return ErrNotStarted
		}
		sim := e.node.Simulation
		if sim == nil {
			return fmt.Errorf("%w: %s", ErrNoSimulation, e.node.ID)
		}
		if success {
			return e.transition(ctx, nil, sim.SuccessTarget, "simulation:success")
		}
		return e.transition(ctx, nil, sim.FailureTarget, "simulation:failure")
	})
}

// Goto routes directly to a graph start node, a declared entry point, or a
// pattern-unlock node whose threshold has been reached.
func (e *Engine) Goto(ctx context.Context, nodeID string) error {
	return e.run(func() error {
		if e.gs == nil {
			return ErrNotStarted
		}
		node, ok := e.lib.Node(nodeID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
		}
		if !e.isEntryPoint(node) {
			return fmt.Errorf("%w: %s", ErrNotEntryPoint, nodeID)
		}
		e.enter(ctx, node, "goto")
		return nil
	})
}

// OnChange registers fn to receive the view after every transition.
func (e *Engine) OnChange(fn func(View)) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextObserver
	e.nextObserver++
	e.observers = append(e.observers, observer{id: id, fn: fn})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.observers = slices.DeleteFunc(e.observers, func(o observer) bool { return o.id == id })
	}
}

// Close cancels any pending interrupt. A closed engine ignores late timers
// and refuses every later operation with ErrClosed.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disarm()
	e.generation++
	e.closed = true
}

// run serializes fn and notifies observers after the lock is released.
func (e *Engine) run(fn func() error) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	err := fn()
	var (
		v   View
		obs []observer
	)
	if e.changed {
		e.changed = false
		v = e.viewLocked()
		obs = slices.Clone(e.observers)
	}
	e.mu.Unlock()

	for _, o := range obs {
		o.fn(v)
	}
	return err
}

func (e *Engine) enter(ctx context.Context, node *dialogue.Node, reason string) {
	e.disarm()
	e.generation++

	charID := e.ownerCharacter(node)
	now := e.now()
	changes := make([]state.StateChange, 0, 1+len(node.OnEnter))
	changes = append(changes, state.StateChange{
		CharacterID: charID,
		Visit:       node.ID,
		Cursor:      &state.Cursor{CharacterID: charID, NodeID: node.ID},
		At:          now,
	})
	for _, effect := range node.OnEnter {
		effect = effect.WithCharacter(charID)
		if effect.IsEmpty() {
			continue
		}
		effect.At = now
		changes = append(changes, effect)
	}
	e.gs = state.ApplyAll(e.gs, changes...)
	e.node = node
	e.character = charID

	e.resolve(ctx)
	e.arm()
	e.committer.Commit(e.gs, "enter:"+node.ID)
	e.changed = true
	e.logger.Debug("Entered node", "node_id", node.ID, "character_id", charID, "reason", reason)
}

func (e *Engine) resume(ctx context.Context, node *dialogue.Node) {
	e.disarm()
	e.generation++
	e.node = node
	e.character = e.ownerCharacter(node)
	e.resolve(ctx)
	e.arm()
	e.committer.Commit(e.gs, "resume:"+node.ID)
	e.changed = true
	e.logger.Debug("Resumed at node", "node_id", node.ID)
}

// transition applies consequence and moves to target. An unresolvable target
// is refused before anything changes.
func (e *Engine) transition(ctx context.Context, consequence *state.StateChange, target, via string) error {
	var next *dialogue.Node
	if target != "" {
		n, ok := e.lib.Node(target)
		if !ok {
			ierr := &IntegrityError{NodeID: e.node.ID, Via: via, Target: target}
			e.logger.Error("Refused transition to unknown node", "node_id", e.node.ID, "via", via, "target", target)
			e.view.Error = ierr
			e.changed = true
			return ierr
		}
		next = n
	}

	e.disarm()
	if consequence != nil {
		if ch := consequence.WithCharacter(e.character); !ch.IsEmpty() {
			ch.At = e.now()
			e.gs = state.Apply(e.gs, ch)
		}
	}

	if next == nil {
		e.generation++
		e.resolve(ctx)
		e.committer.Commit(e.gs, via)
		e.changed = true
		return nil
	}
	e.enter(ctx, next, via)
	return nil
}

func (e *Engine) fireInterrupt(ctx context.Context) error {
	it := e.node.Interrupt
	e.disarm()
	return e.transition(ctx, it.Consequence, it.Target, "interrupt")
}

func (e *Engine) arm() {
	it := e.node.Interrupt
	if it == nil {
		return
	}
	gen := e.generation
	e.timer = e.scheduler.AfterFunc(it.Duration(), func() { e.interruptElapsed(gen) })
	e.armed = true
	e.view.Interrupt = &InterruptView{
		Target:     it.Target,
		DurationMS: it.DurationMS,
		Deadline:   e.now().Add(it.Duration()),
	}
}

func (e *Engine) disarm() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.armed = false
	e.view.Interrupt = nil
}

// interruptElapsed is the timer callback. A timer armed for an earlier node
// entry is ignored.
func (e *Engine) interruptElapsed(gen uint64) {
	err := e.run(func() error {
		if gen != e.generation || !e.armed {
			e.logger.Debug("Ignoring stale interrupt timer")
			return nil
		}
		return e.fireInterrupt(context.Background())
	})
	if err != nil && !errors.Is(err, ErrClosed) {
		e.logger.Error("Interrupt transition failed", "error", err)
	}
}

func (e *Engine) resolve(ctx context.Context) {
	view := state.View(e.gs, e.character)
	node := e.node

	var text string
	if v := selectVariant(node.Content, view); v != nil && v.Template() != nil {
		text = v.Template().Render(view)
	}

	choices := make([]resolvedChoice, 0, len(node.Choices))
	for i := range node.Choices {
		c := &node.Choices[i]
		if !conditionals.Evaluate(c.When, view) {
			continue
		}
		choices = append(choices, resolvedChoice{
			ChoiceView: ChoiceView{
				ID:      c.ID,
				Text:    c.Text,
				Target:  c.Target,
				Pattern: c.Pattern,
			},
			consequence: c.Consequence,
		})
	}
	choices = e.augment(ctx, text, choices)
	e.choices = choices

	views := make([]ChoiceView, len(choices))
	for i, c := range choices {
		views[i] = c.ChoiceView
	}
	e.view = View{
		NodeID:      node.ID,
		GraphID:     node.GraphID(),
		CharacterID: e.character,
		Speaker:     node.Speaker,
		Text:        text,
		Choices:     views,
		Terminal:    node.IsTerminal(),
	}
	if sim := node.Simulation; sim != nil {
		e.view.Simulation = &SimulationView{Type: sim.Type, Title: sim.Title}
	}
}

// selectVariant returns the first variant whose condition holds. Variants
// without a condition always hold, so authoring order decides.
func selectVariant(content dialogue.Content, view conditionals.StateView) *dialogue.Variant {
	for i := range content {
		if conditionals.Evaluate(content[i].When, view) {
			return &content[i]
		}
	}
	if len(content) > 0 {
		return &content[0]
	}
	return nil
}

func (e *Engine) ownerCharacter(node *dialogue.Node) string {
	if g, ok := e.lib.OwnerOf(node.ID); ok {
		return g.CharacterID
	}
	return ""
}

func (e *Engine) isEntryPoint(node *dialogue.Node) bool {
	g, ok := e.lib.OwnerOf(node.ID)
	if !ok {
		return false
	}
	if node.ID == g.StartNode || slices.Contains(g.EntryPoints, node.ID) {
		return true
	}
	pu := node.PatternUnlock
	return pu != nil && e.gs.Patterns.Get(pu.Pattern) >= pu.Threshold
}

func (e *Engine) viewLocked() View {
	v := e.view
	v.Choices = slices.Clone(e.view.Choices)
	return v
}
