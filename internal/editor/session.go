package editor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gameflow/internal/domain/flow"
	"gameflow/internal/domain/layout"
	"gameflow/internal/livesync"
	"gameflow/internal/persistence"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NewNodeLabel is used when a node is added with a blank label.
const NewNodeLabel = "Новый узел"

// DefaultRemoteHintDuration is how long State.RemoteUpdate stays set after a
// remote snapshot was merged.
const DefaultRemoteHintDuration = 3 * time.Second

// closeFlushTimeout bounds the final save made by Close.
const closeFlushTimeout = 5 * time.Second

var (
	ErrUnknownNode     = errors.New("unknown node")
	ErrUnknownField    = errors.New("unknown field")
	ErrNoSelection     = errors.New("no node selected")
	ErrDuplicateEdge   = errors.New("nodes already connected")
	ErrInvalidNodeType = errors.New("invalid node type")
	ErrClosed          = errors.New("session closed")
)

// Config tunes a Session.
type Config struct {
	HistorySize        int
	SaveDelay          time.Duration
	ReconnectDelay     time.Duration
	RemoteHintDuration time.Duration
	// Initial is the graph shown before (or instead of) the persisted one.
	// Nil means the built-in seed.
	Initial *flow.Graph
}

// Deps are the collaborators a Session talks to.
type Deps struct {
	API persistence.API
	// Dialer opens the push channel. Nil disables live sync.
	Dialer  livesync.Dialer
	SyncURL string
	Logger  *zap.Logger
	// NewID generates node ids. Defaults to "node-" + uuid.
	NewID func() string
}

// State is the observable status of a session.
type State struct {
	Save         persistence.SaveStatus
	Load         persistence.LoadStatus
	Connected    bool
	RemoteUpdate bool
	CanUndo      bool
	CanRedo      bool
	Selected     string
}

type subscriber struct {
	id int
	fn func(State)
}

// Session is one editing session: the graph, its selection and history, and
// the background autosave and sync loops. All methods are safe for
// concurrent use; mutations are applied one at a time.
type Session struct {
	cfg    Config
	api    persistence.API
	logger *zap.Logger
	newID  func() string

	saver *persistence.Autosaver
	live  *livesync.Client

	mu           sync.Mutex
	store        *Store
	history      *History
	selected     string
	save         persistence.SaveStatus
	load         persistence.LoadStatus
	connected    bool
	remoteUpdate bool
	hintTimer    *time.Timer
	hintGen      uint64
	started      bool
	closed       bool
	subs         []subscriber
	nextSubID    int
}

// NewSession wires a session. Nothing touches the network until Start.
func NewSession(cfg Config, deps Deps) *Session {
	if cfg.RemoteHintDuration <= 0 {
		cfg.RemoteHintDuration = DefaultRemoteHintDuration
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	newID := deps.NewID
	if newID == nil {
		newID = func() string { return "node-" + uuid.NewString() }
	}

	initial := flow.Seed()
	if cfg.Initial != nil {
		initial = *cfg.Initial
	}

	s := &Session{
		cfg:     cfg,
		api:     deps.API,
		logger:  logger.Named("editor"),
		newID:   newID,
		store:   NewStore(initial),
		history: NewHistory(cfg.HistorySize),
	}
	s.saver = persistence.NewAutosaver(cfg.SaveDelay, deps.API, s.Graph, s.onSaveStatus, logger)
	s.store.OnChange(s.saver.Notify)

	if deps.Dialer != nil {
		s.live = livesync.NewClient(deps.SyncURL, deps.Dialer, s, cfg.ReconnectDelay, logger)
	}
	return s
}

// Start loads the persisted graph, then enables autosave and live sync. If
// the server cannot be reached the session stays usable offline with load
// status error, and neither autosave nor sync is started.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.load = persistence.LoadLoading
	s.publishLocked()

	g, err := s.api.Fetch(ctx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	switch {
	case err == nil:
		s.saver.Start()
		s.saver.SuppressNext()
		s.store.Replace(g)
		if _, ok := s.store.Node(s.selected); !ok {
			s.selected = ""
		}
		s.logger.Info("Flow loaded", zap.Int("nodes", len(g.Nodes)), zap.Int("edges", len(g.Edges)))
	case errors.Is(err, persistence.ErrNoSnapshot):
		s.saver.Start()
		s.saver.Notify()
		s.logger.Info("No persisted flow, keeping default graph")
	default:
		s.load = persistence.LoadError
		s.publishLocked()
		s.logger.Warn("Failed to load flow", zap.Error(err))
		return err
	}
	s.load = persistence.LoadLoaded
	s.publishLocked()

	if s.live != nil {
		s.live.Start(context.Background())
	}
	return nil
}

// Close stops sync, autosave and the remote-update timer. A change that was
// not saved yet, including an undo or redo, is saved first.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.hintTimer != nil {
		s.hintTimer.Stop()
		s.hintTimer = nil
	}
	s.mu.Unlock()

	if s.live != nil {
		s.live.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), closeFlushTimeout)
	defer cancel()
	if err := s.saver.Flush(ctx); err != nil {
		s.logger.Warn("Final save failed", zap.Error(err))
	}
	s.saver.Close()
	return nil
}

// Graph returns a copy of the current graph.
func (s *Session) Graph() flow.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Graph()
}

// State returns the current status snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Subscribe registers fn to receive every state change. The returned func
// unregisters it.
func (s *Session) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// Selected returns a copy of the selected node.
func (s *Session) Selected() (flow.Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == "" {
		return flow.Node{}, false
	}
	return s.store.Node(s.selected)
}

// Select makes id the selected node.
func (s *Session) Select(id string) error {
	s.mu.Lock()
	if _, ok := s.store.Node(id); !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	s.selected = id
	s.publishLocked()
	return nil
}

// ClearSelection deselects.
func (s *Session) ClearSelection() {
	s.mu.Lock()
	s.selected = ""
	s.publishLocked()
}

// AddNode appends a node below the lowest existing one, horizontally centered
// on the current nodes. A blank label becomes NewNodeLabel.
func (s *Session) AddNode(label, comment string, nodeType flow.NodeType) (flow.Node, error) {
	if !nodeType.Valid() {
		return flow.Node{}, fmt.Errorf("%w: %q", ErrInvalidNodeType, nodeType)
	}
	if nodeType == "" {
		nodeType = flow.NodeTypeMainScene
	}
	label = strings.TrimSpace(label)
	if label == "" {
		label = NewNodeLabel
	}

	s.mu.Lock()
	g := s.store.Graph()
	n := flow.Node{
		ID:       s.newID(),
		Position: nextPosition(g.Nodes),
		Data: flow.NodeData{
			Label:    label,
			Comment:  strings.TrimSpace(comment),
			NodeType: nodeType,
		},
	}
	s.history.Snapshot(g)
	s.store.AddNode(n)
	s.publishLocked()
	return n.Clone(), nil
}

func nextPosition(nodes []flow.Node) flow.Position {
	if len(nodes) == 0 {
		return flow.Position{X: -layout.NodeWidth / 2, Y: layout.NodeHeight + layout.GapY}
	}
	maxY := nodes[0].Position.Y
	var sumX float64
	for _, n := range nodes {
		if n.Position.Y > maxY {
			maxY = n.Position.Y
		}
		sumX += n.Position.X
	}
	return flow.Position{
		X: sumX/float64(len(nodes)) - layout.NodeWidth/2,
		Y: maxY + layout.NodeHeight + layout.GapY,
	}
}

// DeleteNode removes a node and its edges.
func (s *Session) DeleteNode(id string) bool {
	s.mu.Lock()
	if _, ok := s.store.Node(id); !ok {
		s.mu.Unlock()
		return false
	}
	s.history.Snapshot(s.store.Graph())
	s.store.RemoveNode(id)
	if s.selected == id {
		s.selected = ""
	}
	s.publishLocked()
	return true
}

// DeleteSelected removes the selected node and its edges.
func (s *Session) DeleteSelected() bool {
	s.mu.Lock()
	id := s.selected
	s.mu.Unlock()
	if id == "" {
		return false
	}
	return s.DeleteNode(id)
}

// Connect adds an edge from source to target.
func (s *Session) Connect(source, target string) (flow.Edge, error) {
	s.mu.Lock()
	for _, id := range []string{source, target} {
		if _, ok := s.store.Node(id); !ok {
			s.mu.Unlock()
			return flow.Edge{}, fmt.Errorf("%w: %s", ErrUnknownNode, id)
		}
	}
	if s.store.HasConnection(source, target) {
		s.mu.Unlock()
		return flow.Edge{}, fmt.Errorf("%w: %s -> %s", ErrDuplicateEdge, source, target)
	}

	g := s.store.Graph()
	e := flow.Edge{ID: "e" + source + "-" + target, Source: source, Target: target}
	if g.HasEdge(e.ID) {
		e.ID += "-" + uuid.NewString()[:8]
	}
	s.history.Snapshot(g)
	s.store.AddEdge(e)
	s.publishLocked()
	return e, nil
}

// DeleteEdge removes an edge by id.
func (s *Session) DeleteEdge(id string) bool {
	s.mu.Lock()
	g := s.store.Graph()
	if !g.HasEdge(id) {
		s.mu.Unlock()
		return false
	}
	s.history.Snapshot(g)
	s.store.RemoveEdge(id)
	s.publishLocked()
	return true
}

// ClearAll removes every node and edge.
func (s *Session) ClearAll() {
	s.mu.Lock()
	s.history.Snapshot(s.store.Graph())
	s.store.Replace(flow.Empty())
	s.selected = ""
	s.publishLocked()
}

// UpdateSelected edits one text field of the selected node. Field edits are
// not recorded in history; they are saved by the autosaver like any change.
func (s *Session) UpdateSelected(field flow.Field, value string) error {
	s.mu.Lock()
	if s.selected == "" {
		s.mu.Unlock()
		return ErrNoSelection
	}
	if !s.store.SetField(s.selected, field, value) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	s.publishLocked()
	return nil
}

// Align repositions every node with the layered layout. A cyclic graph is
// left untouched and layout.ErrCycle is returned.
func (s *Session) Align() error {
	s.mu.Lock()
	g := s.store.Graph()
	if len(g.Nodes) == 0 {
		s.mu.Unlock()
		return nil
	}
	nodes, err := layout.Layout(g.Nodes, g.Edges)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.history.Snapshot(g)
	s.store.SetNodes(nodes)
	s.publishLocked()
	return nil
}

// Undo restores the previous snapshot. The restore itself is not autosaved.
func (s *Session) Undo() bool {
	s.mu.Lock()
	prev, ok := s.history.Undo(s.store.Graph())
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.restoreLocked(prev)
	s.publishLocked()
	return true
}

// Redo re-applies the next undone snapshot.
func (s *Session) Redo() bool {
	s.mu.Lock()
	next, ok := s.history.Redo(s.store.Graph())
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.restoreLocked(next)
	s.publishLocked()
	return true
}

func (s *Session) restoreLocked(g flow.Graph) {
	s.saver.SuppressNext()
	s.store.Replace(g)
	s.saver.MarkDirty()
	s.selected = ""
}

// SaveNow pushes the current graph immediately.
func (s *Session) SaveNow(ctx context.Context) error {
	return s.saver.SaveNow(ctx)
}

// Export renders the current graph as an export document.
func (s *Session) Export(at time.Time) ([]byte, error) {
	return flow.Export(s.Graph(), at).Marshal()
}

// Import replaces the graph with the contents of an export document. The
// previous graph is recorded in history.
func (s *Session) Import(data []byte) error {
	g, err := flow.ParseDocument(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.history.Snapshot(s.store.Graph())
	s.store.Replace(g)
	s.selected = ""
	s.publishLocked()
	return nil
}

// ConnectionChanged implements livesync.Handler.
func (s *Session) ConnectionChanged(connected bool) {
	s.mu.Lock()
	if s.closed || s.connected == connected {
		s.mu.Unlock()
		return
	}
	s.connected = connected
	s.publishLocked()
}

// ApplyRemote implements livesync.Handler. The selected node keeps its local
// data; the merge is never echoed back by the autosaver.
func (s *Session) ApplyRemote(remote flow.Graph) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	var local *flow.NodeData
	if s.selected != "" {
		if n, ok := s.store.Node(s.selected); ok {
			local = &n.Data
		}
	}
	merged, keep := livesync.Merge(remote, s.selected, local)

	s.saver.SuppressNext()
	s.store.Replace(merged)
	if !keep {
		s.selected = ""
	}
	s.showRemoteHintLocked()
	s.publishLocked()
}

func (s *Session) showRemoteHintLocked() {
	s.remoteUpdate = true
	if s.hintTimer != nil {
		s.hintTimer.Stop()
	}
	s.hintGen++
	gen := s.hintGen
	s.hintTimer = time.AfterFunc(s.cfg.RemoteHintDuration, func() {
		s.mu.Lock()
		if s.closed || gen != s.hintGen {
			s.mu.Unlock()
			return
		}
		s.remoteUpdate = false
		s.hintTimer = nil
		s.publishLocked()
	})
}

func (s *Session) onSaveStatus(st persistence.SaveStatus) {
	s.mu.Lock()
	s.save = st
	s.publishLocked()
}

func (s *Session) stateLocked() State {
	return State{
		Save:         s.save,
		Load:         s.load,
		Connected:    s.connected,
		RemoteUpdate: s.remoteUpdate,
		CanUndo:      s.history.CanUndo(),
		CanRedo:      s.history.CanRedo(),
		Selected:     s.selected,
	}
}

// publishLocked releases s.mu and then notifies subscribers, so callbacks may
// call back into the session.
func (s *Session) publishLocked() {
	st := s.stateLocked()
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(st)
	}
}
