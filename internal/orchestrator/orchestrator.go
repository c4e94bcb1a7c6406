package orchestrator

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"calbot/internal/assistant"
	"calbot/internal/storage"
	"calbot/internal/tools"
)

// ErrRunTimedOut means the remote run exceeded its polling budget.
var ErrRunTimedOut = errors.New("run timed out")

// Fixed user-facing strings. Every internal failure maps onto one of
// these; raw errors never reach the user.
const (
	msgApology   = "Sorry, something went wrong on my side. Please try again."
	msgTimeout   = "Sorry, that took too long to process. Please try again."
	msgRunFailed = "Sorry, I couldn't process that request. Please try again."
	msgTooLong   = "That message is too long for me to handle. Please shorten it."
)

// Options 轮询与超时预算,零值取默认
// Options carries the polling and timeout budgets. Zero values take
// the defaults.
type Options struct {
	PollInterval time.Duration
	// InitialTimeout bounds a run before any tool call; ToolTimeout is
	// the larger budget granted once tool outputs were submitted.
	InitialTimeout time.Duration
	ToolTimeout    time.Duration
	// CancelGrace is how long to wait after cancelling stuck runs
	// before retrying the append.
	CancelGrace    time.Duration
	MaxInputTokens int
}

func (o *Options) withDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	if o.InitialTimeout <= 0 {
		o.InitialTimeout = 30 * time.Second
	}
	if o.ToolTimeout <= 0 {
		o.ToolTimeout = 120 * time.Second
	}
	if o.CancelGrace <= 0 {
		o.CancelGrace = 2 * time.Second
	}
	if o.MaxInputTokens <= 0 {
		o.MaxInputTokens = 4000
	}
}

// Orchestrator 驱动一轮完整对话:追加消息、跑 run、派发工具、取回复
// Orchestrator drives one conversational turn end to end: append the
// user message, start a run, poll it, dispatch any tool batches, and
// collect the reply. Turns of the same user are serialized.
type Orchestrator struct {
	svc      assistant.Service
	sessions *assistant.SessionManager
	registry *tools.Registry
	store    storage.Store
	logger   *slog.Logger
	opts     Options
	guard    *tokenGuard

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

func New(svc assistant.Service, sessions *assistant.SessionManager, registry *tools.Registry, store storage.Store, logger *slog.Logger, opts Options) *Orchestrator {
	opts.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		svc:       svc,
		sessions:  sessions,
		registry:  registry,
		store:     store,
		logger:    logger.With("component", "orchestrator"),
		opts:      opts,
		guard:     newTokenGuard(),
		userLocks: make(map[string]*sync.Mutex),
	}
}

// lockUser serializes turns per user. Distinct users proceed in
// parallel; a second message from the same user waits for the first.
func (o *Orchestrator) lockUser(userID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		o.userLocks[userID] = lock
	}
	return lock
}

// TurnRequest is one user message entering the state machine.
type TurnRequest struct {
	UserID        string
	Text          string
	Timezone      string
	CalendarToken string
}

// TurnResult is the outcome of one turn. Message is always safe to
// show; Success false means it is one of the fixed apology strings.
type TurnResult struct {
	Success        bool
	Message        string
	ThreadID       string
	ThreadReplaced bool
}
