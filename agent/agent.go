package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aschepis/backscratcher/travel/llm"
	"github.com/aschepis/backscratcher/travel/metrics"
	"github.com/aschepis/backscratcher/travel/session"
	"github.com/rs/zerolog"
)

// DefaultChatTimeout bounds the model calls of one turn, tool rounds included.
const DefaultChatTimeout = 60 * time.Second

// Config holds the chat settings of an Agent.
type Config struct {
	Model         string
	MaxTokens     int64
	Temperature   *float64
	ChatTimeout   time.Duration
	MaxToolRounds int
}

// Reply is the outcome of one turn.
type Reply struct {
	SessionID      string
	Text           string
	Classification Classification
	FirstMessage   bool
}

// Agent runs conversational turns: it loads memory, calls the model with
// tools, and records the exchange.
type Agent struct {
	client    llm.Client
	cfg       Config
	assembler *Assembler
	sessions  *session.Registry
	toolExec  ToolExecutor
	tools     ToolProvider
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// New creates an Agent. toolExec and tools may be nil for a tool-less agent.
func New(
	logger zerolog.Logger,
	client llm.Client,
	cfg Config,
	assembler *Assembler,
	sessions *session.Registry,
	toolExec ToolExecutor,
	tools ToolProvider,
	m *metrics.Metrics,
) (*Agent, error) {
	if client == nil {
		return nil, errors.New("llm client is required")
	}
	if assembler == nil {
		return nil, errors.New("assembler is required")
	}
	if sessions == nil {
		return nil, errors.New("session registry is required")
	}
	if cfg.ChatTimeout <= 0 {
		cfg.ChatTimeout = DefaultChatTimeout
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = DefaultMaxToolRounds
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	return &Agent{
		client:    client,
		cfg:       cfg,
		assembler: assembler,
		sessions:  sessions,
		toolExec:  toolExec,
		tools:     tools,
		metrics:   m,
		logger:    logger.With().Str("component", "agent").Logger(),
	}, nil
}

// Chat processes one user message for sessionID. An empty sessionID starts
// a new session; the reply carries the id used. Turns of the same session
// run one at a time.
func (a *Agent) Chat(ctx context.Context, sessionID, message string) (*Reply, error) {
	start := time.Now()
	defer func() { a.metrics.ObserveTurnLatency(time.Since(start)) }()

	sess, release, err := a.sessions.BeginTurn(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("wait for session turn: %w", err)
	}
	defer release()
	sessionID = sess.ID
	ctx = WithSessionID(ctx, sessionID)
	logger := a.logger.With().Str("session_id", sessionID).Logger()

	reply := &Reply{SessionID: sessionID, Classification: Classify(message)}
	logger.Debug().
		Str("intent", string(reply.Classification.Intent)).
		Float64("confidence", reply.Classification.Confidence).
		Msg("classified message")

	first, err := a.assembler.IsFirstMessage(ctx, sessionID, sess.Turns)
	if err != nil {
		logger.Warn().Err(err).Msg("could not determine session state, loading memory")
	}
	reply.FirstMessage = first

	mc, err := a.assembler.Load(ctx, sessionID, message, first)
	if err != nil {
		logger.Warn().Err(err).Msg("memory load failed, continuing without memory")
		mc = &MemoryContext{SessionID: sessionID}
	}

	var history []llm.Message
	if !first {
		stored, err := a.assembler.History(ctx, sessionID)
		if err != nil {
			logger.Warn().Err(err).Msg("chat history load failed")
		}
		history = toLLMMessages(stored)
	}

	req := a.buildRequest(mc, history, message)

	chatCtx, cancel := context.WithTimeout(ctx, a.cfg.ChatTimeout)
	defer cancel()
	text, err := executeToolLoop(chatCtx, a.client, req, sessionID, a.toolExec, a.cfg.MaxToolRounds, logger)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = llm.NewTimeoutError(fmt.Sprintf("chat did not finish within %s", a.cfg.ChatTimeout), err)
		}
		return nil, fmt.Errorf("generate reply: %w", err)
	}
	reply.Text = text

	userData := map[string]any{
		"intent":     string(reply.Classification.Intent),
		"confidence": reply.Classification.Confidence,
	}
	if err := a.assembler.Complete(ctx, sessionID, message, text, userData); err != nil {
		logger.Error().Err(err).Msg("failed to record turn")
	}
	return reply, nil
}

// buildRequest assembles the chat request for one turn.
func (a *Agent) buildRequest(mc *MemoryContext, history []llm.Message, message string) *llm.Request {
	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, llm.NewTextMessage(llm.RoleUser, message))

	var specs []llm.ToolSpec
	if a.tools != nil {
		specs = a.tools.Specs()
	}
	return &llm.Request{
		Model:       a.cfg.Model,
		Messages:    messages,
		System:      BuildSystemPrompt(mc),
		Tools:       specs,
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: a.cfg.Temperature,
	}
}

// EndSession folds what is left of a session into a summary and drops it
// from the registry.
func (a *Agent) EndSession(ctx context.Context, sessionID string) error {
	sess, release, err := a.sessions.BeginTurn(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("wait for session turn: %w", err)
	}
	summary, err := a.assembler.Finalize(ctx, sess.ID)
	// end before release so a waiting turn starts on a fresh entry
	if _, endErr := a.sessions.End(sess.ID); endErr != nil && !errors.Is(endErr, session.ErrNotFound) {
		a.logger.Warn().Err(endErr).Str("session_id", sess.ID).Msg("failed to end session")
	}
	release()
	if err != nil {
		return fmt.Errorf("final summary: %w", err)
	}
	if summary != nil {
		a.logger.Info().Str("session_id", sess.ID).Int("turns", summary.TurnCount).Msg("final summary stored")
	}
	return nil
}
