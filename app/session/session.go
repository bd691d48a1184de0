// Package session orchestrates one chat request: retrieve, assemble,
// generate. Sessions hold no cross-request state; everything a request needs
// arrives in its parameters.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"novelrag/app/prompt"
	"novelrag/model"
	"novelrag/retriever"
	"novelrag/types"
)

type State string

const (
	StateReceived   State = "received"
	StateRetrieving State = "retrieving"
	StateAssembling State = "assembling"
	StateGenerating State = "generating"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

type Session struct {
	retriever *retriever.Retriever
	assembler *prompt.Assembler
	generator model.Generator
	timeout   time.Duration
	logger    *slog.Logger
}

func New(r *retriever.Retriever, a *prompt.Assembler, g model.Generator, timeout time.Duration) *Session {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Session{
		retriever: r,
		assembler: a,
		generator: g,
		timeout:   timeout,
		logger:    slog.Default(),
	}
}

type Answer struct {
	Answer   string
	Thinking string
	Sources  []types.Source
	State    State
}

// Ask runs the request pipeline under the session deadline. Empty retrieval
// is not a failure: the prompt carries an explicit no-passages marker and
// generation still runs, so the model can answer from history or say it
// cannot. Generator errors surface as GenerationError without retry.
func (s *Session) Ask(ctx context.Context, params types.QueryParams) (*Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	state := StateReceived
	start := time.Now()

	state = StateRetrieving
	results, err := s.retriever.Retrieve(ctx, params.Query, params.Book)
	if err != nil {
		return s.fail(state, err)
	}

	state = StateAssembling
	assembled := s.assembler.Assemble(prompt.Input{
		Query:    params.Query,
		History:  params.History,
		Passages: results,
	})
	if len(results) == 0 {
		s.logger.Info("no supporting passages found", "query_len", len(params.Query))
	}

	state = StateGenerating
	raw, err := s.generator.Generate(ctx, assembled.System, assembled.Prompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return s.fail(state, types.GenerationError{Err: context.DeadlineExceeded})
		}
		return s.fail(state, types.GenerationError{Err: err})
	}
	parsed := model.ParseStructuredAnswer(raw)

	state = StateCompleted
	sources := make([]types.Source, len(assembled.Used))
	for i, p := range assembled.Used {
		sources[i] = types.Source{
			BookID:   p.BookID,
			ChunkID:  p.ChunkID.String(),
			Position: p.Position,
		}
	}

	s.logger.Info("chat request completed",
		"passages", len(assembled.Used),
		"prompt_size", assembled.Size,
		"took", time.Since(start),
	)
	return &Answer{
		Answer:   parsed.FinalAnswer,
		Thinking: parsed.Thinking,
		Sources:  sources,
		State:    state,
	}, nil
}

func (s *Session) fail(state State, err error) (*Answer, error) {
	s.logger.Error("chat request failed", "state", string(state), "error", err)
	return nil, err
}
