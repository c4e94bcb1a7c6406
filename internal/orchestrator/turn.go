package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"calbot/internal/assistant"
	"calbot/internal/chat"
	"calbot/internal/tools"
)

// RunTurn 处理一条用户消息,返回始终可直接展示的结果
// RunTurn processes one user message. The returned result always
// carries a user-presentable message, whatever happened underneath.
func (o *Orchestrator) RunTurn(ctx context.Context, req TurnRequest) TurnResult {
	userID := strings.TrimSpace(req.UserID)
	text := strings.TrimSpace(req.Text)
	if userID == "" || text == "" {
		return TurnResult{Message: msgRunFailed}
	}
	if o.guard.estimate(text) > o.opts.MaxInputTokens {
		return TurnResult{Message: msgTooLong}
	}

	lock := o.lockUser(userID)
	lock.Lock()
	defer lock.Unlock()

	result, err := o.runTurn(ctx, userID, text, req)
	if err != nil {
		o.logger.Error("turn failed", "user", userID, "error", err)
		result.Success = false
		switch {
		case errors.Is(err, ErrRunTimedOut):
			result.Message = msgTimeout
		case errors.Is(err, assistant.ErrSessionUnavailable):
			result.Message = msgApology
		default:
			result.Message = msgRunFailed
		}
	}
	return result
}

func (o *Orchestrator) runTurn(ctx context.Context, userID, text string, req TurnRequest) (TurnResult, error) {
	loc := resolveLocation(req.Timezone)
	identity, err := o.sessions.EnsureAssistant(ctx, time.Now(), loc)
	if err != nil {
		return TurnResult{}, err
	}
	threadID, err := o.sessions.ResolveThread(ctx, userID)
	if err != nil {
		return TurnResult{}, err
	}

	message := o.composeMessage(userID, text)

	threadID, replaced, err := o.appendWithRecovery(ctx, userID, threadID, message)
	if err != nil {
		return TurnResult{ThreadReplaced: replaced}, err
	}
	result := TurnResult{ThreadID: threadID, ThreadReplaced: replaced}

	runID, err := o.svc.CreateRun(ctx, threadID, identity.AssistantID)
	if err != nil {
		return result, err
	}

	inv := tools.Invocation{
		UserID:        userID,
		CalendarToken: req.CalendarToken,
		Timezone:      req.Timezone,
	}
	reply, err := o.awaitRun(ctx, threadID, runID, inv)
	if err != nil {
		return result, err
	}
	result.Success = true
	result.Message = reply
	return result, nil
}

// composeMessage prefixes the user text with any in-flight
// slot-filling state so the model remembers what it was collecting.
func (o *Orchestrator) composeMessage(userID, text string) string {
	pc, ok, err := o.store.LoadPartialContext(userID)
	if err != nil {
		o.logger.Warn("load partial context failed", "user", userID, "error", err)
		return text
	}
	if !ok {
		return text
	}

	keys := make([]string, 0, len(pc.Collected))
	for k := range pc.Collected {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, pc.Collected[k]))
	}

	return fmt.Sprintf("[In-progress appointment: %s; collected: %s; still needed: %s]\n%s",
		pc.EventKind, strings.Join(pairs, ", "), strings.Join(pc.Missing, ", "), text)
}

// appendWithRecovery appends the message, recovering from a stuck run
// holding the thread: cancel the run and retry, and if the thread is
// still wedged, abandon it for a fresh one.
func (o *Orchestrator) appendWithRecovery(ctx context.Context, userID, threadID, message string) (string, bool, error) {
	err := o.svc.AppendUserMessage(ctx, threadID, message)
	if err == nil {
		return threadID, false, nil
	}
	if !errors.Is(err, assistant.ErrRunActive) {
		return threadID, false, err
	}

	o.logger.Warn("thread held by an active run, cancelling", "user", userID, "thread", threadID)
	if cancelled := o.cancelActiveRuns(ctx, threadID); cancelled {
		time.Sleep(o.opts.CancelGrace)
		if err := o.svc.AppendUserMessage(ctx, threadID, message); err == nil {
			return threadID, false, nil
		}
	}

	// the thread is wedged beyond recovery; start over on a fresh one
	fresh, err := o.sessions.ReplaceThread(ctx, userID, threadID)
	if err != nil {
		return threadID, false, err
	}
	if err := o.svc.AppendUserMessage(ctx, fresh, message); err != nil {
		return fresh, true, err
	}
	return fresh, true, nil
}

func (o *Orchestrator) cancelActiveRuns(ctx context.Context, threadID string) bool {
	runIDs, err := o.svc.ActiveRuns(ctx, threadID)
	if err != nil {
		o.logger.Warn("list active runs failed", "thread", threadID, "error", err)
		return false
	}
	ok := true
	for _, runID := range runIDs {
		if err := o.svc.CancelRun(ctx, threadID, runID); err != nil {
			o.logger.Warn("cancel run failed", "thread", threadID, "run", runID, "error", err)
			ok = false
		}
	}
	return ok
}

// awaitRun polls the run to a terminal state, dispatching tool batches
// as they surface. The deadline starts at the initial budget and is
// re-armed with the larger tool budget after each submission.
func (o *Orchestrator) awaitRun(ctx context.Context, threadID, runID string, inv tools.Invocation) (string, error) {
	deadline := time.Now().Add(o.opts.InitialTimeout)
	for {
		if time.Now().After(deadline) {
			// best effort: do not leave the run holding the thread
			if err := o.svc.CancelRun(ctx, threadID, runID); err != nil {
				o.logger.Warn("cancel timed-out run failed", "run", runID, "error", err)
			}
			return "", ErrRunTimedOut
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		snap, err := o.svc.RetrieveRun(ctx, threadID, runID)
		if err != nil {
			return "", err
		}

		switch snap.State {
		case assistant.StateQueued, assistant.StateInProgress, assistant.StateCancelling:
			// keep polling
		case assistant.StateRequiresAction:
			outputs := o.executeToolBatch(ctx, inv, snap.ToolCalls)
			if err := o.svc.SubmitToolOutputs(ctx, threadID, runID, outputs); err != nil {
				return "", err
			}
			deadline = time.Now().Add(o.opts.ToolTimeout)
		case assistant.StateCompleted:
			return o.svc.LatestAssistantMessage(ctx, threadID)
		case assistant.StateFailed:
			return "", fmt.Errorf("run %s failed: %s", runID, snap.FailureReason)
		case assistant.StateCancelled:
			return "", fmt.Errorf("run %s was cancelled", runID)
		case assistant.StateExpired:
			return "", fmt.Errorf("run %s expired", runID)
		case assistant.StateUnknown:
			return "", fmt.Errorf("run %s reported an unknown state", runID)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(o.opts.PollInterval):
		}
	}
}

// executeToolBatch runs every call of the batch concurrently and
// returns the outputs in call order. Dispatch never fails, so the
// batch always submits completely.
func (o *Orchestrator) executeToolBatch(ctx context.Context, inv tools.Invocation, calls []chat.ToolCall) []chat.ToolOutput {
	outputs := make([]chat.ToolOutput, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call chat.ToolCall) {
			defer wg.Done()
			o.logger.Info("dispatching tool", "tool", call.Function.Name, "user", inv.UserID)
			out := o.registry.Dispatch(ctx, inv, call.Function.Name, []byte(call.Function.Arguments))
			outputs[i] = chat.ToolOutput{ToolCallID: call.ID, Output: out}
		}(i, call)
	}
	wg.Wait()
	return outputs
}

func resolveLocation(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}
