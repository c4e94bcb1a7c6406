package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"calbot/internal/chat"
	"calbot/internal/storage"
)

// SessionManager 维护远端 assistant 身份与每用户线程
// SessionManager owns the remote assistant identity and the per-user
// threads, reconciling persisted state with the remote API.
type SessionManager struct {
	svc      Service
	store    storage.Store
	model    string
	name     string
	toolDefs []chat.ToolDef
	logger   *slog.Logger

	mu sync.Mutex
}

func NewSessionManager(svc Service, store storage.Store, model, name string, toolDefs []chat.ToolDef, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		svc:      svc,
		store:    store,
		model:    model,
		name:     name,
		toolDefs: toolDefs,
		logger:   logger.With("component", "assistant"),
	}
}

// EnsureAssistant 幂等对账:模型漂移即删除重建,否则刷新指令
// EnsureAssistant reconciles the persisted identity against the remote
// assistant. A model mismatch on either side means delete and recreate;
// a matching assistant gets its instructions and tools refreshed. The
// call is idempotent and safe to repeat every turn.
func (m *SessionManager) EnsureAssistant(ctx context.Context, now time.Time, loc *time.Location) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	instructions := BuildInstructions(now, loc)

	stored, ok, err := m.store.LoadAssistantIdentity()
	if err != nil {
		return Identity{}, fmt.Errorf("load assistant identity: %w", err)
	}
	if ok && stored.Model != m.model {
		m.logger.Info("configured model changed, recreating assistant",
			"stored", stored.Model, "configured", m.model)
		m.discard(ctx, stored.AssistantID)
		ok = false
	}
	if ok {
		remote, err := m.svc.RetrieveAssistant(ctx, stored.AssistantID)
		switch {
		case err != nil:
			// remote side lost or forgot the assistant
			m.logger.Warn("stored assistant not retrievable, recreating",
				"assistant", stored.AssistantID, "error", err)
		case remote.Model != m.model:
			m.logger.Info("remote model drifted, recreating assistant",
				"remote", remote.Model, "configured", m.model)
			m.discard(ctx, stored.AssistantID)
		default:
			if err := m.svc.UpdateAssistant(ctx, stored.AssistantID, m.model, m.name, instructions, m.toolDefs); err != nil {
				return Identity{}, fmt.Errorf("%w: refresh instructions: %v", ErrSessionUnavailable, err)
			}
			return remote, nil
		}
	}

	return m.create(ctx, instructions)
}

func (m *SessionManager) create(ctx context.Context, instructions string) (Identity, error) {
	created, err := m.svc.CreateAssistant(ctx, m.model, m.name, instructions, m.toolDefs)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	if created.Model != m.model {
		// the API silently substituted a model; do not operate on it
		m.discard(ctx, created.AssistantID)
		return Identity{}, fmt.Errorf("%w: requested model %s, got %s", ErrSessionUnavailable, m.model, created.Model)
	}
	err = m.store.SaveAssistantIdentity(storage.AssistantIdentity{
		AssistantID: created.AssistantID,
		Model:       created.Model,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Identity{}, fmt.Errorf("save assistant identity: %w", err)
	}
	m.logger.Info("assistant created", "assistant", created.AssistantID, "model", created.Model)
	return created, nil
}

// discard deletes the remote assistant and clears the stored identity,
// best-effort on both sides.
func (m *SessionManager) discard(ctx context.Context, assistantID string) {
	if assistantID != "" {
		if err := m.svc.DeleteAssistant(ctx, assistantID); err != nil {
			m.logger.Warn("delete assistant failed", "assistant", assistantID, "error", err)
		}
	}
	if err := m.store.ClearAssistantIdentity(); err != nil {
		m.logger.Warn("clear assistant identity failed", "error", err)
	}
}

// ResolveThread returns the user's thread, verifying a persisted one
// still exists remotely and creating a fresh one otherwise.
func (m *SessionManager) ResolveThread(ctx context.Context, userID string) (string, error) {
	record, ok, err := m.store.LoadThread(userID)
	if err != nil {
		return "", fmt.Errorf("%w: load thread: %v", ErrSessionUnavailable, err)
	}
	if ok {
		if err := m.svc.RetrieveThread(ctx, record.ThreadID); err == nil {
			return record.ThreadID, nil
		}
		m.logger.Warn("stored thread not retrievable, creating a new one",
			"user", userID, "thread", record.ThreadID)
	}

	threadID, err := m.svc.CreateThread(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: create thread: %v", ErrSessionUnavailable, err)
	}
	err = m.store.SaveThread(userID, storage.ThreadRecord{
		ThreadID:  threadID,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", fmt.Errorf("%w: save thread: %v", ErrSessionUnavailable, err)
	}
	return threadID, nil
}

// ReplaceThread abandons a wedged thread and starts a fresh one for
// the user, keeping the old ID for diagnosis.
func (m *SessionManager) ReplaceThread(ctx context.Context, userID, oldThreadID string) (string, error) {
	threadID, err := m.svc.CreateThread(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: create replacement thread: %v", ErrSessionUnavailable, err)
	}
	err = m.store.SaveThread(userID, storage.ThreadRecord{
		ThreadID:         threadID,
		PreviousThreadID: oldThreadID,
		CreatedAt:        time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", fmt.Errorf("%w: save replacement thread: %v", ErrSessionUnavailable, err)
	}
	m.logger.Info("thread replaced", "user", userID, "old", oldThreadID, "new", threadID)
	return threadID, nil
}
