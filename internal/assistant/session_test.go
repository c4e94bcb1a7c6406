package assistant

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"calbot/internal/chat"
	"calbot/internal/storage"
)

// fakeService scripts the remote API. Zero-value behavior: creation
// succeeds with the requested model, retrieval finds what was created.
type fakeService struct {
	nextID          int
	assistants      map[string]Identity
	threads         map[string]bool
	createModel     string // override the model creation reports
	retrieveErr     error
	createErr       error
	deleteErr       error
	createThreadErr error
	updateCalls     int
	createCalls     int
	deleteCalls     int
}

func newFakeService() *fakeService {
	return &fakeService{
		assistants: map[string]Identity{},
		threads:    map[string]bool{},
	}
}

func (f *fakeService) CreateAssistant(_ context.Context, model, _, _ string, _ []chat.ToolDef) (Identity, error) {
	f.createCalls++
	if f.createErr != nil {
		return Identity{}, f.createErr
	}
	if f.createModel != "" {
		model = f.createModel
	}
	f.nextID++
	id := Identity{AssistantID: fmt.Sprintf("asst_%d", f.nextID), Model: model}
	f.assistants[id.AssistantID] = id
	return id, nil
}

func (f *fakeService) RetrieveAssistant(_ context.Context, assistantID string) (Identity, error) {
	if f.retrieveErr != nil {
		return Identity{}, f.retrieveErr
	}
	id, ok := f.assistants[assistantID]
	if !ok {
		return Identity{}, errors.New("not found")
	}
	return id, nil
}

func (f *fakeService) UpdateAssistant(_ context.Context, _, _, _, _ string, _ []chat.ToolDef) error {
	f.updateCalls++
	return nil
}

func (f *fakeService) DeleteAssistant(_ context.Context, assistantID string) error {
	f.deleteCalls++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.assistants, assistantID)
	return nil
}

func (f *fakeService) CreateThread(context.Context) (string, error) {
	if f.createThreadErr != nil {
		return "", f.createThreadErr
	}
	f.nextID++
	id := fmt.Sprintf("thread_%d", f.nextID)
	f.threads[id] = true
	return id, nil
}

func (f *fakeService) RetrieveThread(_ context.Context, threadID string) error {
	if !f.threads[threadID] {
		return errors.New("not found")
	}
	return nil
}

func (f *fakeService) AppendUserMessage(context.Context, string, string) error { return nil }
func (f *fakeService) LatestAssistantMessage(context.Context, string) (string, error) {
	return "", nil
}
func (f *fakeService) CreateRun(context.Context, string, string) (string, error) { return "", nil }
func (f *fakeService) RetrieveRun(context.Context, string, string) (RunSnapshot, error) {
	return RunSnapshot{}, nil
}
func (f *fakeService) CancelRun(context.Context, string, string) error       { return nil }
func (f *fakeService) ActiveRuns(context.Context, string) ([]string, error)  { return nil, nil }
func (f *fakeService) SubmitToolOutputs(context.Context, string, string, []chat.ToolOutput) error {
	return nil
}

func newTestSession(t *testing.T, svc Service, model string) (*SessionManager, storage.Store) {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewSessionManager(svc, store, model, "calendar-assistant", nil, nil), store
}

func TestEnsureAssistantCreatesOnce(t *testing.T) {
	fake := newFakeService()
	mgr, store := newTestSession(t, fake, "gpt-4o-mini")
	ctx := context.Background()

	id, err := mgr.EnsureAssistant(ctx, time.Now(), time.UTC)
	if err != nil {
		t.Fatalf("EnsureAssistant: %v", err)
	}
	if id.AssistantID == "" || id.Model != "gpt-4o-mini" {
		t.Fatalf("identity = %+v", id)
	}

	stored, ok, _ := store.LoadAssistantIdentity()
	if !ok || stored.AssistantID != id.AssistantID {
		t.Fatalf("identity not persisted: %+v ok=%v", stored, ok)
	}

	// second call reconciles, does not recreate
	again, err := mgr.EnsureAssistant(ctx, time.Now(), time.UTC)
	if err != nil {
		t.Fatalf("second EnsureAssistant: %v", err)
	}
	if again.AssistantID != id.AssistantID {
		t.Fatalf("assistant changed: %s -> %s", id.AssistantID, again.AssistantID)
	}
	if fake.createCalls != 1 {
		t.Fatalf("createCalls = %d", fake.createCalls)
	}
	if fake.updateCalls != 1 {
		t.Fatalf("updateCalls = %d", fake.updateCalls)
	}
}

func TestEnsureAssistantRecreatesOnConfiguredModelChange(t *testing.T) {
	fake := newFakeService()
	mgr, store := newTestSession(t, fake, "gpt-4o-mini")
	ctx := context.Background()

	first, err := mgr.EnsureAssistant(ctx, time.Now(), time.UTC)
	if err != nil {
		t.Fatalf("EnsureAssistant: %v", err)
	}

	// reuse the same store with a different configured model
	mgr2 := NewSessionManager(fake, store, "gpt-4.1", "calendar-assistant", nil, nil)
	second, err := mgr2.EnsureAssistant(ctx, time.Now(), time.UTC)
	if err != nil {
		t.Fatalf("EnsureAssistant after model change: %v", err)
	}
	if second.AssistantID == first.AssistantID {
		t.Fatal("assistant should have been recreated")
	}
	if second.Model != "gpt-4.1" {
		t.Fatalf("model = %q", second.Model)
	}
	if fake.deleteCalls == 0 {
		t.Fatal("old assistant should have been deleted")
	}
}

func TestEnsureAssistantRecreatesWhenRemoteLost(t *testing.T) {
	fake := newFakeService()
	mgr, _ := newTestSession(t, fake, "gpt-4o-mini")
	ctx := context.Background()

	first, err := mgr.EnsureAssistant(ctx, time.Now(), time.UTC)
	if err != nil {
		t.Fatalf("EnsureAssistant: %v", err)
	}

	// the remote forgot the assistant
	delete(fake.assistants, first.AssistantID)
	second, err := mgr.EnsureAssistant(ctx, time.Now(), time.UTC)
	if err != nil {
		t.Fatalf("EnsureAssistant after remote loss: %v", err)
	}
	if second.AssistantID == first.AssistantID {
		t.Fatal("assistant should have been recreated")
	}
}

func TestEnsureAssistantRecreatesOnRemoteModelDrift(t *testing.T) {
	fake := newFakeService()
	mgr, _ := newTestSession(t, fake, "gpt-4o-mini")
	ctx := context.Background()

	first, err := mgr.EnsureAssistant(ctx, time.Now(), time.UTC)
	if err != nil {
		t.Fatalf("EnsureAssistant: %v", err)
	}

	// something changed the remote assistant's model underneath us
	fake.assistants[first.AssistantID] = Identity{AssistantID: first.AssistantID, Model: "gpt-3.5-turbo"}
	second, err := mgr.EnsureAssistant(ctx, time.Now(), time.UTC)
	if err != nil {
		t.Fatalf("EnsureAssistant after drift: %v", err)
	}
	if second.AssistantID == first.AssistantID {
		t.Fatal("drifted assistant should have been replaced")
	}
	if second.Model != "gpt-4o-mini" {
		t.Fatalf("model = %q", second.Model)
	}
}

func TestEnsureAssistantRejectsSubstitutedModel(t *testing.T) {
	fake := newFakeService()
	fake.createModel = "gpt-3.5-turbo"
	mgr, store := newTestSession(t, fake, "gpt-4o-mini")

	_, err := mgr.EnsureAssistant(context.Background(), time.Now(), time.UTC)
	if !errors.Is(err, ErrSessionUnavailable) {
		t.Fatalf("expected ErrSessionUnavailable, got %v", err)
	}
	// the substituted assistant must not survive
	if fake.deleteCalls == 0 {
		t.Fatal("substituted assistant should have been deleted")
	}
	if _, ok, _ := store.LoadAssistantIdentity(); ok {
		t.Fatal("no identity should be persisted")
	}
}

func TestEnsureAssistantCreateFailure(t *testing.T) {
	fake := newFakeService()
	fake.createErr = errors.New("api down")
	mgr, _ := newTestSession(t, fake, "gpt-4o-mini")

	_, err := mgr.EnsureAssistant(context.Background(), time.Now(), time.UTC)
	if !errors.Is(err, ErrSessionUnavailable) {
		t.Fatalf("expected ErrSessionUnavailable, got %v", err)
	}
}

func TestResolveThreadPersistsAndVerifies(t *testing.T) {
	fake := newFakeService()
	mgr, store := newTestSession(t, fake, "gpt-4o-mini")
	ctx := context.Background()

	first, err := mgr.ResolveThread(ctx, "u1")
	if err != nil {
		t.Fatalf("ResolveThread: %v", err)
	}
	second, err := mgr.ResolveThread(ctx, "u1")
	if err != nil {
		t.Fatalf("second ResolveThread: %v", err)
	}
	if first != second {
		t.Fatalf("thread changed: %s -> %s", first, second)
	}

	// remote thread disappears: a replacement is created and persisted
	delete(fake.threads, first)
	third, err := mgr.ResolveThread(ctx, "u1")
	if err != nil {
		t.Fatalf("ResolveThread after loss: %v", err)
	}
	if third == first {
		t.Fatal("lost thread should have been replaced")
	}
	record, ok, _ := store.LoadThread("u1")
	if !ok || record.ThreadID != third {
		t.Fatalf("thread record = %+v ok=%v", record, ok)
	}
}

func TestThreadFailuresAreSessionUnavailable(t *testing.T) {
	fake := newFakeService()
	mgr, _ := newTestSession(t, fake, "gpt-4o-mini")
	ctx := context.Background()

	fake.createThreadErr = errors.New("api down")
	if _, err := mgr.ResolveThread(ctx, "u1"); !errors.Is(err, ErrSessionUnavailable) {
		t.Fatalf("ResolveThread error = %v, want ErrSessionUnavailable", err)
	}
	if _, err := mgr.ReplaceThread(ctx, "u1", "thread_old"); !errors.Is(err, ErrSessionUnavailable) {
		t.Fatalf("ReplaceThread error = %v, want ErrSessionUnavailable", err)
	}
}

func TestReplaceThreadKeepsPrevious(t *testing.T) {
	fake := newFakeService()
	mgr, store := newTestSession(t, fake, "gpt-4o-mini")
	ctx := context.Background()

	old, err := mgr.ResolveThread(ctx, "u1")
	if err != nil {
		t.Fatalf("ResolveThread: %v", err)
	}
	replacement, err := mgr.ReplaceThread(ctx, "u1", old)
	if err != nil {
		t.Fatalf("ReplaceThread: %v", err)
	}
	if replacement == old {
		t.Fatal("replacement equals old thread")
	}
	record, ok, _ := store.LoadThread("u1")
	if !ok || record.ThreadID != replacement || record.PreviousThreadID != old {
		t.Fatalf("record = %+v ok=%v", record, ok)
	}
}
