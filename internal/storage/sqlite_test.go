package storage

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_AppointmentRangeAndSort(t *testing.T) {
	store := newTestStore(t)

	appts := []Appointment{
		{ID: "a3", UserID: "u1", Title: "Late", Date: "2025-07-26", Time: "18:00", Kind: KindMeeting},
		{ID: "a1", UserID: "u1", Title: "Early", Date: "2025-07-25", Time: "09:00", Kind: KindMeeting},
		{ID: "a2", UserID: "u1", Title: "Noon", Date: "2025-07-25", Time: "12:00", Kind: KindPersonal},
		{ID: "b1", UserID: "u2", Title: "Other user", Date: "2025-07-25", Time: "09:00", Kind: KindMeeting},
	}
	for _, a := range appts {
		if err := store.CreateAppointment(a); err != nil {
			t.Fatalf("CreateAppointment(%s): %v", a.ID, err)
		}
	}

	got, err := store.AppointmentsInRange("u1", "2025-07-25", "2025-07-26")
	if err != nil {
		t.Fatalf("AppointmentsInRange: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len=%d, want 3", len(got))
	}
	order := []string{"a1", "a2", "a3"}
	for i, id := range order {
		if got[i].ID != id {
			t.Fatalf("position %d = %s, want %s", i, got[i].ID, id)
		}
	}

	// single day: empty end date means start date
	day, err := store.AppointmentsInRange("u1", "2025-07-25", "")
	if err != nil {
		t.Fatalf("AppointmentsInRange single day: %v", err)
	}
	if len(day) != 2 {
		t.Fatalf("single day len=%d, want 2", len(day))
	}
}

func TestSQLiteStore_CancelAppointments(t *testing.T) {
	store := newTestStore(t)

	for _, id := range []string{"a1", "a2", "a3"} {
		if err := store.CreateAppointment(Appointment{ID: id, UserID: "u1", Date: "2025-07-25", Kind: KindMeeting}); err != nil {
			t.Fatalf("CreateAppointment: %v", err)
		}
	}
	n, err := store.CancelAppointments("u1", []string{"a1", "a2"})
	if err != nil {
		t.Fatalf("CancelAppointments: %v", err)
	}
	if n != 2 {
		t.Fatalf("cancelled=%d, want 2", n)
	}

	// already-cancelled rows do not transition again
	n, err = store.CancelAppointments("u1", []string{"a1", "a3"})
	if err != nil {
		t.Fatalf("CancelAppointments second pass: %v", err)
	}
	if n != 1 {
		t.Fatalf("cancelled=%d, want 1", n)
	}

	got, _ := store.AppointmentsInRange("u1", "2025-07-25", "")
	cancelled := 0
	for _, a := range got {
		if a.Status == StatusCancelled {
			cancelled++
		}
	}
	if cancelled != 3 {
		t.Fatalf("cancelled records=%d, want 3", cancelled)
	}
}

func TestSQLiteStore_UpdateAppointmentSync(t *testing.T) {
	store := newTestStore(t)
	if err := store.CreateAppointment(Appointment{ID: "a1", UserID: "u1", Date: "2025-07-25", Kind: KindMeeting}); err != nil {
		t.Fatalf("CreateAppointment: %v", err)
	}
	if err := store.UpdateAppointmentSync("u1", "a1", SyncSynced, "evt_123", ""); err != nil {
		t.Fatalf("UpdateAppointmentSync: %v", err)
	}
	got, _ := store.AppointmentsInRange("u1", "2025-07-25", "")
	if got[0].SyncState != SyncSynced || got[0].ExternalEventID != "evt_123" {
		t.Fatalf("sync not recorded: %+v", got[0])
	}
	if err := store.UpdateAppointmentSync("u1", "missing", SyncSynced, "x", ""); err == nil {
		t.Fatalf("expected error for unknown appointment")
	}
}

func TestSQLiteStore_PartialContext(t *testing.T) {
	store := newTestStore(t)

	pc := PartialContext{
		EventKind: "meeting",
		Collected: map[string]string{"date": "2025-07-25"},
		Missing:   []string{"time"},
	}
	if err := store.SavePartialContext("u1", pc); err != nil {
		t.Fatalf("SavePartialContext: %v", err)
	}
	loaded, ok, err := store.LoadPartialContext("u1")
	if err != nil || !ok {
		t.Fatalf("LoadPartialContext: ok=%v err=%v", ok, err)
	}
	if loaded.Collected["date"] != "2025-07-25" || len(loaded.Missing) != 1 || loaded.Missing[0] != "time" {
		t.Fatalf("loaded=%+v", loaded)
	}

	// overwrite on save
	pc.Missing = []string{"time", "duration"}
	if err := store.SavePartialContext("u1", pc); err != nil {
		t.Fatalf("SavePartialContext overwrite: %v", err)
	}
	loaded, _, _ = store.LoadPartialContext("u1")
	if len(loaded.Missing) != 2 {
		t.Fatalf("missing=%v after overwrite", loaded.Missing)
	}

	if err := store.ClearPartialContext("u1"); err != nil {
		t.Fatalf("ClearPartialContext: %v", err)
	}
	_, ok, _ = store.LoadPartialContext("u1")
	if ok {
		t.Fatalf("partial context should be gone")
	}
}

func TestSQLiteStore_PendingCancellation(t *testing.T) {
	store := newTestStore(t)

	p := PendingCancellation{
		StartDate: "2025-07-25",
		Type:      "all",
		Candidates: []CancellationCandidate{
			{Title: "Review", Time: "14:00"},
		},
	}
	if err := store.SavePendingCancellation("u1", p); err != nil {
		t.Fatalf("SavePendingCancellation: %v", err)
	}
	loaded, ok, err := store.LoadPendingCancellation("u1")
	if err != nil || !ok {
		t.Fatalf("LoadPendingCancellation: ok=%v err=%v", ok, err)
	}
	if loaded.StartDate != "2025-07-25" || len(loaded.Candidates) != 1 {
		t.Fatalf("loaded=%+v", loaded)
	}
	if loaded.CreatedAt == "" {
		t.Fatalf("created_at should be stamped")
	}
	if err := store.ClearPendingCancellation("u1"); err != nil {
		t.Fatalf("ClearPendingCancellation: %v", err)
	}
	_, ok, _ = store.LoadPendingCancellation("u1")
	if ok {
		t.Fatalf("pending cancellation should be gone")
	}
}

func TestSQLiteStore_IdentityAndThreads(t *testing.T) {
	store := newTestStore(t)

	_, ok, err := store.LoadAssistantIdentity()
	if err != nil || ok {
		t.Fatalf("empty identity: ok=%v err=%v", ok, err)
	}
	if err := store.SaveAssistantIdentity(AssistantIdentity{AssistantID: "asst_1", Model: "gpt-4o-mini"}); err != nil {
		t.Fatalf("SaveAssistantIdentity: %v", err)
	}
	// singleton: second save replaces
	if err := store.SaveAssistantIdentity(AssistantIdentity{AssistantID: "asst_2", Model: "gpt-4o-mini"}); err != nil {
		t.Fatalf("SaveAssistantIdentity replace: %v", err)
	}
	ident, ok, _ := store.LoadAssistantIdentity()
	if !ok || ident.AssistantID != "asst_2" {
		t.Fatalf("identity=%+v", ident)
	}
	if err := store.ClearAssistantIdentity(); err != nil {
		t.Fatalf("ClearAssistantIdentity: %v", err)
	}
	_, ok, _ = store.LoadAssistantIdentity()
	if ok {
		t.Fatalf("identity should be cleared")
	}

	if err := store.SaveThread("u1", ThreadRecord{ThreadID: "thread_1"}); err != nil {
		t.Fatalf("SaveThread: %v", err)
	}
	if err := store.SaveThread("u1", ThreadRecord{ThreadID: "thread_2", PreviousThreadID: "thread_1"}); err != nil {
		t.Fatalf("SaveThread replace: %v", err)
	}
	rec, ok, _ := store.LoadThread("u1")
	if !ok || rec.ThreadID != "thread_2" || rec.PreviousThreadID != "thread_1" {
		t.Fatalf("thread=%+v", rec)
	}
}

func TestSQLiteStore_Availability(t *testing.T) {
	store := newTestStore(t)

	week := WeeklyAvailability{
		"monday": {Start: "09:00", End: "17:00"},
	}
	if err := store.SaveAvailability("u1", week); err != nil {
		t.Fatalf("SaveAvailability: %v", err)
	}
	loaded, ok, err := store.LoadAvailability("u1")
	if err != nil || !ok {
		t.Fatalf("LoadAvailability: ok=%v err=%v", ok, err)
	}
	if loaded["monday"].Start != "09:00" {
		t.Fatalf("loaded=%+v", loaded)
	}
}

func TestSQLiteStore_RangeQuerySurfacesScanErrors(t *testing.T) {
	store := newTestStore(t)

	// a row with a non-numeric duration cannot be scanned; the query
	// must report it rather than drop the row
	_, err := store.db.Exec(`INSERT INTO appointments
		(id, user_id, title, date, duration_min, created_at, updated_at)
		VALUES ('a1', 'u1', 'Corrupt', '2025-07-25', 'abc', '2025-07-01T00:00:00Z', '2025-07-01T00:00:00Z')`)
	if err != nil {
		t.Fatalf("insert corrupt row: %v", err)
	}

	if _, err := store.AppointmentsInRange("u1", "2025-07-25", ""); err == nil {
		t.Fatal("expected a scan error for the corrupt row")
	}
}
