package storage

// AppointmentKind 约会类型 / AppointmentKind distinguishes meetings from personal events.
type AppointmentKind string

const (
	KindMeeting  AppointmentKind = "meeting"
	KindPersonal AppointmentKind = "personal"
)

// AppointmentStatus is the lifecycle state of an appointment. Cancelled
// is terminal: records are superseded, never re-activated.
type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCancelled AppointmentStatus = "cancelled"
)

// SyncState records the outcome of the external calendar sync attempt.
type SyncState string

const (
	SyncNotSynced SyncState = "not_synced"
	SyncSynced    SyncState = "synced"
	SyncFailed    SyncState = "sync_failed"
)

// Appointment 约会记录 / Appointment is one scheduled or cancelled calendar entry.
// Date uses "2006-01-02"; Time uses "15:04" or "" for all-day/TBD.
// Time == "" implies DurationMinutes == 0.
type Appointment struct {
	ID              string            `json:"id"`
	UserID          string            `json:"-"`
	Title           string            `json:"title"`
	Date            string            `json:"date"`
	Time            string            `json:"time,omitempty"`
	DurationMinutes int               `json:"duration_minutes,omitempty"`
	Attendees       []string          `json:"attendees,omitempty"`
	Location        string            `json:"location,omitempty"`
	Description     string            `json:"description,omitempty"`
	Kind            AppointmentKind   `json:"kind"`
	Status          AppointmentStatus `json:"status"`
	ExternalEventID string            `json:"external_event_id,omitempty"`
	SyncState       SyncState         `json:"sync_state"`
	SyncError       string            `json:"sync_error,omitempty"`
	CreatedAt       string            `json:"created_at,omitempty"`
	UpdatedAt       string            `json:"updated_at,omitempty"`
}

// PartialContext 进行中的槽位填充状态，每用户最多一条
// PartialContext is the in-flight slot-filling state, at most one per user.
type PartialContext struct {
	EventKind string            `json:"event_kind"`
	Collected map[string]string `json:"collected_fields"`
	Missing   []string          `json:"missing_fields"`
	UpdatedAt string            `json:"updated_at"`
}

// CancellationCandidate is one row of a bulk-cancellation preview.
type CancellationCandidate struct {
	Title     string   `json:"title"`
	Time      string   `json:"time,omitempty"`
	Attendees []string `json:"attendees,omitempty"`
}

// PendingCancellation is a previewed bulk cancellation awaiting a
// yes/no confirmation from the user.
type PendingCancellation struct {
	StartDate  string                  `json:"start_date"`
	EndDate    string                  `json:"end_date,omitempty"`
	Candidates []CancellationCandidate `json:"candidates"`
	Type       string                  `json:"cancellation_type"` // all | specific
	CreatedAt  string                  `json:"created_at"`
}

// DayWindow is the available window of one weekday, "15:04" bounds.
type DayWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// WeeklyAvailability maps lowercase weekday names to windows.
type WeeklyAvailability map[string]DayWindow

// AssistantIdentity 进程级唯一的远端 assistant 身份
// AssistantIdentity is the process-wide remote assistant identity.
type AssistantIdentity struct {
	AssistantID string `json:"assistant_id"`
	Model       string `json:"model"`
	CreatedAt   string `json:"created_at"`
}

// ThreadRecord is the per-user conversation thread. PreviousThreadID is
// kept for audit when a thread is abandoned because of a stuck run.
type ThreadRecord struct {
	ThreadID         string `json:"thread_id"`
	PreviousThreadID string `json:"previous_thread_id,omitempty"`
	CreatedAt        string `json:"created_at"`
}
