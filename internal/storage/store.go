package storage

// Store 持久化接口 / Store is the persistence interface for the
// conversational core. All operations are keyed by user except the
// process-wide assistant identity.
type Store interface {
	// 约会操作 / Appointment operations
	CreateAppointment(a Appointment) error
	UpdateAppointmentSync(userID, id string, state SyncState, externalEventID, syncError string) error
	// AppointmentsInRange returns all appointments (any status) within
	// [startDate, endDate], ascending by (date, status, time). An empty
	// endDate means the single day startDate.
	AppointmentsInRange(userID, startDate, endDate string) ([]Appointment, error)
	// CancelAppointments flips the given records to cancelled in one
	// transaction and reports how many rows actually transitioned.
	CancelAppointments(userID string, ids []string) (int, error)

	// 槽位填充 / Slot-filling context
	SavePartialContext(userID string, pc PartialContext) error
	LoadPartialContext(userID string) (PartialContext, bool, error)
	ClearPartialContext(userID string) error

	// 批量取消预览 / Pending bulk cancellation
	SavePendingCancellation(userID string, pending PendingCancellation) error
	LoadPendingCancellation(userID string) (PendingCancellation, bool, error)
	ClearPendingCancellation(userID string) error

	// 每周可用时段 / Weekly availability
	SaveAvailability(userID string, week WeeklyAvailability) error
	LoadAvailability(userID string) (WeeklyAvailability, bool, error)

	// Assistant 身份与会话线程 / Assistant identity and threads
	LoadAssistantIdentity() (AssistantIdentity, bool, error)
	SaveAssistantIdentity(identity AssistantIdentity) error
	ClearAssistantIdentity() error
	LoadThread(userID string) (ThreadRecord, bool, error)
	SaveThread(userID string, rec ThreadRecord) error

	// 生命周期 / Lifecycle
	Close() error
}
