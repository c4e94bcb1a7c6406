package tools

import "calbot/internal/scheduling"

// RegisterCatalog 注册全部八个内置工具
// RegisterCatalog wires the full built-in tool set onto the registry.
func RegisterCatalog(r *Registry, svc *scheduling.Service) {
	r.Register(NewScheduleAppointmentTool(svc))
	r.Register(NewCreatePersonalEventTool(svc))
	r.Register(NewGetAppointmentsTool(svc))
	r.Register(NewCancelAppointmentTool(svc))
	r.Register(NewCancelAllTool(svc))
	r.Register(NewPreviewCancellationTool(svc))
	r.Register(NewTrackPartialTool(svc))
	r.Register(NewSetAvailabilityTool(svc))
}
