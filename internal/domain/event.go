package domain

type SchedulerEvent struct {
	EventType string
	Payload   any
}

type SessionOverriddenPayload struct {
	OverrideID  string `json:"override_id"`
	SlotID      string `json:"slot_id,omitempty"`
	Date        string `json:"date"`
	Action      string `json:"action"`
	NewStart    string `json:"new_start,omitempty"`
	NewEnd      string `json:"new_end,omitempty"`
	RequestedBy string `json:"requested_by"`
}

type SessionsMaterializedPayload struct {
	Date      string `json:"date"`
	Scheduled int    `json:"scheduled"`
	Cancelled int    `json:"cancelled"`
	Skipped   int    `json:"skipped"`
}
