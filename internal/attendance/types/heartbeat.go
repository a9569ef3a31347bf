package types

type HeartbeatRequest struct {
	DeviceID        string `json:"device_id"`
	AgentVersion    string `json:"agent_version,omitempty"`
	UptimeSeconds   uint64 `json:"uptime_s,omitempty"`
	PendingCount    int64  `json:"pending_count"`
	FailedCount     int64  `json:"failed_count"`
	RejectedCount   int64  `json:"rejected_count,omitempty"`
	OldestPendingAt string `json:"oldest_pending_at,omitempty"`
	IP              string `json:"ip,omitempty"`
	Sequence        uint64 `json:"seq,omitempty"`
}

type HeartbeatResponse struct {
	OK         bool   `json:"ok"`
	Known      bool   `json:"known"`
	DeviceID   string `json:"device_id"`
	ServerTime string `json:"server_time"`
}
