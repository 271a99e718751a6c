package api

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Handlers      int    `json:"handlers"`
	ActiveQueues  int    `json:"active_queues"`
}

// HandlerInfo describes one registered handler for GET /v1/handlers
type HandlerInfo struct {
	Name           string   `json:"name"`
	Aliases        []string `json:"aliases"`
	Category       string   `json:"category,omitempty"`
	Description    string   `json:"description,omitempty"`
	Usage          string   `json:"usage,omitempty"`
	CooldownSecs   int      `json:"cooldown_seconds,omitempty"`
	DailyLimit     int      `json:"daily_limit,omitempty"`
	Role           string   `json:"role,omitempty"`
	GroupOnly      bool     `json:"group_only,omitempty"`
	PrivateOnly    bool     `json:"private_only,omitempty"`
	Experimental   bool     `json:"experimental,omitempty"`
	BotMustBeAdmin bool     `json:"bot_must_be_admin,omitempty"`
	Hidden         bool     `json:"hidden,omitempty"`
	Source         string   `json:"source"`
}

// ReloadResponse is returned by POST /v1/handlers/reload
type ReloadResponse struct {
	Loaded int `json:"loaded"`
}
