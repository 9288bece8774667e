package domain

// AlertRule is a configurable clinical alert: a CEL expression over
// patient facts and per-risk probabilities that, when true, attaches an
// alert to the prediction. Invalid expressions are rejected at startup.
type AlertRule struct {
	ID         string `json:"id" koanf:"id"`
	Expression string `json:"expression" koanf:"expression"`
	Message    string `json:"message" koanf:"message"`
	Severity   string `json:"severity" koanf:"severity"` // "info", "warning", "critical"
	Enabled    bool   `json:"enabled" koanf:"enabled"`
}

// Alert is a fired alert rule attached to a prediction.
type Alert struct {
	RuleID   string `json:"ruleId"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}
