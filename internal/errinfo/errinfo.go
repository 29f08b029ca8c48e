package errinfo

// ErrorInfo is the structured error payload returned across the RPC boundary.
type ErrorInfo struct {
	ErrorCode  string   `json:"error_code"`
	Phase      string   `json:"phase,omitempty"`
	Retryable  bool     `json:"retryable"`
	Actions    []string `json:"actions,omitempty"`
	DocumentID string   `json:"document_id,omitempty"`
	ModelID    string   `json:"model_id,omitempty"`
	Detail     string   `json:"detail,omitempty"`
}

const (
	CodeProviderNotConfigured = "PROVIDER_NOT_CONFIGURED"
	CodeProviderAuthFailed    = "PROVIDER_AUTH_FAILED"
	CodeProviderUnavailable   = "PROVIDER_UNAVAILABLE"
	CodeNetworkUnavailable    = "NETWORK_UNAVAILABLE"
	CodeEgressBlocked         = "EGRESS_BLOCKED_BY_POLICY"
	CodeValidationFailed      = "VALIDATION_FAILED"
	CodeDocumentNotLoaded     = "DOCUMENT_NOT_LOADED"
	CodeFileReadFailed        = "FILE_READ_FAILED"
	CodeFileWriteFailed       = "FILE_WRITE_FAILED"
	CodeAgentTurnLimit        = "AGENT_TURN_LIMIT_REACHED"
	CodeAgentRunActive        = "AGENT_RUN_ACTIVE"
	CodeUserCanceled          = "USER_CANCELED"
)

const (
	ActionRetry        = "retry"
	ActionOpenSettings = "open_settings"
)

const (
	PhaseDocument = "document"
	PhaseOutline  = "outline"
	PhaseConcept  = "concept"
	PhaseAgent    = "agent"
	PhaseReview   = "review"
	PhaseSettings = "settings"
)

func ProviderNotConfigured(phase string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeProviderNotConfigured,
		Phase:     phase,
		Retryable: false,
		Actions:   []string{ActionOpenSettings},
	}
}

func ProviderAuthFailed(phase string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeProviderAuthFailed,
		Phase:     phase,
		Retryable: false,
		Actions:   []string{ActionOpenSettings},
	}
}

func ProviderUnavailable(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeProviderUnavailable,
		Phase:     phase,
		Retryable: true,
		Actions:   []string{ActionRetry},
		Detail:    detail,
	}
}

func NetworkUnavailable(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeNetworkUnavailable,
		Phase:     phase,
		Retryable: true,
		Actions:   []string{ActionRetry},
		Detail:    detail,
	}
}

func EgressBlocked(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeEgressBlocked,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}

func ValidationFailed(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeValidationFailed,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}

func DocumentNotLoaded(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeDocumentNotLoaded,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}

func FileReadFailed(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeFileReadFailed,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}

func FileWriteFailed(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeFileWriteFailed,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}

func AgentTurnLimit(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeAgentTurnLimit,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}

func AgentRunActive(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeAgentRunActive,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}

func UserCanceled(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeUserCanceled,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}
