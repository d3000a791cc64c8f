package domain

// Reason explains an admission decision.
type Reason string

const (
	ReasonAdmitted    Reason = "admitted"
	ReasonDisabled    Reason = "auto_increment_disabled"
	ReasonSession     Reason = "session_marked"
	ReasonThreshold   Reason = "threshold_reached"
	ReasonCooldown    Reason = "cooldown_active"
	ReasonRaceLost    Reason = "race_lost"
	ReasonNoIdentity  Reason = "no_identity"
	ReasonInvalid     Reason = "invalid_input"
	ReasonUnavailable Reason = "unavailable"
	ReasonApplyFailed Reason = "apply_failed"
)

// Decision is the outcome of one (visitor, object, metric) evaluation.
type Decision struct {
	Metric   MetricType    `json:"metric"`
	Allowed  bool          `json:"allowed"`
	Reason   Reason        `json:"reason"`
	Counters *CounterState `json:"counters,omitempty"`
}

func Allow(m MetricType) Decision {
	return Decision{Metric: m, Allowed: true, Reason: ReasonAdmitted}
}

func Deny(m MetricType, reason Reason) Decision {
	return Decision{Metric: m, Allowed: false, Reason: reason}
}

// PageView is the inbound event raised once per qualifying page render.
type PageView struct {
	ObjectID   int64
	ObjectType ObjectType
	IP         string
	UserAgent  string
	Session    string
}
