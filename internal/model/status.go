package model

// ModerationStatus is the current standing of a user's account.
type ModerationStatus string

const (
	StatusActive        ModerationStatus = "active"
	StatusPendingReview ModerationStatus = "pending_review"
	StatusSuspended     ModerationStatus = "suspended"
	StatusBanned        ModerationStatus = "banned"
)

// Valid - check if the status is a known value.
func (s ModerationStatus) Valid() bool {
	switch s {
	case StatusActive, StatusPendingReview, StatusSuspended, StatusBanned:
		return true
	default:
		return false
	}
}

// Sanctioned - true for statuses that restrict the account.
func (s ModerationStatus) Sanctioned() bool {
	return s == StatusSuspended || s == StatusBanned
}

// Appealable - true for statuses the user may contest with an appeal.
func (s ModerationStatus) Appealable() bool {
	switch s {
	case StatusPendingReview, StatusSuspended, StatusBanned:
		return true
	default:
		return false
	}
}

// ReportCategory is the kind of violation a report claims.
type ReportCategory string

const (
	CategorySpam                 ReportCategory = "spam"
	CategoryHarassment           ReportCategory = "harassment"
	CategoryInappropriateContent ReportCategory = "inappropriate_content"
	CategoryFakeAccount          ReportCategory = "fake_account"
	CategoryCopyright            ReportCategory = "copyright"
	CategoryOther                ReportCategory = "other"
)

// Valid - check if the category is a known value.
func (c ReportCategory) Valid() bool {
	switch c {
	case CategorySpam, CategoryHarassment, CategoryInappropriateContent,
		CategoryFakeAccount, CategoryCopyright, CategoryOther:
		return true
	default:
		return false
	}
}

// ReportOutcome is the admin decision that closes a report.
type ReportOutcome string

const (
	OutcomeNoAction ReportOutcome = "no_action"
	OutcomeWarn     ReportOutcome = "warn"
	OutcomeSuspend  ReportOutcome = "suspend"
	OutcomeBan      ReportOutcome = "ban"
)

// Valid - check if the outcome is a known value.
func (o ReportOutcome) Valid() bool {
	switch o {
	case OutcomeNoAction, OutcomeWarn, OutcomeSuspend, OutcomeBan:
		return true
	default:
		return false
	}
}

// AtFault - true when the outcome counts as a violation for the reported user.
func (o ReportOutcome) AtFault() bool {
	return o.Valid() && o != OutcomeNoAction
}

// AppealStatus is the state of an appeal.
type AppealStatus string

const (
	AppealPending  AppealStatus = "pending"
	AppealAccepted AppealStatus = "accepted"
	AppealRejected AppealStatus = "rejected"
)

// Valid - check if the appeal status is a known value.
func (s AppealStatus) Valid() bool {
	switch s {
	case AppealPending, AppealAccepted, AppealRejected:
		return true
	default:
		return false
	}
}

// Terminal - true when the appeal can no longer change.
func (s AppealStatus) Terminal() bool {
	return s == AppealAccepted || s == AppealRejected
}

// AppealDecision is the reviewer's verdict on a pending appeal.
type AppealDecision string

const (
	DecisionAccept AppealDecision = "accepted"
	DecisionReject AppealDecision = "rejected"
)

// Valid - check if the decision is a known value.
func (d AppealDecision) Valid() bool {
	return d == DecisionAccept || d == DecisionReject
}

// Status - the appeal status the decision transitions to.
func (d AppealDecision) Status() AppealStatus {
	if d == DecisionAccept {
		return AppealAccepted
	}

	return AppealRejected
}
