package domain

// NGO is the on-chain NGO account view the admin actions operate on. Only the
// fields the idempotence filter and progress display need are carried; the
// authoritative record lives on-chain.
type NGO struct {
	Authority     string
	Address       string
	Name          string
	IsVerified    bool
	IsActive      bool
	IsBlacklisted bool
}

// InTargetState reports whether the NGO is already in the state the action
// would put it in, making the action a no-op for this target.
func (n NGO) InTargetState(action ActionKind) bool {
	switch action {
	case ActionVerify:
		return n.IsVerified
	case ActionRevokeVerification:
		return !n.IsVerified
	case ActionActivate:
		return n.IsActive
	case ActionDeactivate:
		return !n.IsActive
	case ActionBlacklist:
		return n.IsBlacklisted
	case ActionRemoveBlacklist:
		return !n.IsBlacklisted
	}
	return false
}

// SkipNote is the informational text attached to a target excluded by the
// idempotence filter.
func (a ActionKind) SkipNote() string {
	switch a {
	case ActionVerify:
		return "Already verified"
	case ActionRevokeVerification:
		return "Already unverified"
	case ActionActivate:
		return "Already active"
	case ActionDeactivate:
		return "Already deactivated"
	case ActionBlacklist:
		return "Already blacklisted"
	case ActionRemoveBlacklist:
		return "Not blacklisted"
	}
	return ""
}
