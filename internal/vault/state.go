package vault

// State is the lifecycle position of a Vault.
type State int

const (
	StateLoading State = iota
	StateNeedsSetup
	StateSettingUp
	StateLocked
	StateUnlocking
	StateUnlocked
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateNeedsSetup:
		return "needs_setup"
	case StateSettingUp:
		return "setting_up"
	case StateLocked:
		return "locked"
	case StateUnlocking:
		return "unlocking"
	case StateUnlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}
