package model

import "time"

// Account roles.
const (
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// Account is an operator identity. Callsign is stored upper-cased and is
// unique regardless of the case it was registered with.
//
// Enabled is nullable: accounts created before approval existed carry no
// value and are treated as enabled.
type Account struct {
	ID           uint64    `json:"id"`
	Username     string    `json:"username"`
	Callsign     string    `json:"callsign"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Enabled      *bool     `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// IsEnabled reports whether the account may sign in.
func (a Account) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// IsAdmin reports whether the account holds the admin role.
func (a Account) IsAdmin() bool { return a.Role == RoleAdmin }

// AccountView is the public JSON shape of an account.
type AccountView struct {
	ID        uint64    `json:"id"`
	Username  string    `json:"username"`
	Callsign  string    `json:"callsign"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	IsEnabled bool      `json:"isEnabled"`
	CreatedAt time.Time `json:"createdAt"`
}

// View strips credentials and resolves the legacy enabled flag.
func (a Account) View() AccountView {
	return AccountView{
		ID:        a.ID,
		Username:  a.Username,
		Callsign:  a.Callsign,
		Email:     a.Email,
		Role:      a.Role,
		IsEnabled: a.IsEnabled(),
		CreatedAt: a.CreatedAt,
	}
}

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool { return &b }
