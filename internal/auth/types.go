package auth

// UserRecord is a registered account as persisted in the roster.
type UserRecord struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

// SessionUser is the part of a UserRecord that is "logged in".
type SessionUser struct {
	Email    string `json:"email"`
	Username string `json:"username"`
}

func (u UserRecord) Session() SessionUser {
	return SessionUser{Email: u.Email, Username: u.Username}
}

// UserView is a roster entry without its password.
type UserView struct {
	Email    string `json:"email"`
	Username string `json:"username"`
}

type Origin int

const (
	SameTab Origin = iota
	OtherTab
)

func (o Origin) String() string {
	if o == OtherTab {
		return "other-tab"
	}
	return "same-tab"
}

// Change is delivered to subscribers on every login and logout. User is nil
// after a logout.
type Change struct {
	User   *SessionUser
	Origin Origin
}
