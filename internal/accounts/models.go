package accounts

// Account status values. The OAuth callback inserts rows as VERIFIED;
// DECLINED is reserved for links the user has revoked.
const (
	StatusVerified = "VERIFIED"
	StatusDeclined = "DECLINED"
)

// EmailAccount is one linked Gmail mailbox for a user.
type EmailAccount struct {
	UserID       string `db:"user_id" json:"userId"`
	Email        string `db:"email" json:"email"`
	AccessToken  string `db:"access_token" json:"-"`
	RefreshToken string `db:"refresh_token" json:"-"`
	Status       string `db:"status" json:"status"`
	Principal    bool   `db:"principal" json:"principal"`
}
