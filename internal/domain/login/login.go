package login

import "context"

// SuccessStatus is the status the auth api reports for a successful login.
const SuccessStatus = "logged in"

type Credentials struct {
	Username string `json:"username" form:"username" binding:"required,max=120"`
	Password string `json:"password" form:"password" binding:"required,max=256"`
}

// Outcome is the result of a login attempt: Accepted, Rejected or Failed.
type Outcome interface {
	isOutcome()
}

// Accepted means the auth api confirmed the credentials.
type Accepted struct {
	UserID string
	Role   string
}

// Rejected means the auth api answered but did not log the user in.
// Status is whatever it reported, verbatim.
type Rejected struct {
	Status string
}

// Failed means no usable answer came back (transport error, bad body, open circuit).
type Failed struct {
	Err error
}

func (Accepted) isOutcome() {}
func (Rejected) isOutcome() {}
func (Failed) isOutcome()   {}

func (f Failed) Error() string {
	if f.Err == nil {
		return "login failed"
	}
	return f.Err.Error()
}

type Authenticator interface {
	Login(ctx context.Context, creds Credentials) Outcome
}

// Response is the auth api's login body.
type Response struct {
	Status   string `json:"status"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Classify maps a decoded login body to an Outcome.
func Classify(resp Response) Outcome {
	if resp.Status == SuccessStatus {
		return Accepted{UserID: resp.Username, Role: resp.Role}
	}
	return Rejected{Status: resp.Status}
}
