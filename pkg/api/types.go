package api

import "time"

// SignInRequest is the body of POST /api/auth/signin.
type SignInRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	Password        string `json:"password"`
}

// SignUpRequest is the body of POST /api/auth/signup.
type SignUpRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries an issued access token.
type TokenResponse struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// StatusResponse is a generic success body.
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// AvailabilityResponse answers username and email availability checks.
type AvailabilityResponse struct {
	Available bool `json:"available"`
}

// UserSummary describes the authenticated caller.
type UserSummary struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	Name        string   `json:"name"`
	Authorities []string `json:"authorities"`
}

// UserProfile is the public view of a user.
type UserProfile struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}
