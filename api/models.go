package api

import "time"

// LoginRequest is the JSON body for POST /auth/login. Username and
// password arrive SM2-encrypted under the static pre-login keypair;
// cli_pubkey is the client's session public key (128 hex, no marker).
type LoginRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	CliPubKey string `json:"cli_pubkey"`
}

// LoginResponse is returned from POST /auth/login.
type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	SvrPubKey    string `json:"svr_pubkey"`
}

// RefreshRequest is the JSON body for POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshResponse is returned from POST /auth/refresh.
type RefreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// MeResponse is returned from GET /auth/me. Username is SM2-encrypted
// for the session's client key.
type MeResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// CreateTransactionRequest is the JSON body for POST /transactions.
type CreateTransactionRequest struct {
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency,omitempty"`
	Description string `json:"description,omitempty"`
}

// TransactionRecord is one ledger entry.
type TransactionRecord struct {
	TransactionID string    `json:"transaction_id"`
	UserID        string    `json:"user_id"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency,omitempty"`
	Description   string    `json:"description,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ListTransactionsResponse is one page of GET /transactions/records.
type ListTransactionsResponse struct {
	Page     int                 `json:"page"`
	PageSize int                 `json:"page_size"`
	Items    []TransactionRecord `json:"items"`
	Total    int                 `json:"total"`
}
