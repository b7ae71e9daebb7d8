package transfer

import "golang.org/x/oauth2"

type AccountCreation struct {
	AccountType string `json:"account_type"`
}

// AccountCredential carries a token obtained outside this service.
type AccountCredential struct {
	Token *oauth2.Token `json:"token"`
}

type AccountProfile struct {
	AccountID   int64  `json:"account_id"`
	AccountType string `json:"account_type"`
	Username    string `json:"username"`
	AvatarURL   string `json:"avatar_url"`
	ProfileURL  string `json:"profile_url"`
	Ready       bool   `json:"ready"`
}

type UsernameSearch struct {
	Query     string   `json:"query"`
	Usernames []string `json:"usernames"`
}
