package models

import "time"

// PremiumRecord is the stored premium flag of a user.
type PremiumRecord struct {
	UserID    int64
	IsPremium bool
	ExpiresAt *time.Time
}

// Consumables are the per-user balances shown by the app.
type Consumables struct {
	Boosts         int `json:"boosts"`
	SuperLikes     int `json:"superlikes"`
	MessageCredits int `json:"message_credits"`
	GiftCredits    int `json:"gift_credits"`
}
