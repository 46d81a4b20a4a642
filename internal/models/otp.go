package models

import "time"

// OTPRecord is the single outstanding code for a phone number. CodeHash is a
// bcrypt digest of the code; the plaintext never reaches the store.
type OTPRecord struct {
	Phone     string    `json:"phone" dynamodbav:"Phone"`
	CodeHash  string    `json:"code_hash" dynamodbav:"CodeHash"`
	CreatedAt time.Time `json:"created_at" dynamodbav:"CreatedAt"`
}

// ExpiredAt reports whether the record is past its TTL at now. Physical
// eviction by the backend does not matter; this is the only expiry check.
func (r *OTPRecord) ExpiredAt(now time.Time, ttl time.Duration) bool {
	return now.After(r.CreatedAt.Add(ttl))
}
