package models

import "time"

// Email providers a connection can use.
const (
	ProviderGmail   = "gmail"
	ProviderOutlook = "outlook"
	ProviderYahoo   = "yahoo"
)

// Inquiry statuses.
const (
	InquiryNew      = "new"
	InquiryReplied  = "replied"
	InquiryArchived = "archived"
)

// Inquiry types produced by the classifier.
const (
	InquirySponsorship   = "sponsorship"
	InquiryCollaboration = "collaboration"
	InquiryAffiliate     = "affiliate"
	InquiryEvent         = "event"
	InquiryOther         = "other"
)

// IsValidProvider reports whether provider is supported.
func IsValidProvider(provider string) bool {
	switch provider {
	case ProviderGmail, ProviderOutlook, ProviderYahoo:
		return true
	}
	return false
}

// EmailConnection links a user's mailbox to CreatorTent. Token and password
// fields hold ciphertext while at rest; the store never sees plaintext.
type EmailConnection struct {
	ID               string `json:"id" db:"id"`
	UserID           string `json:"user_id" db:"user_id"`
	TentID           string `json:"tent_id,omitempty" db:"tent_id"`
	Provider         string `json:"provider" db:"provider"`
	EmailAddress     string `json:"email_address" db:"email_address"`
	AccessToken      string `json:"-" db:"access_token"`
	RefreshToken     string `json:"-" db:"refresh_token"`
	TokenExpiry      int64  `json:"token_expiry" db:"token_expiry"`
	IMAPPassword     string `json:"-" db:"imap_password"`
	AutoReplyEnabled bool   `json:"auto_reply_enabled" db:"auto_reply_enabled"`
	IsActive         bool   `json:"is_active" db:"is_active"`
	LastSyncedAt     *int64 `json:"last_synced_at" db:"last_synced_at"`
	CreatedAt        int64  `json:"created_at" db:"created_at"`
	UpdatedAt        int64  `json:"updated_at" db:"updated_at"`
}

// EmailInquiry is an inbound message the classifier judged to be a business opportunity.
type EmailInquiry struct {
	ID                string  `json:"id" db:"id"`
	ConnectionID      string  `json:"connection_id" db:"connection_id"`
	UserID            string  `json:"user_id" db:"user_id"`
	TentID            string  `json:"tent_id,omitempty" db:"tent_id"`
	MessageID         string  `json:"message_id" db:"message_id"`
	ThreadID          string  `json:"thread_id" db:"thread_id"`
	FromEmail         string  `json:"from_email" db:"from_email"`
	FromName          string  `json:"from_name" db:"from_name"`
	Subject           string  `json:"subject" db:"subject"`
	Snippet           string  `json:"snippet" db:"snippet"`
	ReceivedAt        int64   `json:"received_at" db:"received_at"`
	IsBusinessInquiry bool    `json:"is_business_inquiry" db:"is_business_inquiry"`
	Confidence        float64 `json:"confidence" db:"confidence"`
	InquiryType       string  `json:"inquiry_type" db:"inquiry_type"`
	BrandName         string  `json:"brand_name" db:"brand_name"`
	Budget            string  `json:"budget" db:"budget"`
	Summary           string  `json:"summary" db:"summary"`
	Status            string  `json:"status" db:"status"`
	AutoReplied       bool    `json:"auto_replied" db:"auto_replied"`
	RepliedAt         *int64  `json:"replied_at" db:"replied_at"`
	CreatedAt         int64   `json:"created_at" db:"created_at"`
}

// InboundMessage is a message fetched from a provider, before classification.
type InboundMessage struct {
	MessageID  string
	ThreadID   string
	FromEmail  string
	FromName   string
	Subject    string
	Body       string
	Snippet    string
	ReceivedAt time.Time
}

// OutboundMessage is a reply handed to a provider for delivery.
type OutboundMessage struct {
	From      string
	To        string
	Subject   string
	Body      string
	InReplyTo string
	ThreadID  string
}
