package models

import "time"

// ProviderKind enumerates the supported model provider protocols.
const (
	ProviderKindOpenAI    = "openai"
	ProviderKindAnthropic = "anthropic"
)

// Provider is a model provider endpoint configured by a user.
type Provider struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Kind      string    `gorm:"size:32;not null" json:"kind"`
	BaseURL   string    `gorm:"size:512" json:"base_url"`
	APIKey    string    `gorm:"size:512" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Models    []Model   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"models"`
}

// Model is a concrete model exposed by a provider.
type Model struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ProviderID     uint      `gorm:"not null;index" json:"provider_id"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	DisplayName    string    `gorm:"size:255" json:"display_name"`
	SupportsVision bool      `gorm:"default:false" json:"supports_vision"`
	MaxTokens      int       `gorm:"default:0" json:"max_tokens"`
	CreatedAt      time.Time `json:"created_at"`
	Provider       Provider  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}
