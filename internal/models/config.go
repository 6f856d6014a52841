package models

import "time"

// GlobalConfig is the singleton "config/app" record read by non-admin
// sessions to pick a default AI backend.
type GlobalConfig struct {
	DefaultProvider string    `bson:"defaultProvider" json:"defaultProvider"`
	DefaultModel    string    `bson:"defaultModel" json:"defaultModel"`
	UpdatedAt       time.Time `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// ConfigUpdate merges into GlobalConfig; nil fields are left untouched.
type ConfigUpdate struct {
	DefaultProvider *string `json:"defaultProvider,omitempty"`
	DefaultModel    *string `json:"defaultModel,omitempty"`
}

func (u ConfigUpdate) Apply(c *GlobalConfig) {
	if u.DefaultProvider != nil {
		c.DefaultProvider = *u.DefaultProvider
	}
	if u.DefaultModel != nil {
		c.DefaultModel = *u.DefaultModel
	}
}
