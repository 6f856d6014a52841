package models

// Identity is an externally verified account as reported by the identity
// provider. It is read-only to the console.
type Identity struct {
	UID         string `json:"uid" bson:"_id"`
	Email       string `json:"email" bson:"email"`
	DisplayName string `json:"displayName" bson:"displayName"`
	PhotoURL    string `json:"photoURL" bson:"photoURL"`
	Provider    string `json:"provider" bson:"provider"` // password | google | emailLink
}

const (
	ProviderPassword  = "password"
	ProviderGoogle    = "google"
	ProviderEmailLink = "emailLink"
)
