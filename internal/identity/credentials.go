package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/webaffe/webaffe/backend/console/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrCredentialExists = errors.New("credential already exists")

// Credential is the provider-side account record behind an Identity.
type Credential struct {
	UID           string    `bson:"_id"`
	Email         string    `bson:"email"`
	EmailLower    string    `bson:"emailLower"`
	PasswordHash  string    `bson:"passwordHash,omitempty"`
	GoogleSubject string    `bson:"googleSubject,omitempty"`
	DisplayName   string    `bson:"displayName,omitempty"`
	PhotoURL      string    `bson:"photoURL,omitempty"`
	CreatedAt     time.Time `bson:"createdAt"`
}

func (c *Credential) identity(provider string) *models.Identity {
	return &models.Identity{
		UID:         c.UID,
		Email:       c.Email,
		DisplayName: c.DisplayName,
		PhotoURL:    c.PhotoURL,
		Provider:    provider,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CredentialRepository stores credential records. Lookups return (nil, nil)
// when nothing matches.
type CredentialRepository interface {
	FindByEmail(ctx context.Context, email string) (*Credential, error)
	FindByGoogleSubject(ctx context.Context, sub string) (*Credential, error)
	Create(ctx context.Context, c *Credential) error
	LinkGoogle(ctx context.Context, uid, sub string) error
}

type MongoCredentialRepository struct {
	col *mongo.Collection
}

func NewMongoCredentialRepository(col *mongo.Collection) *MongoCredentialRepository {
	return &MongoCredentialRepository{col: col}
}

// EnsureIndexes creates the unique lookups the repository relies on.
func (r *MongoCredentialRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "emailLower", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "googleSubject", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
	})
	return err
}

func (r *MongoCredentialRepository) findOne(ctx context.Context, filter bson.M) (*Credential, error) {
	var c Credential
	if err := r.col.FindOne(ctx, filter).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *MongoCredentialRepository) FindByEmail(ctx context.Context, email string) (*Credential, error) {
	return r.findOne(ctx, bson.M{"emailLower": normalizeEmail(email)})
}

func (r *MongoCredentialRepository) FindByGoogleSubject(ctx context.Context, sub string) (*Credential, error) {
	return r.findOne(ctx, bson.M{"googleSubject": sub})
}

func (r *MongoCredentialRepository) Create(ctx context.Context, c *Credential) error {
	c.EmailLower = normalizeEmail(c.Email)
	if _, err := r.col.InsertOne(ctx, c); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrCredentialExists
		}
		return err
	}
	return nil
}

func (r *MongoCredentialRepository) LinkGoogle(ctx context.Context, uid, sub string) error {
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": uid}, bson.M{"$set": bson.M{"googleSubject": sub}})
	return err
}

// MemoryCredentialRepository is the in-process credential store.
type MemoryCredentialRepository struct {
	mu    sync.RWMutex
	byUID map[string]Credential
}

func NewMemoryCredentialRepository() *MemoryCredentialRepository {
	return &MemoryCredentialRepository{byUID: map[string]Credential{}}
}

func (m *MemoryCredentialRepository) find(match func(Credential) bool) *Credential {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.byUID {
		if match(c) {
			cp := c
			return &cp
		}
	}
	return nil
}

func (m *MemoryCredentialRepository) FindByEmail(ctx context.Context, email string) (*Credential, error) {
	e := normalizeEmail(email)
	return m.find(func(c Credential) bool { return c.EmailLower == e }), nil
}

func (m *MemoryCredentialRepository) FindByGoogleSubject(ctx context.Context, sub string) (*Credential, error) {
	return m.find(func(c Credential) bool { return sub != "" && c.GoogleSubject == sub }), nil
}

func (m *MemoryCredentialRepository) Create(ctx context.Context, c *Credential) error {
	c.EmailLower = normalizeEmail(c.Email)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byUID[c.UID]; ok {
		return ErrCredentialExists
	}
	for _, existing := range m.byUID {
		if existing.EmailLower == c.EmailLower {
			return ErrCredentialExists
		}
	}
	m.byUID[c.UID] = *c
	return nil
}

func (m *MemoryCredentialRepository) LinkGoogle(ctx context.Context, uid, sub string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byUID[uid]
	if !ok {
		return errors.New("credential not found")
	}
	c.GoogleSubject = sub
	m.byUID[uid] = c
	return nil
}
