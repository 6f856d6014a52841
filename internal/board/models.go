package board

import (
	"strings"
	"time"
)

// Kind selects a board. Its value is also the backing collection name.
type Kind string

const (
	KindFeatures Kind = "features"
	KindBugs     Kind = "bugs"
	KindSupport  Kind = "support"
)

var columns = map[Kind][]string{
	KindFeatures: {"submitted", "under-review", "planned", "in-progress", "done", "rejected"},
	KindBugs:     {"reported", "confirmed", "in-progress", "fixed", "wont-fix"},
	KindSupport:  {"open", "in-progress", "waiting", "resolved", "closed"},
}

// Kinds lists every board in display order.
func Kinds() []Kind { return []Kind{KindFeatures, KindBugs, KindSupport} }

func ParseKind(s string) (Kind, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	_, ok := columns[k]
	return k, ok
}

// Columns returns the board's statuses in display order.
func (k Kind) Columns() []string {
	return append([]string(nil), columns[k]...)
}

func (k Kind) ValidStatus(status string) bool {
	for _, c := range columns[k] {
		if c == status {
			return true
		}
	}
	return false
}

// InitialStatus is the first column, where new items land.
func (k Kind) InitialStatus() string {
	if cols := columns[k]; len(cols) > 0 {
		return cols[0]
	}
	return ""
}

// Message is one entry in a support ticket conversation.
type Message struct {
	Text      string    `json:"text" bson:"text"`
	Sender    string    `json:"sender" bson:"sender"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// Item is a feature request, bug report or support ticket. Fields that do
// not apply to a kind stay empty.
type Item struct {
	ID          string    `json:"id" bson:"_id,omitempty"`
	Kind        Kind      `json:"kind" bson:"-"`
	Title       string    `json:"title,omitempty" bson:"title,omitempty"`
	Description string    `json:"description,omitempty" bson:"description,omitempty"`
	Status      string    `json:"status" bson:"status"`
	Priority    string    `json:"priority,omitempty" bson:"priority,omitempty"`
	Severity    string    `json:"severity,omitempty" bson:"severity,omitempty"`
	Steps       string    `json:"steps,omitempty" bson:"steps,omitempty"`
	Votes       []string  `json:"votes,omitempty" bson:"votes,omitempty"`
	Subject     string    `json:"subject,omitempty" bson:"subject,omitempty"`
	Message     string    `json:"message,omitempty" bson:"message,omitempty"`
	Messages    []Message `json:"messages,omitempty" bson:"messages,omitempty"`
	Author      string    `json:"author" bson:"author"`
	AuthorEmail string    `json:"authorEmail" bson:"authorEmail"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Headline is the text shown on a card.
func (it *Item) Headline() string {
	if it.Title != "" {
		return it.Title
	}
	return it.Subject
}

// Column is one status lane with its items.
type Column struct {
	Status string  `json:"status"`
	Items  []*Item `json:"items"`
}
