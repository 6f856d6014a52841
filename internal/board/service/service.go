package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/webaffe/webaffe/backend/console/internal/board"
	"github.com/webaffe/webaffe/backend/console/internal/board/repository"
	"github.com/webaffe/webaffe/backend/console/pkg/metrics"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidStatus = errors.New("status is not a column of this board")
	ErrInvalidItem   = errors.New("item needs a title or subject")
)

// Service defines the board operations used by the handler layer.
type Service interface {
	Create(ctx context.Context, kind board.Kind, it *board.Item) (string, error)
	Get(ctx context.Context, kind board.Kind, id string) (*board.Item, error)
	List(ctx context.Context, kind board.Kind) ([]*board.Item, error)
	Columns(ctx context.Context, kind board.Kind) ([]board.Column, error)
	MoveStatus(ctx context.Context, kind board.Kind, id, status string) error
	Counts(ctx context.Context, kind board.Kind) (map[string]int, error)
}

// NewMemoryService returns a Service backed by the in-memory repository.
func NewMemoryService() Service {
	return New(repository.NewMemoryRepo())
}

// NewMongoService returns a Service backed by the board collections of db.
func NewMongoService(db *mongo.Database) Service {
	return New(repository.NewMongoRepo(db))
}

func New(repo repository.Repository) Service {
	return &boardService{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

type boardService struct {
	repo repository.Repository
	now  func() time.Time
}

func (s *boardService) Create(ctx context.Context, kind board.Kind, it *board.Item) (string, error) {
	if strings.TrimSpace(it.Headline()) == "" {
		return "", ErrInvalidItem
	}
	if it.Status == "" {
		it.Status = kind.InitialStatus()
	}
	if !kind.ValidStatus(it.Status) {
		return "", ErrInvalidStatus
	}
	it.ID = ""
	it.CreatedAt = s.now()
	return s.repo.Create(ctx, kind, it)
}

func (s *boardService) Get(ctx context.Context, kind board.Kind, id string) (*board.Item, error) {
	it, err := s.repo.Get(ctx, kind, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return it, nil
}

func (s *boardService) List(ctx context.Context, kind board.Kind) ([]*board.Item, error) {
	return s.repo.List(ctx, kind)
}

// Columns groups items by status in column order. Items whose status is not
// a column of the board are left out.
func (s *boardService) Columns(ctx context.Context, kind board.Kind) ([]board.Column, error) {
	items, err := s.repo.List(ctx, kind)
	if err != nil {
		return nil, err
	}
	cols := kind.Columns()
	out := make([]board.Column, len(cols))
	idx := make(map[string]int, len(cols))
	for i, c := range cols {
		out[i] = board.Column{Status: c, Items: []*board.Item{}}
		idx[c] = i
	}
	for _, it := range items {
		if i, ok := idx[it.Status]; ok {
			out[i].Items = append(out[i].Items, it)
		}
	}
	return out, nil
}

func (s *boardService) MoveStatus(ctx context.Context, kind board.Kind, id, status string) error {
	if !kind.ValidStatus(status) {
		return ErrInvalidStatus
	}
	if err := s.repo.UpdateStatus(ctx, kind, id, status, s.now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	metrics.BoardMoves.WithLabelValues(string(kind), status).Inc()
	return nil
}

// Counts returns the number of items per column, plus "total".
func (s *boardService) Counts(ctx context.Context, kind board.Kind) (map[string]int, error) {
	items, err := s.repo.List(ctx, kind)
	if err != nil {
		return nil, err
	}
	out := map[string]int{"total": len(items)}
	for _, c := range kind.Columns() {
		out[c] = 0
	}
	for _, it := range items {
		if kind.ValidStatus(it.Status) {
			out[it.Status]++
		}
	}
	return out, nil
}
