package authstate

import (
	"context"
	"sync"
	"time"

	"github.com/webaffe/webaffe/backend/console/internal/models"
	"github.com/webaffe/webaffe/backend/console/pkg/logger"
	"github.com/webaffe/webaffe/backend/console/pkg/metrics"
)

// IdentitySource reports identity changes to a single registered callback.
type IdentitySource interface {
	OnIdentityChange(ctx context.Context, fn func(*models.Identity)) bool
}

// ProfileStore is the part of the profile service a transition needs.
type ProfileStore interface {
	GetProfile(ctx context.Context, uid string) (*models.Profile, error)
	CreateProfile(ctx context.Context, p *models.Profile) error
	TouchLastLogin(ctx context.Context, uid string) error
	GetGlobalConfig(ctx context.Context) (models.GlobalConfig, error)
	IsBootstrapAdmin(email string) bool
	Now() time.Time
}

// event is an identity change, or with refresh set, a request to re-apply
// whatever identity was last received.
type event struct {
	user    *models.Identity
	refresh bool
}

// Listener turns identity changes into session states. Events are queued
// and applied one at a time in arrival order, so the newest event always
// produces the final state.
type Listener struct {
	source   IdentitySource
	profiles ProfileStore
	store    *Store
	timeout  time.Duration

	mu      sync.Mutex
	started bool
	queue   []event
	wake    chan struct{}
	bg      sync.WaitGroup

	// owned by the run goroutine
	last *models.Identity
	seen bool
}

// NewListener wires source to store. timeout bounds each store call; zero
// means no extra bound beyond the caller's context.
func NewListener(source IdentitySource, profiles ProfileStore, store *Store, timeout time.Duration) *Listener {
	return &Listener{
		source:   source,
		profiles: profiles,
		store:    store,
		timeout:  timeout,
		wake:     make(chan struct{}, 1),
	}
}

// Start subscribes to identity changes and runs the transition worker until
// ctx ends. Calling Start again is a no-op and returns false.
func (l *Listener) Start(ctx context.Context) bool {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return false
	}
	l.started = true
	l.mu.Unlock()

	go l.run(ctx)
	l.source.OnIdentityChange(ctx, l.enqueue)
	return true
}

// Refresh re-applies the latest identity so the session picks up profile
// changes made elsewhere. The identity is resolved when the refresh is
// dequeued, so a sign-out queued before it wins.
func (l *Listener) Refresh() {
	l.push(event{refresh: true})
}

func (l *Listener) enqueue(user *models.Identity) {
	if user != nil {
		cp := *user
		user = &cp
	}
	l.push(event{user: user})
}

func (l *Listener) push(ev event) {
	l.mu.Lock()
	l.queue = append(l.queue, ev)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Listener) pop() (event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return event{}, false
	}
	ev := l.queue[0]
	l.queue = l.queue[1:]
	return ev, true
}

func (l *Listener) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}
		for {
			ev, ok := l.pop()
			if !ok {
				break
			}
			if ev.refresh {
				if !l.seen {
					continue
				}
			} else {
				l.last, l.seen = ev.user, true
			}
			l.transition(ctx, l.last)
		}
	}
}

// Wait blocks until detached last-login writes have finished.
func (l *Listener) Wait() { l.bg.Wait() }

func (l *Listener) call(ctx context.Context, fn func(context.Context) error) error {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	return fn(ctx)
}

func (l *Listener) transition(ctx context.Context, user *models.Identity) {
	prev := l.store.Snapshot()
	next := State{Identity: user, Config: prev.Config}

	if user == nil {
		next.Loading = false
		l.publish(next)
		return
	}

	next.Profile = l.resolveProfile(ctx, user)

	var cfg models.GlobalConfig
	err := l.call(ctx, func(ctx context.Context) error {
		var err error
		cfg, err = l.profiles.GetGlobalConfig(ctx)
		return err
	})
	if err != nil {
		metrics.ProfileStoreFailures.WithLabelValues("get_config").Inc()
		logger.Warnf("load global config: %v; keeping previous", err)
	} else {
		next.Config = cfg
	}

	next.Loading = false
	l.publish(next)
}

func (l *Listener) publish(st State) {
	l.store.replace(st)
	metrics.SessionTransitions.WithLabelValues(string(st.Phase())).Inc()
	logger.Debugf("session transition phase=%s", st.Phase())
}

// resolveProfile loads or creates the profile for user. Any failure yields
// nil so the session is treated as unapproved.
func (l *Listener) resolveProfile(ctx context.Context, user *models.Identity) *models.Profile {
	var existing *models.Profile
	err := l.call(ctx, func(ctx context.Context) error {
		var err error
		existing, err = l.profiles.GetProfile(ctx, user.UID)
		return err
	})
	if err != nil {
		metrics.ProfileStoreFailures.WithLabelValues("get_profile").Inc()
		logger.Errorf("load profile uid=%s: %v", user.UID, err)
		return nil
	}

	if existing != nil {
		p := *existing
		p.Email = user.Email
		if user.DisplayName != "" {
			p.DisplayName = user.DisplayName
		}
		if user.PhotoURL != "" {
			p.PhotoURL = user.PhotoURL
		}
		l.touch(user.UID)
		return &p
	}

	created := models.NewProfile(user, l.profiles.IsBootstrapAdmin(user.Email), l.profiles.Now())
	err = l.call(ctx, func(ctx context.Context) error {
		return l.profiles.CreateProfile(ctx, created)
	})
	if err != nil {
		metrics.ProfileStoreFailures.WithLabelValues("create_profile").Inc()
		logger.Errorf("create profile uid=%s: %v", user.UID, err)
		return nil
	}
	logger.Infof("created profile uid=%s role=%s approved=%t", created.UID, created.Role, created.IsApproved)
	return created
}

func (l *Listener) touch(uid string) {
	l.bg.Add(1)
	go func() {
		defer l.bg.Done()
		ctx := context.Background()
		err := l.call(ctx, func(ctx context.Context) error {
			return l.profiles.TouchLastLogin(ctx, uid)
		})
		if err != nil {
			metrics.ProfileStoreFailures.WithLabelValues("touch_last_login").Inc()
			logger.Warnf("update lastLogin uid=%s: %v", uid, err)
		}
	}()
}
