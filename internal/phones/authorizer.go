// Package phones drives phone records through the authorization state
// machine: CREATED, awaiting a login code typed in by the operator, then
// READY, with FLOOD, FULL and BAN as the off-ramps.
package phones

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gotd/td/tg"

	"github.com/blockedby/tgcrawler/internal/config"
	"github.com/blockedby/tgcrawler/internal/logger"
	"github.com/blockedby/tgcrawler/internal/models"
	"github.com/blockedby/tgcrawler/internal/repository"
	"github.com/blockedby/tgcrawler/internal/telegram"
)

// ErrConnect marks an I/O failure before the state machine could run; the
// phone's state is untouched and the attempt may simply be repeated.
var ErrConnect = errors.New("telegram connect failed")

// AuthSession is the slice of a telegram session the state machine needs.
type AuthSession interface {
	SendCode(ctx context.Context, number string) (string, error)
	SignIn(ctx context.Context, number, code, codeHash string) error
	SignUp(ctx context.Context, number, codeHash, firstName, lastName string) error
	LoadSelf(ctx context.Context) (*tg.User, error)
	SessionBytes() ([]byte, error)
	DialogsCount(ctx context.Context) (int, error)
	Close()
}

// SessionFactory opens an unauthorized session for a phone.
type SessionFactory func(ctx context.Context, phone *models.Phone) (AuthSession, error)

// Authorizer is the phone state machine. One authorization attempt runs per
// phone at a time; concurrent invocations for the same phone id serialize
// on a per-phone lock.
type Authorizer struct {
	repo    *repository.PhonesRepository
	factory SessionFactory
	profile config.Profile
	log     *logger.Logger

	// sleep is swapped out by tests to avoid real waiting
	sleep func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewAuthorizer(repo *repository.PhonesRepository, provider *telegram.Provider, cfg *config.Config) *Authorizer {
	a := &Authorizer{
		repo: repo,
		factory: func(ctx context.Context, phone *models.Phone) (AuthSession, error) {
			return provider.OpenForAuth(ctx, phone)
		},
		profile: cfg.Profile,
		log:     logger.With("phones"),
		sleep:   ctxSleep,
		locks:   make(map[string]*sync.Mutex),
	}
	return a
}

// SetSessionFactory replaces the session factory. Tests use this to drive
// the state machine against a fake telegram.
func (a *Authorizer) SetSessionFactory(f SessionFactory) { a.factory = f }

// SetSleep replaces the wait primitive.
func (a *Authorizer) SetSleep(f func(ctx context.Context, d time.Duration) error) { a.sleep = f }

func (a *Authorizer) phoneLock(id string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[id]
	if !ok {
		l = &sync.Mutex{}
		a.locks[id] = l
	}
	return l
}

// Authorize drives one phone to READY (or FLOOD, FULL, BAN). Every state
// transition is persisted before the next network step.
func (a *Authorizer) Authorize(ctx context.Context, phone *models.Phone) error {
	lock := a.phoneLock(phone.ID)
	lock.Lock()
	defer lock.Unlock()

	session, err := a.factory(ctx, phone)
	if err != nil {
		// connect failure leaves the phone state untouched
		a.log.Error().Err(err).Str("phone", phone.Number).Msg("phones: connect failed")
		return fmt.Errorf("%w for %s: %v", ErrConnect, phone.Number, err)
	}
	defer session.Close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if phone.CodeHash == "" {
			if err := a.requestCode(ctx, session, phone); err != nil {
				return err
			}
			continue
		}

		if phone.Code == nil || *phone.Code == "" {
			if err := a.awaitCode(ctx, phone); err != nil {
				return err
			}
			continue
		}

		done, err := a.signIn(ctx, session, phone)
		if err != nil {
			return err
		}
		if done {
			return a.checkCeiling(ctx, session, phone)
		}
	}
}

// requestCode asks telegram for a login code and records the hash. Flood
// waits here sleep exactly the server-specified duration and retry.
func (a *Authorizer) requestCode(ctx context.Context, session AuthSession, phone *models.Phone) error {
	hash, err := session.SendCode(ctx, phone.Number)
	if err != nil {
		if wait, ok := telegram.FloodWait(err); ok {
			a.setStatus(ctx, phone, models.PhoneStatusFlood, fmt.Sprintf("flood wait %s on code request", wait))
			a.log.Warn().Str("phone", phone.Number).Dur("wait", wait).Msg("phones: flood wait on code request")
			if err := a.sleep(ctx, wait); err != nil {
				return err
			}
			return nil // retry sending on the next loop pass
		}
		if telegram.IsPhoneBanned(err) {
			return a.ban(ctx, phone, err)
		}
		return fmt.Errorf("send code to %s: %w", phone.Number, err)
	}

	phone.CodeHash = hash
	a.setStatus(ctx, phone, phone.Status, "code requested, awaiting operator")
	a.log.Info().Str("phone", phone.Number).Msg("phones: code requested")
	return nil
}

// awaitCode polls the backend for an operator-supplied code.
func (a *Authorizer) awaitCode(ctx context.Context, phone *models.Phone) error {
	if err := a.sleep(ctx, time.Duration(a.profile.CodePollSeconds)*time.Second); err != nil {
		return err
	}
	if err := a.repo.Reload(ctx, phone); err != nil {
		return fmt.Errorf("reload phone %s: %w", phone.Number, err)
	}
	return nil
}

// signIn exchanges the stored code. Returns done=true on success; a
// rejected code keeps the phone in the awaiting-code loop.
func (a *Authorizer) signIn(ctx context.Context, session AuthSession, phone *models.Phone) (bool, error) {
	err := session.SignIn(ctx, phone.Number, *phone.Code, phone.CodeHash)

	switch {
	case err == nil:
	case telegram.IsCodeRejected(err):
		phone.Code = nil
		a.setStatus(ctx, phone, phone.Status, "login code rejected, awaiting a fresh one")
		a.log.Warn().Str("phone", phone.Number).Msg("phones: code rejected")
		return false, nil
	case errors.Is(err, telegram.ErrSignUpRequired):
		// fresh number: register after a small randomized delay so sign-ups
		// do not land in a burst
		delay := time.Duration(2+rand.Intn(4)) * time.Second
		if err := a.sleep(ctx, delay); err != nil {
			return false, err
		}
		if err := session.SignUp(ctx, phone.Number, phone.CodeHash, "John", "Doe"); err != nil {
			return false, a.ban(ctx, phone, err)
		}
	default:
		return false, a.ban(ctx, phone, err)
	}

	return true, a.finishAuth(ctx, session, phone)
}

// finishAuth persists the live session blob and flips the phone READY.
func (a *Authorizer) finishAuth(ctx context.Context, session AuthSession, phone *models.Phone) error {
	self, err := session.LoadSelf(ctx)
	if err != nil {
		return a.ban(ctx, phone, err)
	}
	blob, err := session.SessionBytes()
	if err != nil {
		return fmt.Errorf("dump session for %s: %w", phone.Number, err)
	}

	data := string(blob)
	phone.Session = &data
	phone.InternalID = &self.ID
	phone.Status = models.PhoneStatusReady
	phone.StatusText = nil
	phone.Code = nil
	phone.CodeHash = ""
	if err := a.repo.Save(ctx, phone); err != nil {
		return fmt.Errorf("persist ready phone %s: %w", phone.Number, err)
	}
	a.log.Info().Str("phone", phone.Number).Int64("user_id", self.ID).Msg("phones: authorized")
	return nil
}

// checkCeiling demotes an authorized phone to FULL when it sits at
// telegram's dialog ceiling and cannot join more chats.
func (a *Authorizer) checkCeiling(ctx context.Context, session AuthSession, phone *models.Phone) error {
	count, err := session.DialogsCount(ctx)
	if err != nil {
		a.log.Warn().Err(err).Str("phone", phone.Number).Msg("phones: dialog count check failed")
		return nil
	}
	if count >= a.profile.DialogLimit {
		a.setStatus(ctx, phone, models.PhoneStatusFull,
			fmt.Sprintf("%d dialogs, at the join ceiling", count))
		a.log.Warn().Str("phone", phone.Number).Int("dialogs", count).Msg("phones: at dialog ceiling")
	}
	return nil
}

// ban is the hard terminal: session cleared, manual intervention required.
func (a *Authorizer) ban(ctx context.Context, phone *models.Phone, cause error) error {
	phone.Session = nil
	phone.Code = nil
	phone.CodeHash = ""
	a.setStatus(ctx, phone, models.PhoneStatusBan, cause.Error())
	a.log.Error().Err(cause).Str("phone", phone.Number).Msg("phones: banned")
	return fmt.Errorf("phone %s banned: %w", phone.Number, cause)
}

func (a *Authorizer) setStatus(ctx context.Context, phone *models.Phone, status models.PhoneStatus, text string) {
	phone.Status = status
	phone.StatusText = &text
	if err := a.repo.Save(ctx, phone); err != nil {
		a.log.Error().Err(err).Str("phone", phone.Number).Msg("phones: status persist failed")
	}
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
