// Package session gates sensitive operations behind a single
// authenticated/unauthenticated flag, derived from a biometric factor or a
// PIN, backed by an encrypted credential in the secure store.
package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/clock"

	"github.com/vietddude/walletd/internal/bus"
	"github.com/vietddude/walletd/internal/core/domain"
	"github.com/vietddude/walletd/internal/infra/securestore"
	"github.com/vietddude/walletd/internal/metrics"
)

const uidKey = "device-uid"

// Biometry prompts for a biometric factor. Authenticate blocks until the
// prompt resolves; any error means the factor did not verify.
type Biometry interface {
	Authenticate(ctx context.Context) error
}

// Config holds the session manager settings.
type Config struct {
	BiometryEnabled  bool
	AttemptLimit     int
	BanWindow        time.Duration
	ActivityDeadline time.Duration
	SkipPinOnLogin   bool
}

// Manager owns the process-lifetime session state.
type Manager struct {
	store    securestore.Store
	bus      *bus.Bus
	biometry Biometry
	clock    clock.Clock
	cfg      Config
	log      *slog.Logger

	uid string

	mu      sync.Mutex
	session domain.Session
	pinWait chan string

	authInFlight atomic.Bool
}

// New creates a session manager, loading or minting the device-bound
// identifier used as credential key material.
func New(store securestore.Store, b *bus.Bus, bio Biometry, clk clock.Clock, cfg Config) (*Manager, error) {
	uid, err := ensureUID(store)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		store:    store,
		bus:      b,
		biometry: bio,
		clock:    clk,
		cfg:      cfg,
		log:      slog.Default().With("component", "session"),
		uid:      uid,
	}
	m.session.BiometryEnabled = cfg.BiometryEnabled
	m.session.LastActivity = clk.Now()
	if cfg.SkipPinOnLogin {
		m.session.Authenticated = true
	}

	b.Subscribe(domain.EventEnterPin, func(evt domain.Event) {
		m.deliverPin(evt.Pin)
	})
	return m, nil
}

func ensureUID(store securestore.Store) (string, error) {
	raw, err := store.Get(uidKey)
	if err == nil {
		return string(raw), nil
	}
	if !errors.Is(err, securestore.ErrNotFound) {
		return "", fmt.Errorf("failed to read device id: %w", err)
	}
	uid := uuid.New().String()
	if err := store.Set(uidKey, []byte(uid), securestore.AccessibleWhenUnlocked); err != nil {
		return "", fmt.Errorf("failed to persist device id: %w", err)
	}
	return uid, nil
}

// Session returns a copy of the current session state.
func (m *Manager) Session() domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Authenticated reports whether the session is currently authenticated.
func (m *Manager) Authenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Authenticated
}

// SetBiometryEnabled toggles the biometric factor for future auth races.
func (m *Manager) SetBiometryEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.BiometryEnabled = enabled
}

// GetPassword reads and decrypts the stored credential. A legacy raw PIN is
// migrated in place before being returned. Returns ErrPasswordNotFound when
// no credential exists, ErrMigrationNotPossible when the blob cannot be
// decoded, and ErrNotMigrated (with the recovered password) when the blob
// decodes but carries an outdated credential.
func (m *Manager) GetPassword(ctx context.Context) (string, error) {
	blob, err := m.store.Get(m.uid)
	if errors.Is(err, securestore.ErrNotFound) {
		return "", ErrPasswordNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read credential: %w", err)
	}

	if legacyPin(blob) {
		pin := string(blob)
		if _, err := m.SetPin(ctx, pin); err != nil {
			return "", fmt.Errorf("failed to migrate legacy pin: %w", err)
		}
		m.log.Info("migrated legacy credential")
		return pin, nil
	}

	cred, err := openCredential(blob, m.uid)
	if err != nil {
		m.log.Error("credential blob unreadable", "error", err)
		return "", ErrMigrationNotPossible
	}
	if cred.Version < credentialVersion || cred.Password == "" {
		m.mu.Lock()
		m.session.CredentialCorrupted = true
		m.mu.Unlock()
		return cred.Password, ErrNotMigrated
	}
	return cred.Password, nil
}

// SetPin encrypts and persists the secret, authenticates the session as a
// side effect, and returns the persisted blob.
func (m *Manager) SetPin(ctx context.Context, pin string) ([]byte, error) {
	blob, err := sealCredential(pin, m.uid)
	if err != nil {
		return nil, err
	}
	if err := m.store.Set(m.uid, blob, securestore.AccessibleWhenUnlocked); err != nil {
		return nil, fmt.Errorf("failed to persist credential: %w", err)
	}

	m.mu.Lock()
	m.session.Authenticated = true
	m.session.CredentialCorrupted = false
	m.session.LastActivity = m.clock.Now()
	m.mu.Unlock()
	m.bus.Publish(domain.Event{Type: domain.EventAuthChanged, Flag: true})
	return blob, nil
}

// ComparePin checks a candidate against the stored secret. Rejected outright
// with ErrPinBanned while the lockout window is active.
func (m *Manager) ComparePin(ctx context.Context, candidate string) error {
	m.mu.Lock()
	banned := !m.session.CanEnter(m.clock.Now())
	m.mu.Unlock()
	if banned {
		return ErrPinBanned
	}

	password, err := m.GetPassword(ctx)
	if err != nil && !errors.Is(err, ErrNotMigrated) {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(candidate), []byte(password)) != 1 {
		return ErrPinMismatch
	}
	return nil
}

// SuccessEnter clears lockout bookkeeping after a successful factor.
func (m *Manager) SuccessEnter() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.PinAttempts = 0
	m.session.PinBannedUntil = time.Time{}
	m.session.LastActivity = m.clock.Now()
}

// FailureEnter records a failed PIN attempt and starts the ban window once
// the attempt limit is reached.
func (m *Manager) FailureEnter() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.PinAttempts++
	if m.session.PinAttempts >= m.cfg.AttemptLimit {
		m.session.PinBannedUntil = m.clock.Now().Add(m.cfg.BanWindow)
		m.session.PinAttempts = 0
		metrics.PinLockouts.Inc()
		m.log.Warn("pin entry banned", "until", m.session.PinBannedUntil)
	}
}

// ResetAuth drops the authenticated flag without touching the credential.
func (m *Manager) ResetAuth() {
	m.mu.Lock()
	m.session.Authenticated = false
	m.mu.Unlock()
	m.bus.Publish(domain.Event{Type: domain.EventAuthChanged, Flag: false})
}

// DropCredential deletes the stored credential blob. Used by the destructive
// reset path after ErrMigrationNotPossible.
func (m *Manager) DropCredential() error {
	if err := m.store.Delete(m.uid); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	m.mu.Lock()
	m.session.Authenticated = false
	m.session.CredentialCorrupted = false
	m.mu.Unlock()
	return nil
}

// Auth resets the authenticated flag and races the biometric factor against
// PIN entry. Whichever factor verifies first authenticates the session; the
// losing branch runs to completion as a no-op. Re-entrant calls while an auth
// is already in flight return immediately.
func (m *Manager) Auth(ctx context.Context) error {
	if !m.authInFlight.CompareAndSwap(false, true) {
		return nil
	}
	defer m.authInFlight.Store(false)

	m.mu.Lock()
	m.session.Authenticated = false
	m.mu.Unlock()
	m.bus.Publish(domain.Event{Type: domain.EventAuthChanged, Flag: false})

	if err := m.runFactorRace(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.session.Authenticated = true
	m.session.LastActivity = m.clock.Now()
	m.mu.Unlock()
	m.bus.Publish(domain.Event{Type: domain.EventAuthChanged, Flag: true})
	return nil
}

// RequestPinConfirmation runs the same factor race as Auth for step-up
// verification of a sensitive action, without altering the session state.
func (m *Manager) RequestPinConfirmation(ctx context.Context) bool {
	return m.runFactorRace(ctx) == nil
}

// OnAppStatusChanged handles a foreground/background transition. Returning to
// the foreground after the activity deadline forces re-authentication; the
// in-flight guard inside Auth makes concurrent invocations idempotent.
func (m *Manager) OnAppStatusChanged(ctx context.Context, active bool) error {
	m.mu.Lock()
	now := m.clock.Now()
	idle := now.Sub(m.session.LastActivity)
	wasAuthenticated := m.session.Authenticated
	if !active {
		m.session.LastActivity = now
	}
	m.mu.Unlock()

	if !active {
		return nil
	}
	if wasAuthenticated && idle > m.cfg.ActivityDeadline {
		m.log.Info("session stale, re-authenticating", "idle", idle)
		return m.Auth(ctx)
	}
	m.mu.Lock()
	m.session.LastActivity = now
	m.mu.Unlock()
	return nil
}

func (m *Manager) runFactorRace(ctx context.Context) error {
	success := make(chan struct{})
	var once sync.Once
	win := func() { once.Do(func() { close(success) }) }

	go m.makeBiometryAuth(ctx, win)
	go m.makePinAuth(ctx, success, win)

	select {
	case <-success:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) makeBiometryAuth(ctx context.Context, win func()) {
	m.mu.Lock()
	enabled := m.session.BiometryEnabled
	banned := m.session.Banned(m.clock.Now())
	m.mu.Unlock()
	if !enabled || banned || m.biometry == nil {
		return
	}

	if err := m.biometry.Authenticate(ctx); err != nil {
		// Biometric failures fall through to the PIN path.
		metrics.AuthAttempts.WithLabelValues("biometry", "failure").Inc()
		m.log.Debug("biometry rejected, waiting for pin", "error", err)
		return
	}
	metrics.AuthAttempts.WithLabelValues("biometry", "success").Inc()
	m.SuccessEnter()
	win()
}

func (m *Manager) makePinAuth(ctx context.Context, success chan struct{}, win func()) {
	ch := make(chan string, 1)
	m.mu.Lock()
	m.pinWait = ch
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		if m.pinWait == ch {
			m.pinWait = nil
		}
		m.mu.Unlock()
	}()

	for {
		select {
		case pin := <-ch:
			if err := m.ComparePin(ctx, pin); err != nil {
				if errors.Is(err, ErrPinMismatch) {
					m.FailureEnter()
				}
				metrics.AuthAttempts.WithLabelValues("pin", "failure").Inc()
				m.bus.Publish(domain.Event{Type: domain.EventPinError, Reason: err.Error()})
				continue
			}
			metrics.AuthAttempts.WithLabelValues("pin", "success").Inc()
			m.SuccessEnter()
			win()
			return
		case <-success:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) deliverPin(pin string) {
	m.mu.Lock()
	ch := m.pinWait
	m.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- pin:
	default:
	}
}
