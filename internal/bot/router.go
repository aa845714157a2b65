// internal/bot/router.go
package bot

import (
	"context"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/quorlin/swapcord/internal/session"
	"github.com/quorlin/swapcord/internal/settings"
	"github.com/quorlin/swapcord/internal/transport"
	"github.com/quorlin/swapcord/internal/wallet"
)

const apology = "Something went wrong, please try again later."

// Router turns chat commands into swap sessions and relays later events to
// them. Sessions are independent, including several for the same user: events
// carry the session id their prompt belongs to, so concurrent swaps never
// cross.
type Router struct {
	deps     Deps
	wallets  *wallet.Registry
	defaults settings.Settings
	clock    session.Clock
	logger   *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session.Session
	wg       sync.WaitGroup
}

func NewRouter(deps Deps, wallets *wallet.Registry, defaults settings.Settings, logger *zap.Logger) (*Router, error) {
	if err := defaults.Validate(); err != nil {
		return nil, err
	}
	return &Router{
		deps:     deps,
		wallets:  wallets,
		defaults: defaults,
		clock:    session.RealClock(),
		logger:   logger.Named("router"),
		sessions: make(map[string]*session.Session),
	}, nil
}

// WithClock swaps the wall clock, for tests.
func (r *Router) WithClock(clock session.Clock) *Router {
	r.clock = clock
	return r
}
// HandleCommand starts a buy or sell session and returns its id, which the
// platform adapter attaches to the prompts it renders so later events come
// back addressed. Every failure ends in a message to the user; raw errors
// stay in the logs.
func (r *Router) HandleCommand(ctx context.Context, poster transport.Poster, userID, command, mintArg string) string {
	logger := r.logger.With(zap.String("user_id", userID), zap.String("command", command))

	var direction session.Direction
	switch strings.ToLower(command) {
	case "buy":
		direction = session.Buy
	case "sell":
		direction = session.Sell
	default:
		r.post(ctx, poster, "Unknown command. Use buy <mint> or sell <mint>.")
		return ""
	}

	walletKey, ok := r.wallets.Lookup(userID)
	if !ok {
		logger.Warn("no wallet registered")
		r.post(ctx, poster, "No wallet registered for your account.")
		return ""
	}

	mint, err := solana.PublicKeyFromBase58(strings.TrimSpace(mintArg))
	if err != nil {
		logger.Warn("invalid mint argument", zap.String("mint", mintArg), zap.Error(err))
		r.post(ctx, poster, "Invalid token address.")
		return ""
	}

	var flow session.Flow
	if direction == session.Buy {
		flow = NewBuyFlow(r.deps, r.defaults, userID, walletKey, mint, poster)
	} else {
		flow = NewSellFlow(r.deps, r.defaults, userID, walletKey, mint, poster)
	}

	sess := session.New(userID, flow, poster, r.clock, r.logger)

	r.mu.Lock()
	r.sessions[sess.ID] = sess
	r.mu.Unlock()

	r.wg.Add(1)
	go r.runSession(ctx, poster, sess, logger)
	return sess.ID
}

func (r *Router) runSession(ctx context.Context, poster transport.Poster, sess *session.Session, logger *zap.Logger) {
	defer r.wg.Done()
	defer func() {
		r.mu.Lock()
		delete(r.sessions, sess.ID)
		r.mu.Unlock()

		if rec := recover(); rec != nil {
			logger.Error("session panicked", zap.Any("panic", rec))
			r.post(ctx, poster, apology)
		}
	}()

	final := sess.Run(ctx)
	logger.Info("session ended",
		zap.String("session_id", sess.ID), zap.String("state", string(final)))
}

// HandleEvent forwards a user interaction to the session it addresses.
// Events for someone else's session are dropped. Returns whether anything
// consumed it.
func (r *Router) HandleEvent(userID string, event transport.Event) bool {
	r.mu.Lock()
	sess, ok := r.sessions[event.SessionID]
	r.mu.Unlock()
	if !ok || sess.UserID != userID {
		return false
	}
	return sess.Deliver(event)
}

// ActiveSessions reports how many sessions are in flight.
func (r *Router) ActiveSessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Wait blocks until every running session has finished.
func (r *Router) Wait() {
	r.wg.Wait()
}

func (r *Router) post(ctx context.Context, poster transport.Poster, text string) {
	if err := poster.Post(ctx, text); err != nil {
		r.logger.Error("failed to post message", zap.Error(err))
	}
}
