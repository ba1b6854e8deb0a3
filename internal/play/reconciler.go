package play

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"quizroom-client/internal/api"
	"quizroom-client/internal/domain"
	"quizroom-client/internal/identity"
	"quizroom-client/internal/transport"
)

// Authority is the server-side source of truth the reconciler fetches from.
// *api.Client satisfies it.
type Authority interface {
	Join(ctx context.Context, code, nickname, token string) (*api.State, error)
	Reconnect(ctx context.Context, token, code string) (*api.State, error)
	GetState(ctx context.Context, token, code string) (*api.State, error)
	SubmitAnswer(ctx context.Context, sessionID, memberID int64, token string, optionID int64) error
	SubmitComplexAnswer(ctx context.Context, sessionID, memberID int64, token string, answer domain.Answer) error
	UpdateNickname(ctx context.Context, token, code, nickname string) (*domain.Member, error)
	Leave(ctx context.Context, token, code string) error
}

// View is a point-in-time copy of the reconciler's derived state.
type View struct {
	Phase    domain.Phase
	Room     *domain.Room
	Member   *domain.Member
	Members  []domain.Member
	Session  *domain.Session
	MyResult *domain.MyResult
	Adapter  Adapter
}

// Standings ranks the session participants by total score.
func (v View) Standings() []domain.LeaderboardEntry {
	if v.Session == nil {
		return nil
	}
	ranked := make([]domain.Participant, len(v.Session.Participants))
	copy(ranked, v.Session.Participants)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].TotalScore > ranked[j].TotalScore
	})
	out := make([]domain.LeaderboardEntry, len(ranked))
	for i, p := range ranked {
		out[i] = domain.LeaderboardEntry{
			Position:   i + 1,
			Nickname:   p.Nickname,
			TotalScore: p.TotalScore,
			MemberID:   p.MemberID,
		}
	}
	return out
}

// Reconciler mirrors authoritative session state into a local view. Every
// transport signal degenerates into "fetch the full state now"; the fetched
// snapshot is diffed against the previous one to decide adapter resets and
// phase transitions.
type Reconciler struct {
	authority Authority
	store     identity.Store
	log       *logrus.Logger
	rnd       *rand.Rand

	group singleflight.Group

	mu       sync.Mutex
	gen      uint64
	token    string
	code     string
	phase    domain.Phase
	room     *domain.Room
	member   *domain.Member
	members  []domain.Member
	session  *domain.Session
	myResult *domain.MyResult
	adapter  Adapter
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger replaces the default logger.
func WithLogger(log *logrus.Logger) Option {
	return func(r *Reconciler) { r.log = log }
}

// WithRand injects the randomness source used for ordering shuffles.
func WithRand(rnd *rand.Rand) Option {
	return func(r *Reconciler) { r.rnd = rnd }
}

// NewReconciler builds a reconciler in the join phase.
func NewReconciler(authority Authority, store identity.Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		authority: authority,
		store:     store,
		log:       logrus.StandardLogger(),
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		phase:     domain.PhaseJoin,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resume attempts a silent rejoin from the persisted identity record. It
// returns false without error when no record exists or the authority no
// longer recognizes it; the caller then falls back to an ordinary Join.
func (r *Reconciler) Resume(ctx context.Context) (bool, error) {
	rec, err := r.store.Load()
	if errors.Is(err, identity.ErrNoRecord) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	state, err := r.authority.Reconnect(ctx, rec.Token, rec.RoomCode)
	if api.IsIdentityRejected(err) {
		r.log.WithField("code", rec.RoomCode).Info("stored identity rejected, clearing")
		if clearErr := r.store.Clear(); clearErr != nil {
			r.log.WithError(clearErr).Warn("clear identity record")
		}
		return false, nil
	}
	if err != nil {
		return false, err
	}
	r.enter(state, rec.Token, rec.RoomCode)
	return true, nil
}

// Join enters a room by code. A fresh identity token is minted when no
// record exists; an existing token is reused so the authority can treat the
// join as a rejoin.
func (r *Reconciler) Join(ctx context.Context, code, nickname string) error {
	token := identity.NewToken()
	if rec, err := r.store.Load(); err == nil && rec.Token != "" {
		token = rec.Token
	}
	state, err := r.authority.Join(ctx, code, nickname, token)
	if err != nil {
		return err
	}
	r.enter(state, token, state.Room.Code)
	rec := identity.Record{
		Token:    token,
		RoomCode: state.Room.Code,
		RoomID:   state.Room.ID,
		MemberID: state.Member.ID,
		Nickname: state.Member.Nickname,
	}
	if err := r.store.Save(rec); err != nil {
		r.log.WithError(err).Warn("persist identity record")
	}
	return nil
}

// Refresh fetches authoritative state and applies it. Concurrent calls are
// coalesced into a single fetch; a burst of invalidation signals costs one
// round trip.
func (r *Reconciler) Refresh(ctx context.Context) error {
	r.mu.Lock()
	token, code, gen := r.token, r.code, r.gen
	r.mu.Unlock()
	if token == "" {
		return domain.ErrNotInRoom
	}
	_, err, _ := r.group.Do("state", func() (any, error) {
		state, err := r.authority.GetState(ctx, token, code)
		if err != nil {
			return nil, err
		}
		r.apply(state, gen)
		return nil, nil
	})
	if api.IsIdentityRejected(err) {
		r.log.Info("identity rejected on refresh, returning to join")
		r.purge()
		return err
	}
	return err
}

// HandleMessage reacts to a transport signal. room_closed ends the stay
// locally; every other message type is an invalidation hint and triggers a
// background refresh.
func (r *Reconciler) HandleMessage(msg transport.Message) {
	if msg.Type == transport.MessageRoomClosed {
		r.log.Info("room closed by host")
		r.purge()
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.Refresh(ctx); err != nil && !api.IsIdentityRejected(err) {
			r.log.WithError(err).Debug("refresh after signal")
		}
	}()
}

// Submit sends the current adapter's draft. Local validation failures are
// returned; once the payload is accepted for sending the adapter is marked
// answered and network errors are swallowed, since the next reveal shows the
// authoritative outcome either way.
func (r *Reconciler) Submit(ctx context.Context) error {
	r.mu.Lock()
	adapter := r.adapter
	session := r.session
	member := r.member
	token := r.token
	r.mu.Unlock()

	if adapter == nil || session == nil || session.Status != domain.StatusQuestion {
		return domain.ErrNoQuestion
	}
	if adapter.Answered() {
		return domain.ErrAlreadyAnswered
	}
	answer, err := adapter.payload()
	if err != nil {
		return err
	}
	ordinal := adapter.Question().Ordinal

	r.mu.Lock()
	if r.adapter != adapter || r.session == nil || r.session.CurrentQuestion != ordinal {
		r.mu.Unlock()
		return domain.ErrStaleSubmission
	}
	adapter.markSubmitted()
	r.mu.Unlock()

	if answer.OptionID != 0 && answer.OptionIDs == nil && answer.Order == nil && answer.Pairs == nil && answer.Value == nil {
		err = r.authority.SubmitAnswer(ctx, session.ID, member.ID, token, answer.OptionID)
	} else {
		err = r.authority.SubmitComplexAnswer(ctx, session.ID, member.ID, token, answer)
	}
	if err != nil {
		r.log.WithError(err).WithField("question", ordinal).Warn("answer submission failed")
	}
	return nil
}

// UpdateNickname renames the member and refreshes the stored record.
func (r *Reconciler) UpdateNickname(ctx context.Context, nickname string) error {
	r.mu.Lock()
	token, code := r.token, r.code
	r.mu.Unlock()
	if token == "" {
		return domain.ErrNotInRoom
	}
	member, err := r.authority.UpdateNickname(ctx, token, code, nickname)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.member = member
	r.mu.Unlock()
	if rec, loadErr := r.store.Load(); loadErr == nil {
		rec.Nickname = member.Nickname
		if saveErr := r.store.Save(rec); saveErr != nil {
			r.log.WithError(saveErr).Warn("persist identity record")
		}
	}
	return nil
}

// Leave tells the authority the member is gone, then discards local identity
// regardless of the outcome.
func (r *Reconciler) Leave(ctx context.Context) error {
	r.mu.Lock()
	token, code := r.token, r.code
	r.mu.Unlock()
	var err error
	if token != "" {
		err = r.authority.Leave(ctx, token, code)
	}
	r.purge()
	return err
}

// Snapshot returns a copy of the current view.
func (r *Reconciler) Snapshot() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := make([]domain.Member, len(r.members))
	copy(members, r.members)
	return View{
		Phase:    r.phase,
		Room:     r.room,
		Member:   r.member,
		Members:  members,
		Session:  r.session,
		MyResult: r.myResult,
		Adapter:  r.adapter,
	}
}

// enter installs a freshly joined or resumed state. Bumping the generation
// invalidates fetches started during a previous stay.
func (r *Reconciler) enter(state *api.State, token, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	r.token = token
	r.code = code
	r.session = nil
	r.adapter = nil
	r.applyLocked(state)
}

// apply installs a refreshed state, diffing against the previous snapshot.
// A snapshot fetched under an older generation lost a race with purge or a
// rejoin and is dropped.
func (r *Reconciler) apply(state *api.State, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen {
		r.log.Debug("dropping state snapshot from a superseded fetch")
		return
	}
	r.applyLocked(state)
}

func (r *Reconciler) applyLocked(state *api.State) {
	prev := r.session

	r.room = state.Room
	if state.Member != nil {
		r.member = state.Member
	}
	r.members = state.Members
	r.session = state.Session
	if state.MyResult != nil {
		r.myResult = state.MyResult
	} else if prev == nil || state.Session == nil || state.Session.Status != domain.StatusRevealed ||
		prev.ID != state.Session.ID || prev.CurrentQuestion != state.Session.CurrentQuestion {
		// A result already shown for this reveal is kept when a later
		// snapshot omits it; any question or session boundary clears it.
		r.myResult = nil
	}

	if state.Session == nil || state.Session.Status == domain.StatusWaiting {
		r.phase = domain.PhaseLobby
		r.adapter = nil
		return
	}

	session := state.Session
	switch session.Status {
	case domain.StatusQuestion:
		r.phase = domain.PhaseQuestion
		if session.Question == nil {
			r.adapter = nil
			return
		}
		if r.needsReset(prev, session) {
			adapter, err := newAdapter(session.Question, r.rnd)
			if err != nil {
				r.log.WithError(err).WithField("question", session.CurrentQuestion).Error("build answer adapter")
				r.adapter = nil
				return
			}
			r.adapter = adapter
		}
	case domain.StatusRevealed:
		// Keep the adapter: the retained draft is classified against the
		// now-populated grading fields.
		r.phase = domain.PhaseRevealed
		if r.adapter == nil && session.Question != nil {
			if adapter, err := newAdapter(session.Question, r.rnd); err == nil {
				r.adapter = adapter
			}
		}
	case domain.StatusFinished:
		r.phase = domain.PhaseFinished
	default:
		r.log.WithField("status", session.Status).Warn("unknown session status")
		r.phase = domain.PhaseLobby
	}
}

// needsReset decides whether a fresh adapter is built: on entry from any
// non-question status, on an ordinal change, or on a session change. A
// refetch landing on the same (status, ordinal) pair keeps the draft intact.
func (r *Reconciler) needsReset(prev, next *domain.Session) bool {
	if r.adapter == nil {
		return true
	}
	if prev == nil || prev.ID != next.ID {
		return true
	}
	if prev.Status != domain.StatusQuestion {
		return true
	}
	return prev.CurrentQuestion != next.CurrentQuestion
}

// purge drops identity and returns to the join phase.
func (r *Reconciler) purge() {
	if err := r.store.Clear(); err != nil {
		r.log.WithError(err).Warn("clear identity record")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	r.token = ""
	r.code = ""
	r.phase = domain.PhaseJoin
	r.room = nil
	r.member = nil
	r.members = nil
	r.session = nil
	r.myResult = nil
	r.adapter = nil
}
