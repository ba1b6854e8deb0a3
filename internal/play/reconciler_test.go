package play

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"quizroom-client/internal/api"
	"quizroom-client/internal/domain"
	"quizroom-client/internal/identity"
	"quizroom-client/internal/transport"
)

type recordedSubmission struct {
	sessionID int64
	memberID  int64
	optionID  int64
	answer    domain.Answer
	complex   bool
}

type fakeAuthority struct {
	mu          sync.Mutex
	state       *api.State
	stateErr    error
	stateHook   func()
	submitErr   error
	fetches     int
	submissions []recordedSubmission
}

func (f *fakeAuthority) setState(s *api.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
}

func (f *fakeAuthority) Join(ctx context.Context, code, nickname, token string) (*api.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, nil
}

func (f *fakeAuthority) Reconnect(ctx context.Context, token, code string) (*api.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stateErr != nil {
		return nil, f.stateErr
	}
	return f.state, nil
}

func (f *fakeAuthority) GetState(ctx context.Context, token, code string) (*api.State, error) {
	f.mu.Lock()
	f.fetches++
	state, err, hook := f.state, f.stateErr, f.stateHook
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (f *fakeAuthority) SubmitAnswer(ctx context.Context, sessionID, memberID int64, token string, optionID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submissions = append(f.submissions, recordedSubmission{sessionID: sessionID, memberID: memberID, optionID: optionID})
	return f.submitErr
}

func (f *fakeAuthority) SubmitComplexAnswer(ctx context.Context, sessionID, memberID int64, token string, answer domain.Answer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submissions = append(f.submissions, recordedSubmission{sessionID: sessionID, memberID: memberID, answer: answer, complex: true})
	return f.submitErr
}

func (f *fakeAuthority) UpdateNickname(ctx context.Context, token, code, nickname string) (*domain.Member, error) {
	return &domain.Member{ID: 5, Nickname: nickname}, nil
}

func (f *fakeAuthority) Leave(ctx context.Context, token, code string) error { return nil }

func testRoom() *domain.Room {
	return &domain.Room{ID: 1, Code: "ABC123", Status: domain.RoomStatusActive}
}

func testMember() *domain.Member {
	return &domain.Member{ID: 5, RoomID: 1, Nickname: "ada"}
}

func lobbyState() *api.State {
	return &api.State{Room: testRoom(), Member: testMember(), Members: []domain.Member{*testMember()}}
}

func questionState(sessionID int64, ordinal int, q *domain.Question) *api.State {
	s := lobbyState()
	s.Session = &domain.Session{
		ID:              sessionID,
		RoomID:          1,
		Status:          domain.StatusQuestion,
		CurrentQuestion: ordinal,
		TotalQuestions:  3,
		Question:        q,
	}
	return s
}

func revealedState(sessionID int64, ordinal int, q *domain.Question) *api.State {
	s := questionState(sessionID, ordinal, q)
	s.Session.Status = domain.StatusRevealed
	return s
}

func newTestReconciler(t *testing.T, auth Authority) (*Reconciler, *identity.MemoryStore) {
	t.Helper()
	store := identity.NewMemoryStore()
	rec := NewReconciler(auth, store, WithRand(rand.New(rand.NewSource(42))))
	return rec, store
}

func TestJoinEntersLobbyAndPersistsIdentity(t *testing.T) {
	auth := &fakeAuthority{state: lobbyState()}
	rec, store := newTestReconciler(t, auth)

	if err := rec.Join(context.Background(), "ABC123", "ada"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	view := rec.Snapshot()
	if view.Phase != domain.PhaseLobby {
		t.Fatalf("expected lobby phase, got %s", view.Phase)
	}
	saved, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if saved.Token == "" || saved.RoomCode != "ABC123" || saved.MemberID != 5 {
		t.Fatalf("unexpected record %+v", saved)
	}
}

func TestRefreshKeepsAdapterOnIdenticalSnapshot(t *testing.T) {
	q := singleChoiceQuestion()
	auth := &fakeAuthority{state: lobbyState()}
	rec, _ := newTestReconciler(t, auth)
	if err := rec.Join(context.Background(), "ABC123", "ada"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	auth.setState(questionState(7, 1, q))
	if err := rec.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	first := rec.Snapshot().Adapter
	if first == nil {
		t.Fatal("expected adapter after entering question phase")
	}
	first.(*SingleChoiceAdapter).Select(1)

	// Same status and ordinal: the draft must survive the refetch.
	if err := rec.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	second := rec.Snapshot().Adapter
	if second != first {
		t.Fatal("expected adapter to survive an identical snapshot")
	}
	if second.(*SingleChoiceAdapter).Selected() == nil {
		t.Fatal("expected draft selection to survive")
	}
}

func TestRefreshResetsAdapterOnOrdinalChange(t *testing.T) {
	auth := &fakeAuthority{state: questionState(7, 1, singleChoiceQuestion())}
	rec, _ := newTestReconciler(t, auth)
	if err := rec.Join(context.Background(), "ABC123", "ada"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	first := rec.Snapshot().Adapter

	next := orderingQuestion(3)
	next.Ordinal = 2
	auth.setState(questionState(7, 2, next))
	if err := rec.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	second := rec.Snapshot().Adapter
	if second == first {
		t.Fatal("expected a fresh adapter on ordinal change")
	}
	if _, isOrdering := second.(*OrderingAdapter); !isOrdering {
		t.Fatalf("expected ordering adapter, got %T", second)
	}
}

func TestRevealKeepsAdapterAndNextResets(t *testing.T) {
	q := singleChoiceQuestion()
	auth := &fakeAuthority{state: questionState(7, 1, q)}
	rec, _ := newTestReconciler(t, auth)
	if err := rec.Join(context.Background(), "ABC123", "ada"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	adapter := rec.Snapshot().Adapter
	adapter.(*SingleChoiceAdapter).Select(1)

	revealed := singleChoiceQuestion()
	revealed.Detail = domain.SingleChoice{Options: []domain.ChoiceOption{
		{ID: 1, Text: "Paris", IsCorrect: boolPtr(true)},
		{ID: 2, Text: "Lyon", IsCorrect: boolPtr(false)},
	}}
	auth.setState(revealedState(7, 1, revealed))
	if err := rec.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	view := rec.Snapshot()
	if view.Phase != domain.PhaseRevealed {
		t.Fatalf("expected revealed phase, got %s", view.Phase)
	}
	if view.Adapter != adapter {
		t.Fatal("expected adapter to survive into the revealed phase")
	}
	if correct, ok := view.Adapter.Correct(view.Session.Question.Detail); !ok || !correct {
		t.Fatalf("expected correct verdict, got correct=%v ok=%v", correct, ok)
	}

	// Reveal is idempotent: a duplicate snapshot changes nothing.
	if err := rec.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if rec.Snapshot().Adapter != adapter {
		t.Fatal("expected duplicate reveal to keep the adapter")
	}

	next := singleChoiceQuestion()
	next.Ordinal = 2
	auth.setState(questionState(7, 2, next))
	if err := rec.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if rec.Snapshot().Adapter == adapter {
		t.Fatal("expected fresh adapter on the next question")
	}
}

func TestRevealedResultSurvivesSnapshotWithoutIt(t *testing.T) {
	q := singleChoiceQuestion()
	s := revealedState(7, 1, q)
	s.MyResult = &domain.MyResult{QuestionID: q.ID, Answered: true, IsCorrect: true, Score: 100, TotalScore: 100}
	auth := &fakeAuthority{state: s}
	rec, _ := newTestReconciler(t, auth)
	if err := rec.Join(context.Background(), "ABC123", "ada"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if view := rec.Snapshot(); view.MyResult == nil || !view.MyResult.IsCorrect {
		t.Fatalf("expected delivered result, got %+v", view.MyResult)
	}

	// A later snapshot of the same reveal without my_result keeps the one
	// already shown.
	auth.setState(revealedState(7, 1, q))
	if err := rec.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if view := rec.Snapshot(); view.MyResult == nil || view.MyResult.TotalScore != 100 {
		t.Fatalf("expected retained result, got %+v", view.MyResult)
	}

	// The next question is a fresh start.
	next := singleChoiceQuestion()
	next.Ordinal = 2
	auth.setState(questionState(7, 2, next))
	if err := rec.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if view := rec.Snapshot(); view.MyResult != nil {
		t.Fatalf("expected result cleared on the next question, got %+v", view.MyResult)
	}
}

func TestRefreshIdentityRejectionPurges(t *testing.T) {
	auth := &fakeAuthority{state: lobbyState()}
	rec, store := newTestReconciler(t, auth)
	if err := rec.Join(context.Background(), "ABC123", "ada"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	auth.mu.Lock()
	auth.stateErr = &api.Error{Status: 404, Message: "member not found"}
	auth.mu.Unlock()
	if err := rec.Refresh(context.Background()); !api.IsIdentityRejected(err) {
		t.Fatalf("expected identity rejection, got %v", err)
	}
	if rec.Snapshot().Phase != domain.PhaseJoin {
		t.Fatal("expected join phase after rejection")
	}
	if _, err := store.Load(); !errors.Is(err, identity.ErrNoRecord) {
		t.Fatalf("expected cleared record, got %v", err)
	}
}

func TestRefreshTransientErrorKeepsState(t *testing.T) {
	auth := &fakeAuthority{state: lobbyState()}
	rec, store := newTestReconciler(t, auth)
	if err := rec.Join(context.Background(), "ABC123", "ada"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	auth.mu.Lock()
	auth.stateErr = errors.New("connection refused")
	auth.mu.Unlock()
	if err := rec.Refresh(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if rec.Snapshot().Phase != domain.PhaseLobby {
		t.Fatal("expected transient failure to keep the current phase")
	}
	if _, err := store.Load(); err != nil {
		t.Fatalf("expected record to survive transient failure, got %v", err)
	}
}

func TestRoomClosedMessagePurges(t *testing.T) {
	auth := &fakeAuthority{state: lobbyState()}
	rec, store := newTestReconciler(t, auth)
	if err := rec.Join(context.Background(), "ABC123", "ada"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	rec.HandleMessage(transport.Message{Type: transport.MessageRoomClosed})
	if rec.Snapshot().Phase != domain.PhaseJoin {
		t.Fatal("expected join phase after room_closed")
	}
	if _, err := store.Load(); !errors.Is(err, identity.ErrNoRecord) {
		t.Fatalf("expected cleared record, got %v", err)
	}
}

func TestRoomClosedDuringFetchDropsSnapshot(t *testing.T) {
	auth := &fakeAuthority{state: lobbyState()}
	rec, store := newTestReconciler(t, auth)
	if err := rec.Join(context.Background(), "ABC123", "ada"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	inFlight := make(chan struct{})
	release := make(chan struct{})
	auth.mu.Lock()
	auth.state = questionState(7, 1, singleChoiceQuestion())
	auth.stateHook = func() {
		close(inFlight)
		<-release
	}
	auth.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- rec.Refresh(context.Background()) }()

	// The room closes while the fetch is parked; its response must not
	// resurrect the discarded stay.
	<-inFlight
	rec.HandleMessage(transport.Message{Type: transport.MessageRoomClosed})
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	view := rec.Snapshot()
	if view.Phase != domain.PhaseJoin {
		t.Fatalf("expected join phase after room_closed, got %s", view.Phase)
	}
	if view.Adapter != nil || view.Session != nil {
		t.Fatal("expected no session state after room_closed")
	}
	if _, err := store.Load(); !errors.Is(err, identity.ErrNoRecord) {
		t.Fatalf("expected cleared record, got %v", err)
	}
}

func TestSignalTriggersCoalescedRefresh(t *testing.T) {
	auth := &fakeAuthority{state: lobbyState()}
	rec, _ := newTestReconciler(t, auth)
	if err := rec.Join(context.Background(), "ABC123", "ada"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	rec.HandleMessage(transport.Message{Type: "session_updated"})
	deadline := time.Now().Add(2 * time.Second)
	for {
		auth.mu.Lock()
		fetches := auth.fetches
		auth.mu.Unlock()
		if fetches > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("signal never triggered a refresh")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestResumeSilentRejoin(t *testing.T) {
	auth := &fakeAuthority{state: questionState(7, 2, singleChoiceQuestion())}
	store := identity.NewMemoryStore()
	store.Save(identity.Record{Token: "tok", RoomCode: "ABC123", RoomID: 1, MemberID: 5, Nickname: "ada"})
	rec := NewReconciler(auth, store, WithRand(rand.New(rand.NewSource(1))))

	resumed, err := rec.Resume(context.Background())
	if err != nil || !resumed {
		t.Fatalf("expected silent rejoin, got resumed=%v err=%v", resumed, err)
	}
	view := rec.Snapshot()
	if view.Member.ID != 5 {
		t.Fatalf("expected the same member id, got %d", view.Member.ID)
	}
	if view.Phase != domain.PhaseQuestion {
		t.Fatalf("expected question phase, got %s", view.Phase)
	}
}

func TestResumeRejectedClearsRecord(t *testing.T) {
	auth := &fakeAuthority{stateErr: &api.Error{Status: 403, Message: "bad token"}}
	store := identity.NewMemoryStore()
	store.Save(identity.Record{Token: "tok", RoomCode: "ABC123"})
	rec := NewReconciler(auth, store)

	resumed, err := rec.Resume(context.Background())
	if err != nil || resumed {
		t.Fatalf("expected clean fallback, got resumed=%v err=%v", resumed, err)
	}
	if _, err := store.Load(); !errors.Is(err, identity.ErrNoRecord) {
		t.Fatalf("expected cleared record, got %v", err)
	}
}

func TestResumeWithoutRecord(t *testing.T) {
	rec, _ := newTestReconciler(t, &fakeAuthority{})
	resumed, err := rec.Resume(context.Background())
	if err != nil || resumed {
		t.Fatalf("expected no-op, got resumed=%v err=%v", resumed, err)
	}
}

func TestSubmitRoutesSimpleAndComplexPayloads(t *testing.T) {
	auth := &fakeAuthority{state: questionState(7, 1, singleChoiceQuestion())}
	rec, _ := newTestReconciler(t, auth)
	if err := rec.Join(context.Background(), "ABC123", "ada"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	if err := rec.Submit(context.Background()); !errors.Is(err, domain.ErrIncompleteAnswer) {
		t.Fatalf("expected ErrIncompleteAnswer for empty draft, got %v", err)
	}
	rec.Snapshot().Adapter.(*SingleChoiceAdapter).Select(2)
	if err := rec.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := rec.Submit(context.Background()); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected ErrAlreadyAnswered, got %v", err)
	}

	next := orderingQuestion(3)
	next.Ordinal = 2
	auth.setState(questionState(7, 2, next))
	if err := rec.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if err := rec.Submit(context.Background()); err != nil {
		t.Fatalf("Submit ordering: %v", err)
	}

	auth.mu.Lock()
	defer auth.mu.Unlock()
	if len(auth.submissions) != 2 {
		t.Fatalf("expected 2 submissions, got %d", len(auth.submissions))
	}
	if auth.submissions[0].complex || auth.submissions[0].optionID != 2 {
		t.Fatalf("expected simple submission of option 2, got %+v", auth.submissions[0])
	}
	if !auth.submissions[1].complex || len(auth.submissions[1].answer.Order) != 3 {
		t.Fatalf("expected complex ordering submission, got %+v", auth.submissions[1])
	}
}

func TestSubmitSwallowsNetworkFailure(t *testing.T) {
	auth := &fakeAuthority{state: questionState(7, 1, singleChoiceQuestion()), submitErr: errors.New("boom")}
	rec, _ := newTestReconciler(t, auth)
	if err := rec.Join(context.Background(), "ABC123", "ada"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	rec.Snapshot().Adapter.(*SingleChoiceAdapter).Select(1)
	if err := rec.Submit(context.Background()); err != nil {
		t.Fatalf("expected network failure to be swallowed, got %v", err)
	}
	if !rec.Snapshot().Adapter.Answered() {
		t.Fatal("expected adapter marked answered despite failure")
	}
}

// hookedAdapter runs a callback at payload time, widening the window between
// draft validation and the send decision so a question change can land there.
type hookedAdapter struct {
	Adapter
	onPayload func()
}

func (h *hookedAdapter) payload() (domain.Answer, error) {
	h.onPayload()
	return h.Adapter.payload()
}

func TestSubmitStaleDraftDiscarded(t *testing.T) {
	auth := &fakeAuthority{state: questionState(7, 1, singleChoiceQuestion())}
	rec, _ := newTestReconciler(t, auth)
	if err := rec.Join(context.Background(), "ABC123", "ada"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	inner := rec.Snapshot().Adapter
	inner.(*SingleChoiceAdapter).Select(1)

	next := singleChoiceQuestion()
	next.Ordinal = 2
	hooked := &hookedAdapter{Adapter: inner, onPayload: func() {
		auth.setState(questionState(7, 2, next))
		if err := rec.Refresh(context.Background()); err != nil {
			t.Errorf("Refresh: %v", err)
		}
	}}
	rec.mu.Lock()
	rec.adapter = hooked
	rec.mu.Unlock()

	if err := rec.Submit(context.Background()); !errors.Is(err, domain.ErrStaleSubmission) {
		t.Fatalf("expected ErrStaleSubmission, got %v", err)
	}
	auth.mu.Lock()
	defer auth.mu.Unlock()
	if len(auth.submissions) != 0 {
		t.Fatalf("expected no submission for a superseded question, got %+v", auth.submissions)
	}
}

func TestSubmitOutsideQuestionPhase(t *testing.T) {
	auth := &fakeAuthority{state: lobbyState()}
	rec, _ := newTestReconciler(t, auth)
	if err := rec.Join(context.Background(), "ABC123", "ada"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if err := rec.Submit(context.Background()); !errors.Is(err, domain.ErrNoQuestion) {
		t.Fatalf("expected ErrNoQuestion, got %v", err)
	}
}

func TestFinishedPhaseStandings(t *testing.T) {
	s := lobbyState()
	s.Session = &domain.Session{
		ID:             7,
		Status:         domain.StatusFinished,
		TotalQuestions: 3,
		Participants: []domain.Participant{
			{MemberID: 5, Nickname: "ada", TotalScore: 10},
			{MemberID: 6, Nickname: "bob", TotalScore: 30},
		},
	}
	auth := &fakeAuthority{state: s}
	rec, _ := newTestReconciler(t, auth)
	if err := rec.Join(context.Background(), "ABC123", "ada"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	view := rec.Snapshot()
	if view.Phase != domain.PhaseFinished {
		t.Fatalf("expected finished phase, got %s", view.Phase)
	}
	standings := view.Standings()
	if standings[0].Nickname != "bob" || standings[0].Position != 1 {
		t.Fatalf("unexpected standings %+v", standings)
	}
	if standings[1].Nickname != "ada" || standings[1].Position != 2 {
		t.Fatalf("unexpected standings %+v", standings)
	}
}

func TestLeaveReturnsToJoin(t *testing.T) {
	auth := &fakeAuthority{state: lobbyState()}
	rec, store := newTestReconciler(t, auth)
	if err := rec.Join(context.Background(), "ABC123", "ada"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if err := rec.Leave(context.Background()); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if rec.Snapshot().Phase != domain.PhaseJoin {
		t.Fatal("expected join phase after leave")
	}
	if _, err := store.Load(); !errors.Is(err, identity.ErrNoRecord) {
		t.Fatalf("expected cleared record, got %v", err)
	}
}
