package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"quizroom-client/internal/api"
	"quizroom-client/internal/config"
	"quizroom-client/internal/domain"
	"quizroom-client/internal/play"
	"quizroom-client/internal/transport"
)

// NewPlayCmd joins a room as a participant. By default it drives the
// interactive answer loop; with --strategy it runs headless and answers
// every question automatically.
func NewPlayCmd(configPath, baseURL *string) *cobra.Command {
	var code, nickname, strategy string
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Join a room as a participant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), *configPath, *baseURL, code, nickname, strategy)
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "room code to join")
	cmd.Flags().StringVar(&nickname, "nickname", "", "display name")
	cmd.Flags().StringVar(&strategy, "strategy", "", "answer automatically: random or first")
	return cmd
}

func runPlay(ctx context.Context, configPath, baseURLFlag, code, nickname, strategy string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	log := logrus.New()
	client := api.New(resolveBaseURL(cfg, baseURLFlag))
	store, err := newIdentityStore(cfg)
	if err != nil {
		return err
	}

	rec := play.NewReconciler(client, store, play.WithLogger(log))
	resumed, err := rec.Resume(ctx)
	if err != nil {
		return err
	}
	if resumed {
		fmt.Println("rejoined previous room")
	} else {
		if code == "" || nickname == "" {
			return fmt.Errorf("--code and --nickname are required to join a new room")
		}
		if err := rec.Join(ctx, strings.ToUpper(code), nickname); err != nil {
			return err
		}
	}

	view := rec.Snapshot()
	backoff := config.TTLDuration(cfg.Transport.Backoff, 3*time.Second)
	sub := transport.Subscribe(client.RoomSocketURL(view.Room.Code), rec.HandleMessage,
		transport.WithBackoff(backoff), transport.WithLogger(log))
	defer sub.Close()

	if strategy != "" {
		fill, err := fillStrategy(strategy)
		if err != nil {
			return err
		}
		return autoPlay(ctx, rec, fill, log)
	}

	renderView(os.Stdout, view)
	return playLoop(ctx, rec, os.Stdin, os.Stdout)
}

func fillStrategy(name string) (func(play.Adapter) error, error) {
	switch name {
	case "random":
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		return func(a play.Adapter) error { return play.AutoFill(a, rnd) }, nil
	case "first":
		return play.FillFirst, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q, want random or first", name)
	}
}

// autoPlay follows the room until it finishes or closes, answering each
// question with the strategy's draft.
func autoPlay(ctx context.Context, rec *play.Reconciler, fill func(play.Adapter) error, log *logrus.Logger) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if err := rec.Refresh(ctx); err != nil {
			if errors.Is(err, domain.ErrNotInRoom) {
				log.Info("room closed")
				return nil
			}
			if api.IsIdentityRejected(err) {
				return fmt.Errorf("evicted from room")
			}
			log.WithError(err).Debug("refresh")
			continue
		}
		view := rec.Snapshot()
		switch view.Phase {
		case domain.PhaseJoin:
			log.Info("room closed")
			return nil
		case domain.PhaseFinished:
			for _, e := range view.Standings() {
				log.WithFields(logrus.Fields{
					"position": e.Position,
					"nickname": e.Nickname,
					"score":    e.TotalScore,
				}).Info("final standing")
			}
			return nil
		case domain.PhaseQuestion:
			if view.Adapter == nil || view.Adapter.Answered() {
				continue
			}
			if err := fill(view.Adapter); err != nil {
				log.WithError(err).Warn("autofill")
				continue
			}
			if err := rec.Submit(ctx); err != nil {
				log.WithError(err).Debug("submit")
				continue
			}
			log.WithField("question", view.Session.CurrentQuestion).Info("answered")
		}
	}
}

func playLoop(ctx context.Context, rec *play.Reconciler, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprintln(out, `commands: state, pick N, toggle N, move FROM TO, pair TERM DEFINITION, num VALUE, submit, nick NAME, leave, quit`)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if err := runPlayCommand(ctx, rec, out, fields); err != nil {
			if err == errQuit {
				return nil
			}
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		view := rec.Snapshot()
		if view.Phase == domain.PhaseJoin {
			fmt.Fprintln(out, "no longer in a room")
			return nil
		}
	}
}

var errQuit = fmt.Errorf("quit")

func runPlayCommand(ctx context.Context, rec *play.Reconciler, out io.Writer, fields []string) error {
	view := rec.Snapshot()
	switch fields[0] {
	case "quit":
		return errQuit
	case "state":
		if err := rec.Refresh(ctx); err != nil {
			return err
		}
		renderView(out, rec.Snapshot())
		return nil
	case "leave":
		return rec.Leave(ctx)
	case "nick":
		if len(fields) < 2 {
			return fmt.Errorf("usage: nick NAME")
		}
		return rec.UpdateNickname(ctx, strings.Join(fields[1:], " "))
	case "submit":
		if err := rec.Submit(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "answer sent")
		return nil
	}

	if view.Adapter == nil {
		return domain.ErrNoQuestion
	}
	switch fields[0] {
	case "pick":
		a, ok := view.Adapter.(*play.SingleChoiceAdapter)
		if !ok {
			return fmt.Errorf("pick applies to single choice questions")
		}
		if len(fields) < 2 {
			return fmt.Errorf("usage: pick OPTION")
		}
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return err
		}
		if err := a.Select(id); err != nil {
			return err
		}
		// Single choice is pick-and-go.
		if err := rec.Submit(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "answer sent")
		return nil
	case "toggle":
		a, ok := view.Adapter.(*play.MultipleChoiceAdapter)
		if !ok {
			return fmt.Errorf("toggle applies to multiple choice questions")
		}
		if len(fields) < 2 {
			return fmt.Errorf("usage: toggle OPTION")
		}
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return err
		}
		return a.Toggle(id)
	case "move":
		a, ok := view.Adapter.(*play.OrderingAdapter)
		if !ok {
			return fmt.Errorf("move applies to ordering questions")
		}
		if len(fields) < 3 {
			return fmt.Errorf("usage: move FROM TO")
		}
		from, err := strconv.Atoi(fields[1])
		if err != nil {
			return err
		}
		to, err := strconv.Atoi(fields[2])
		if err != nil {
			return err
		}
		return a.Move(from-1, to-1)
	case "pair":
		a, ok := view.Adapter.(*play.MatchingAdapter)
		if !ok {
			return fmt.Errorf("pair applies to matching questions")
		}
		if len(fields) < 3 {
			return fmt.Errorf("usage: pair TERM DEFINITION")
		}
		termID, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return err
		}
		return a.Pair(termID, strings.Join(fields[2:], " "))
	case "num":
		a, ok := view.Adapter.(*play.NumericAdapter)
		if !ok {
			return fmt.Errorf("num applies to numeric questions")
		}
		if len(fields) < 2 {
			return fmt.Errorf("usage: num VALUE")
		}
		return a.SetInput(fields[1])
	}
	return fmt.Errorf("unknown command %q", fields[0])
}

func renderView(out io.Writer, v play.View) {
	switch v.Phase {
	case domain.PhaseLobby:
		fmt.Fprintf(out, "room %s: waiting for the host to start (%d joined)\n", v.Room.Code, len(v.Members))
		for _, m := range v.Members {
			fmt.Fprintf(out, "  - %s\n", m.Nickname)
		}
	case domain.PhaseQuestion:
		renderQuestion(out, v)
	case domain.PhaseRevealed:
		renderReveal(out, v)
	case domain.PhaseFinished:
		fmt.Fprintln(out, "final standings:")
		for _, e := range v.Standings() {
			fmt.Fprintf(out, "  %d. %s  %d pts\n", e.Position, e.Nickname, e.TotalScore)
		}
	}
}

func renderQuestion(out io.Writer, v play.View) {
	q := v.Session.Question
	if q == nil {
		return
	}
	fmt.Fprintf(out, "question %d/%d: %s\n", v.Session.CurrentQuestion, v.Session.TotalQuestions, q.Text)
	switch a := v.Adapter.(type) {
	case *play.SingleChoiceAdapter:
		for _, o := range q.Detail.(domain.SingleChoice).Options {
			fmt.Fprintf(out, "  [%d] %s\n", o.ID, o.Text)
		}
	case *play.MultipleChoiceAdapter:
		selected := map[int64]bool{}
		for _, id := range a.Selected() {
			selected[id] = true
		}
		for _, o := range q.Detail.(domain.MultipleChoice).Options {
			mark := " "
			if selected[o.ID] {
				mark = "x"
			}
			fmt.Fprintf(out, "  [%s] %d %s\n", mark, o.ID, o.Text)
		}
	case *play.OrderingAdapter:
		for i, item := range a.Order() {
			fmt.Fprintf(out, "  %d. %s\n", i+1, item.Text)
		}
	case *play.MatchingAdapter:
		pairs := a.Pairs()
		for _, term := range a.Terms() {
			fmt.Fprintf(out, "  [%d] %s -> %s\n", term.ID, term.Text, pairs[term.ID])
		}
		fmt.Fprintf(out, "  definitions: %s\n", strings.Join(a.Definitions(), ", "))
	case *play.NumericAdapter:
		if value := a.Value(); value != nil {
			fmt.Fprintf(out, "  draft: %v\n", *value)
		}
	}
	if v.Adapter != nil && v.Adapter.Answered() {
		fmt.Fprintln(out, "  (answered)")
	}
}

func renderReveal(out io.Writer, v play.View) {
	q := v.Session.Question
	if q == nil {
		return
	}
	fmt.Fprintf(out, "answer revealed for question %d/%d\n", v.Session.CurrentQuestion, v.Session.TotalQuestions)
	if v.MyResult != nil && v.MyResult.Answered {
		verdict := "wrong"
		if v.MyResult.IsCorrect {
			verdict = "correct"
		}
		fmt.Fprintf(out, "  you were %s (+%d, total %d)\n", verdict, v.MyResult.Score, v.MyResult.TotalScore)
		return
	}
	if v.Adapter != nil && v.Adapter.Answered() {
		if correct, ok := v.Adapter.Correct(q.Detail); ok {
			verdict := "wrong"
			if correct {
				verdict = "correct"
			}
			fmt.Fprintf(out, "  you were %s\n", verdict)
			return
		}
	}
	fmt.Fprintln(out, "  you did not answer")
}
