package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"quizroom-client/internal/api"
	"quizroom-client/internal/archive"
	"quizroom-client/internal/config"
	"quizroom-client/internal/domain"
	"quizroom-client/internal/host"
	"quizroom-client/internal/transport"
)

// NewHostCmd creates or attaches to a room and drives it interactively,
// or automatically when --quiz is given.
func NewHostCmd(configPath, baseURL *string) *cobra.Command {
	var roomID, quizID int64
	var mode string
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Create a room and run quizzes in it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost(cmd.Context(), *configPath, *baseURL, roomID, quizID, mode)
		},
	}
	cmd.Flags().Int64Var(&roomID, "room", 0, "attach to an existing room id")
	cmd.Flags().Int64Var(&quizID, "quiz", 0, "start this quiz and auto-advance to the end")
	cmd.Flags().StringVar(&mode, "mode", domain.RoomModeWeb, "room mode when creating")
	return cmd
}

func runHost(ctx context.Context, configPath, baseURLFlag string, roomID, quizID int64, mode string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Server.HostToken == "" {
		return fmt.Errorf("host_token not configured")
	}
	log := logrus.New()
	client := api.New(resolveBaseURL(cfg, baseURLFlag), api.WithAuthToken(cfg.Server.HostToken))
	controller := host.NewController(client, host.WithLogger(log))

	var recorder *archive.Recorder
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		recorder = archive.NewRecorder(pool)
	}

	if roomID != 0 {
		if err := controller.Attach(ctx, roomID); err != nil {
			return err
		}
	} else {
		room, err := controller.CreateRoom(ctx, mode)
		if err != nil {
			return err
		}
		fmt.Printf("room created, join code: %s\n", room.Code)
	}

	backoff := config.TTLDuration(cfg.Transport.Backoff, 3*time.Second)
	sub := transport.Subscribe(client.RoomSocketURL(controller.Room().Code), controller.HandleMessage,
		transport.WithBackoff(backoff), transport.WithLogger(log))
	defer sub.Close()

	if quizID != 0 {
		return hostAutoDrive(ctx, controller, recorder, quizID, log)
	}
	return hostLoop(ctx, controller, recorder, os.Stdin, os.Stdout)
}

// hostAutoDrive waits for at least one participant, starts the quiz, then
// walks every question to the end: reveal once everyone answered (or after
// a grace period), advance, archive the finished session.
func hostAutoDrive(ctx context.Context, c *host.Controller, recorder *archive.Recorder, quizID int64, log *logrus.Logger) error {
	const (
		pollEvery   = 2 * time.Second
		answerGrace = 30 * time.Second
	)
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()

	log.WithField("room", c.Room().Code).Info("waiting for participants")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if _, err := c.StartQuiz(ctx, quizID); err != nil {
			if errors.Is(err, host.ErrEmptyRoom) {
				continue
			}
			return err
		}
		break
	}
	log.WithField("quiz_id", quizID).Info("quiz started")

	questionShown := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if err := c.Refresh(ctx); err != nil {
			log.WithError(err).Debug("refresh")
			continue
		}
		session := c.Session()
		if session == nil {
			return host.ErrNoActiveSession
		}
		switch session.Status {
		case domain.StatusQuestion:
			answered, total := c.AnswerCount()
			if (total > 0 && answered == total) || time.Since(questionShown) > answerGrace {
				if _, err := c.Reveal(ctx); err != nil {
					return err
				}
				log.WithFields(logrus.Fields{
					"question": session.CurrentQuestion,
					"answered": answered,
					"total":    total,
				}).Info("answer revealed")
			}
		case domain.StatusRevealed:
			next, err := c.Advance(ctx)
			if err != nil {
				return err
			}
			questionShown = time.Now()
			if next.Status != domain.StatusFinished {
				log.WithField("question", next.CurrentQuestion).Info("advanced")
			}
		case domain.StatusFinished:
			for _, e := range c.Standings() {
				log.WithFields(logrus.Fields{
					"position": e.Position,
					"nickname": e.Nickname,
					"score":    e.TotalScore,
				}).Info("final standing")
			}
			if recorder != nil {
				if err := recorder.RecordFinish(ctx, c.Room().Code, session, c.Standings()); err != nil {
					log.WithError(err).Error("archive write")
				}
			}
			return nil
		}
	}
}

func hostLoop(ctx context.Context, c *host.Controller, recorder *archive.Recorder, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprintln(out, `commands: state, quizzes, start ID, reveal, next, leaderboard, close, quit`)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		done, err := runHostCommand(ctx, c, recorder, out, fields)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		if done {
			return nil
		}
	}
}

func runHostCommand(ctx context.Context, c *host.Controller, recorder *archive.Recorder, out io.Writer, fields []string) (bool, error) {
	switch fields[0] {
	case "quit":
		return true, nil
	case "state":
		if err := c.Refresh(ctx); err != nil {
			return false, err
		}
		renderHostState(out, c)
		return false, nil
	case "quizzes":
		quizzes, err := c.ListQuizzes(ctx)
		if err != nil {
			return false, err
		}
		for _, q := range quizzes {
			fmt.Fprintf(out, "  [%d] %s (%d questions)\n", q.ID, q.Title, q.QuestionCount)
		}
		return false, nil
	case "start":
		if len(fields) < 2 {
			return false, fmt.Errorf("usage: start QUIZ_ID")
		}
		quizID, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return false, err
		}
		session, err := c.StartQuiz(ctx, quizID)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(out, "quiz started, question 1/%d\n", session.TotalQuestions)
		return false, nil
	case "reveal":
		session, err := c.Reveal(ctx)
		if err != nil {
			return false, err
		}
		answered, total := c.AnswerCount()
		fmt.Fprintf(out, "answer revealed for question %d (%d/%d answered)\n", session.CurrentQuestion, answered, total)
		return false, nil
	case "next":
		session, err := c.Advance(ctx)
		if err != nil {
			return false, err
		}
		if session.Status == domain.StatusFinished {
			fmt.Fprintln(out, "quiz finished, standings:")
			for _, e := range c.Standings() {
				fmt.Fprintf(out, "  %d. %s  %d pts\n", e.Position, e.Nickname, e.TotalScore)
			}
			if recorder != nil {
				if err := recorder.RecordFinish(ctx, c.Room().Code, session, c.Standings()); err != nil {
					fmt.Fprintf(out, "archive failed: %v\n", err)
				}
			}
		} else {
			fmt.Fprintf(out, "question %d/%d\n", session.CurrentQuestion, session.TotalQuestions)
		}
		return false, nil
	case "leaderboard":
		entries, err := c.Leaderboard(ctx)
		if err != nil {
			return false, err
		}
		for _, e := range entries {
			fmt.Fprintf(out, "  %d. %s  %d pts\n", e.Position, e.Nickname, e.TotalScore)
		}
		return false, nil
	case "close":
		if err := c.CloseRoom(ctx); err != nil {
			return false, err
		}
		fmt.Fprintln(out, "room closed")
		return true, nil
	}
	return false, fmt.Errorf("unknown command %q", fields[0])
}

func renderHostState(out io.Writer, c *host.Controller) {
	room := c.Room()
	if room == nil {
		return
	}
	fmt.Fprintf(out, "room %s (%s), %d members\n", room.Code, room.Status, len(room.Members))
	for _, m := range room.Members {
		fmt.Fprintf(out, "  - %s\n", m.Nickname)
	}
	if session := c.Session(); session != nil {
		answered, total := c.AnswerCount()
		fmt.Fprintf(out, "session %d: %s, question %d/%d, %d/%d answered\n",
			session.ID, session.Status, session.CurrentQuestion, session.TotalQuestions, answered, total)
	}
}
