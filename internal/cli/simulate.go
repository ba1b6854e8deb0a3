package cli

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"quizroom-client/internal/api"
	"quizroom-client/internal/config"
	"quizroom-client/internal/domain"
	"quizroom-client/internal/identity"
	"quizroom-client/internal/play"
	"quizroom-client/internal/transport"
)

// NewSimulateCmd floods a room with automated participants that answer every
// question with a random valid draft. Useful for exercising a server.
func NewSimulateCmd(configPath, baseURL *string) *cobra.Command {
	var (
		code    string
		count   int
		seed    int64
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run automated participants against a room",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd.Context(), *configPath, *baseURL, code, count, seed, timeout)
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "room code to join")
	cmd.Flags().IntVar(&count, "count", 5, "number of simulated participants")
	cmd.Flags().Int64Var(&seed, "seed", 0, "randomness seed, 0 for time-based")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "give up after this long")
	return cmd
}

func runSimulate(ctx context.Context, configPath, baseURLFlag, code string, count int, seed int64, timeout time.Duration) error {
	if code == "" {
		return fmt.Errorf("--code is required")
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	log := logrus.New()
	base := resolveBaseURL(cfg, baseURLFlag)
	backoff := config.TTLDuration(cfg.Transport.Backoff, 3*time.Second)
	code = strings.ToUpper(code)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < count; i++ {
		i := i
		g.Go(func() error {
			return simulateParticipant(ctx, base, code, fmt.Sprintf("bot-%02d", i+1),
				rand.New(rand.NewSource(seed+int64(i))), backoff, log)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	log.WithField("count", count).Info("all simulated participants finished")
	return nil
}

func simulateParticipant(ctx context.Context, base, code, nickname string, rnd *rand.Rand, backoff time.Duration, log *logrus.Logger) error {
	client := api.New(base)
	rec := play.NewReconciler(client, identity.NewMemoryStore(),
		play.WithLogger(log), play.WithRand(rnd))
	if err := rec.Join(ctx, code, nickname); err != nil {
		return fmt.Errorf("%s join: %w", nickname, err)
	}
	sub := transport.Subscribe(client.RoomSocketURL(code), rec.HandleMessage,
		transport.WithBackoff(backoff), transport.WithLogger(log))
	defer sub.Close()

	// Push signals drive most refreshes; the ticker covers missed ones.
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
				return nil
			}
			if api.IsIdentityRejected(err) {
				return fmt.Errorf("%s evicted from room", nickname)
			}
			log.WithError(err).WithField("bot", nickname).Debug("refresh")
			continue
		}
		view := rec.Snapshot()
		switch view.Phase {
		case domain.PhaseJoin:
			// Room closed under us.
			return nil
		case domain.PhaseFinished:
			return nil
		case domain.PhaseQuestion:
			if view.Adapter == nil || view.Adapter.Answered() {
				continue
			}
			if err := play.AutoFill(view.Adapter, rnd); err != nil {
				log.WithError(err).WithField("bot", nickname).Warn("autofill")
				continue
			}
			if err := rec.Submit(ctx); err != nil {
				log.WithError(err).WithField("bot", nickname).Debug("submit")
			}
		}
	}
}
