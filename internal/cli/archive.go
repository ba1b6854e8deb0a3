package cli

import (
	"context"
	"fmt"
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

// NewArchiveCmd records and browses archived session outcomes in Postgres.
func NewArchiveCmd(configPath, baseURL *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Record and browse archived session results",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "follow ROOM_ID",
		Short: "Follow a room and archive every finished session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roomID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return err
			}
			return runArchiveFollow(cmd.Context(), *configPath, *baseURL, roomID)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "room CODE",
		Short: "List archived results for a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRecorder(cmd.Context(), *configPath, func(ctx context.Context, r *archive.Recorder) error {
				entries, err := r.RoomHistory(ctx, strings.ToUpper(args[0]))
				if err != nil {
					return err
				}
				printEntries(entries)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "member ID",
		Short: "List archived results for a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			memberID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return err
			}
			return withRecorder(cmd.Context(), *configPath, func(ctx context.Context, r *archive.Recorder) error {
				entries, err := r.MemberHistory(ctx, memberID)
				if err != nil {
					return err
				}
				printEntries(entries)
				return nil
			})
		},
	})
	return cmd
}

// runArchiveFollow watches one room until it closes and writes every
// finished session's standings to the archive exactly once.
func runArchiveFollow(ctx context.Context, configPath, baseURLFlag string, roomID int64) error {
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

	return withRecorder(ctx, configPath, func(ctx context.Context, recorder *archive.Recorder) error {
		if err := controller.Attach(ctx, roomID); err != nil {
			return err
		}
		backoff := config.TTLDuration(cfg.Transport.Backoff, 3*time.Second)
		sub := transport.Subscribe(client.RoomSocketURL(controller.Room().Code), controller.HandleMessage,
			transport.WithBackoff(backoff), transport.WithLogger(log))
		defer sub.Close()

		// Push signals trigger refreshes inside the controller; the ticker
		// only paces how often we look at the result.
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		var lastRecorded int64
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
			if controller.Room().Status == domain.RoomStatusClosed {
				log.Info("room closed, archiver stopping")
				return nil
			}
			if err := controller.Refresh(ctx); err != nil {
				log.WithError(err).Debug("refresh")
				continue
			}
			session := controller.Session()
			if session == nil || session.Status != domain.StatusFinished || session.ID == lastRecorded {
				continue
			}
			if err := recorder.RecordFinish(ctx, controller.Room().Code, session, controller.Standings()); err != nil {
				log.WithError(err).WithField("session_id", session.ID).Error("archive write")
				continue
			}
			lastRecorded = session.ID
			log.WithField("session_id", session.ID).Info("session archived")
		}
	})
}

func withRecorder(ctx context.Context, configPath string, fn func(context.Context, *archive.Recorder) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, archive.NewRecorder(pool))
}

func printEntries(entries []archive.Entry) {
	for _, e := range entries {
		fmt.Printf("%s  room %s  session %d  #%d %s  %d pts (%d questions)\n",
			e.FinishedAt.Format("2006-01-02 15:04"), e.RoomCode, e.SessionID,
			e.Position, e.Nickname, e.TotalScore, e.TotalQuestions)
	}
}
