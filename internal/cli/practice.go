package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"quizroom-client/internal/domain"
	"quizroom-client/internal/identity"
	"quizroom-client/internal/play"
	"quizroom-client/internal/practice"
)

// NewPracticeCmd runs the built-in quiz offline, no server needed.
func NewPracticeCmd() *cobra.Command {
	var nickname string
	cmd := &cobra.Command{
		Use:   "practice",
		Short: "Play a built-in quiz offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPractice(cmd.Context(), nickname)
		},
	}
	cmd.Flags().StringVar(&nickname, "nickname", "you", "display name")
	return cmd
}

func runPractice(ctx context.Context, nickname string) error {
	authority := practice.NewAuthority(practice.SampleQuiz())
	rec := play.NewReconciler(authority, identity.NewMemoryStore(), play.WithLogger(logrus.New()))
	if err := rec.Join(ctx, "PRACTICE", nickname); err != nil {
		return err
	}
	renderView(os.Stdout, rec.Snapshot())
	return practiceLoop(ctx, rec, authority, os.Stdin, os.Stdout)
}

// practiceLoop is the play loop plus a local "next" that takes the host's
// role of stepping past revealed questions.
func practiceLoop(ctx context.Context, rec *play.Reconciler, authority *practice.Authority, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprintln(out, `commands: state, pick N, toggle N, move FROM TO, pair TERM DEFINITION, num VALUE, submit, next, quit`)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		var err error
		if fields[0] == "next" {
			if err = authority.Advance(); err == nil {
				err = rec.Refresh(ctx)
			}
		} else {
			err = runPlayCommand(ctx, rec, out, fields)
		}
		if err != nil {
			if err == errQuit {
				return nil
			}
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		if rec.Snapshot().Phase == domain.PhaseJoin {
			return nil
		}
		if err := rec.Refresh(ctx); err != nil {
			return err
		}
		view := rec.Snapshot()
		renderView(out, view)
		if view.Phase == domain.PhaseFinished {
			return nil
		}
	}
}
