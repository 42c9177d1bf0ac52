package cli

import (
	"context"

	"github.com/spf13/cobra"

	"lantern-quiz-service/internal/app"
)

// NewResetRiddleCmd reopens a solved riddle. Recorded attempts are kept.
func NewResetRiddleCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-riddle <riddle-id>",
		Short: "Mark a riddle unsolved again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResetRiddle(cmd.Context(), *configPath, args[0])
		},
	}
}

func runResetRiddle(ctx context.Context, configPath, riddleID string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	engine := app.NewRiddleEngine(b.riddles, b.ledger, b.directory, nil, app.WithLogger(log))
	return engine.ResetRiddle(ctx, riddleID)
}
