package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"courtsim/internal/hearing"
	"courtsim/internal/models"
	"courtsim/internal/service/ai"
)

// apiKeyEnv lists the variables consulted when --api-key is not given.
var apiKeyEnv = map[string][]string{
	"openai": {"COURTSIM_API_KEY", "OPENAI_API_KEY"},
	"claude": {"COURTSIM_API_KEY", "ANTHROPIC_API_KEY"},
	"gemini": {"COURTSIM_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

// NewPlayCmd creates the interactive terminal hearing command.
func NewPlayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play [scenario]",
		Short: "Hold a hearing in the terminal",
		Long: `Hold a hearing in the terminal. The scenario may be given as a title or as
its index in 'courtsim scenarios'; it defaults to the first one. You speak as
the defendant whenever the court calls on you, unless --autopilot is set.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runPlay,
	}
	cmd.Flags().String("provider", "openai", "language model provider (openai, claude, gemini)")
	cmd.Flags().String("model", "", "model name (defaults to the provider's configured model)")
	cmd.Flags().String("api-key", "", "provider API key (defaults to COURTSIM_API_KEY or the provider's usual variable)")
	cmd.Flags().Bool("autopilot", false, "let the model play the defendant too")
	cmd.Flags().Bool("coaching", false, "append coaching reviews for both parties after the costs ruling")
	cmd.Flags().Bool("coach-plaintiff", false, "give plaintiff's counsel the scenario's coaching note")
	cmd.Flags().Bool("coach-defendant", false, "give the defendant the scenario's coaching note")
	return cmd
}

func runPlay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := openScenarios(cfg)
	if err != nil {
		return err
	}
	key := "0"
	if len(args) == 1 {
		key = args[0]
	}
	sc, err := store.Resolve(key)
	if err != nil {
		return err
	}

	provider, _ := cmd.Flags().GetString("provider")
	provCfg, err := cfg.Provider(provider)
	if err != nil {
		return err
	}
	model, _ := cmd.Flags().GetString("model")
	apiKey, _ := cmd.Flags().GetString("api-key")
	if apiKey == "" {
		apiKey = lookupAPIKey(provider)
	}
	if apiKey == "" {
		return fmt.Errorf("no api key for %s: pass --api-key or set %s", provider, strings.Join(apiKeyEnv[provider], " or "))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	svc, err := ai.NewService(ctx, provider, provCfg, model, apiKey)
	if err != nil {
		return err
	}
	autopilot, _ := cmd.Flags().GetBool("autopilot")
	coaching, _ := cmd.Flags().GetBool("coaching")
	coachPlaintiff, _ := cmd.Flags().GetBool("coach-plaintiff")
	coachDefendant, _ := cmd.Flags().GetBool("coach-defendant")

	c := hearing.NewConductor(svc, nil, sc, nil, hearing.Options{
		Autopilot:        autopilot,
		Coaching:         coaching,
		PlaintiffCoached: coachPlaintiff,
		DefendantCoached: coachDefendant,
		Generation:       cfg.Generation.For(provider),
		MaxTurns:         cfg.BasicConfig.MaxTurns,
		Logger:           logrus.WithField("provider", provider),
	})

	out := cmd.OutOrStdout()
	color.New(color.Bold).Fprintf(out, "%s\n", sc.RuleTitle)
	fmt.Fprintf(out, "%s\n\n", sc.Application)
	return playHearing(ctx, c, cmd.InOrStdin(), out)
}

func lookupAPIKey(provider string) string {
	for _, name := range apiKeyEnv[provider] {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

// playHearing alternates between running the conductor and reading the
// defendant's submissions from in until the hearing ends or in is exhausted.
func playHearing(ctx context.Context, c *hearing.Conductor, in io.Reader, out io.Writer) error {
	sink := newTerminalSink(out)
	for _, msg := range c.Transcript().Messages() {
		sink.replay(msg)
	}
	scanner := bufio.NewScanner(in)
	for {
		if err := c.Run(ctx, sink); err != nil {
			return err
		}
		switch c.State() {
		case hearing.AwaitingDefendant:
		case hearing.Idle:
			fmt.Fprintln(out, color.YellowString("The court has not called on anyone. You may address it."))
		case hearing.Terminated:
			fmt.Fprintln(out, color.GreenString("Hearing concluded."))
			return nil
		default:
			return fmt.Errorf("hearing stopped in state %s", c.State())
		}

		for {
			fmt.Fprint(out, color.MagentaString("defendant> "))
			if !scanner.Scan() {
				fmt.Fprintln(out)
				return scanner.Err()
			}
			_, err := c.Submit(ctx, scanner.Text())
			if errors.Is(err, hearing.ErrEmptyInput) {
				continue
			}
			if err != nil {
				return err
			}
			break
		}
	}
}

// terminalSink streams each turn to the terminal with one colour per role.
type terminalSink struct {
	out io.Writer
}

func newTerminalSink(out io.Writer) *terminalSink {
	return &terminalSink{out: out}
}

func roleColor(role models.Role) *color.Color {
	switch role {
	case models.RoleCourt:
		return color.New(color.FgCyan)
	case models.RoleCounsel:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgMagenta)
	}
}

func turnLabel(turn hearing.Turn) string {
	switch turn {
	case hearing.TurnCounsel:
		return "Plaintiff's counsel"
	case hearing.TurnDefendant:
		return "Defendant"
	case hearing.TurnCosts:
		return "Court (costs)"
	case hearing.TurnPlaintiffCoaching:
		return "Coaching: plaintiff"
	case hearing.TurnDefendantCoaching:
		return "Coaching: defendant"
	default:
		return "Court"
	}
}

func (s *terminalSink) replay(msg models.Message) {
	roleColor(msg.Role).Add(color.Bold).Fprintf(s.out, "%s: ", msg.Role)
	fmt.Fprintf(s.out, "%s\n\n", msg.Content)
}

func (s *terminalSink) TurnStarted(turn hearing.Turn) {
	roleColor(turn.Role()).Add(color.Bold).Fprintf(s.out, "%s: ", turnLabel(turn))
}

func (s *terminalSink) Token(turn hearing.Turn, chunk string) error {
	_, err := fmt.Fprint(s.out, chunk)
	return err
}

func (s *terminalSink) MessageAppended(hearing.Turn, models.Message) {
	fmt.Fprint(s.out, "\n\n")
}
