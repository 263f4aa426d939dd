package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"courtsim/internal/models"
)

// NewScenariosCmd creates the scenario listing command.
func NewScenariosCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenarios",
		Short: "List the scenarios a hearing can be held on",
		RunE:  runScenarios,
	}
	cmd.Flags().Bool("json", false, "print the full scenarios as JSON")
	return cmd
}

func runScenarios(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := openScenarios(cfg)
	if err != nil {
		return err
	}
	asJSON, _ := cmd.Flags().GetBool("json")
	return printScenarios(cmd.OutOrStdout(), store.All(), asJSON)
}

func printScenarios(out io.Writer, scenarios []models.Scenario, asJSON bool) error {
	if asJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(struct {
			Scenarios []models.Scenario `json:"scenarios"`
		}{scenarios})
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "INDEX\tTITLE\tCOACHING")
	fmt.Fprintln(w, "-----\t-----\t--------")
	for i, sc := range scenarios {
		fmt.Fprintf(w, "%d\t%s\t%s\n", i, sc.RuleTitle, coachingLabel(sc))
	}
	return w.Flush()
}

func coachingLabel(sc models.Scenario) string {
	switch {
	case sc.PlaintiffCoach != "" && sc.DefendantCoach != "":
		return "both"
	case sc.PlaintiffCoach != "":
		return "plaintiff"
	case sc.DefendantCoach != "":
		return "defendant"
	}
	return "-"
}
