package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smazurov/outputnode/internal/orchestrator"
	"github.com/smazurov/outputnode/internal/profile"
)

// CreateValidateCmd creates the validate command.
func CreateValidateCmd() *cobra.Command {
	var profilePath string
	var binary string
	var probe bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check an output profile",
		Long: `Loads the output profile, validates it and resolves its encoder plan. With --probe ` +
			`the plan is also checked against the encoders the local ffmpeg provides, the same ` +
			`check the daemon runs at startup.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := profile.Load(profilePath)
			if err != nil {
				return err
			}
			if err := p.Validate(); err != nil {
				return fmt.Errorf("%s: %w", profilePath, err)
			}
			rows, err := planRows(p)
			if err != nil {
				return fmt.Errorf("%s: %w", profilePath, err)
			}

			if probe {
				backend, closeBackend, err := NewBackend(cmd.Context(), BackendOptions{FFmpeg: binary, Probe: true}, p)
				if err != nil {
					return err
				}
				defer closeBackend()
				o, err := orchestrator.New(orchestrator.Config{Encoders: backend, Outputs: backend, Profile: p})
				if err != nil {
					return fmt.Errorf("%s: %w", profilePath, err)
				}
				o.Close()
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: ok (%s mode)\n", profilePath, p.Mode)
			fmt.Fprintln(out, renderTable(
				[]string{"Output", "Encoder", "Rate control", "Video", "Audio", "Container"},
				rows, 4, 5,
			))
			return nil
		},
	}

	cmd.Flags().StringVarP(&profilePath, "profile", "f", profile.DefaultPath, "Output profile to check")
	cmd.Flags().StringVar(&binary, "ffmpeg", "ffmpeg", "ffmpeg binary used by --probe")
	cmd.Flags().BoolVar(&probe, "probe", false, "Check encoder availability against ffmpeg")
	return cmd
}
