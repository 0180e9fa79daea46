package cmd

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	ffargs "github.com/smazurov/outputnode/internal/ffmpeg"
	"github.com/smazurov/outputnode/internal/handles"
	"github.com/smazurov/outputnode/internal/presets"
	"github.com/smazurov/outputnode/internal/profile"
)

// CreatePresetsCmd creates the presets command.
func CreatePresetsCmd() *cobra.Command {
	var probe bool
	var binary string
	var profilePath string

	cmd := &cobra.Command{
		Use:   "presets",
		Short: "List encoder families and the resolved output plan",
		Long: `Lists every video encoder family with its codec and quality mode. With --probe the ` +
			`ffmpeg binary is asked which encoders it was built with. With --profile the encoder ` +
			`settings the profile resolves to are shown for streaming and recording.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var available map[string]bool
			if probe {
				encoders, err := ffargs.ListEncoders(cmd.Context(), binary)
				if err != nil {
					return fmt.Errorf("probe ffmpeg: %w", err)
				}
				available = make(map[string]bool, len(encoders))
				for _, e := range encoders {
					available[e.Name] = true
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Name", "Codec", "FFmpeg", "Quality", "Available"},
				familyRows(available),
			))

			if profilePath == "" {
				return nil
			}
			p, err := profile.Load(profilePath)
			if err != nil {
				return err
			}
			rows, err := planRows(p)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Output", "Encoder", "Rate control", "Video", "Audio", "Container"},
				rows, 4, 5,
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&probe, "probe", false, "Ask ffmpeg which encoders are available")
	cmd.Flags().StringVar(&binary, "ffmpeg", "ffmpeg", "ffmpeg binary used by --probe")
	cmd.Flags().StringVar(&profilePath, "profile", "", "Output profile to resolve")
	return cmd
}

// familyRows lists every family. available is keyed by ffmpeg encoder
// name; nil leaves the column as "?".
func familyRows(available map[string]bool) [][]string {
	var rows [][]string
	for _, f := range presets.Families() {
		avail := "?"
		if available != nil {
			avail = yesNo(available[f.FFmpegEncoder])
		}
		rows = append(rows, []string{f.ID, f.Name, f.Codec, f.FFmpegEncoder, string(f.Quality()), avail})
	}
	return rows
}

// planRows resolves p into one row per output that owns encoders.
func planRows(p *profile.Profile) ([][]string, error) {
	plan, err := p.Plan()
	if err != nil {
		return nil, err
	}
	stream, err := plan.Streaming(p.StreamService())
	if err != nil {
		return nil, fmt.Errorf("streaming preset: %w", err)
	}
	rows := [][]string{{
		"streaming", stream.VideoType, stream.Video.String("rate_control"),
		kbps(stream.Video.Int("bitrate")), kbps(stream.Audio.Int("bitrate")), stream.Protocol.Protocol,
	}}

	rec, err := plan.Recording(stream)
	if err != nil {
		return nil, fmt.Errorf("recording preset: %w", err)
	}
	if rec.Alias {
		rows = append(rows, []string{"recording", "(stream encoder)", "", "", "", rec.Container.Name})
	} else {
		rows = append(rows, []string{
			"recording", rec.Set.VideoType, settingOr(rec.Set.Video, "rate_control", string(rec.Tier)),
			kbps(rec.Set.Video.Int("bitrate")), kbps(rec.Set.Audio.Int("bitrate")), rec.Container.Name,
		})
	}

	maxBytes, err := p.Replay.MaxBytes()
	if err != nil {
		return nil, err
	}
	window := strconv.Itoa(p.Replay.MaxSeconds) + "s"
	if maxBytes > 0 {
		window += ", " + humanize.Bytes(maxBytes)
	}
	rows = append(rows, []string{"replay_buffer", "(recording encoders)", "", window, "", rec.Container.Name})
	return rows, nil
}

func kbps(v int) string {
	if v <= 0 {
		return "-"
	}
	return humanize.Comma(int64(v)) + " kbps"
}

func settingOr(s handles.Settings, key, def string) string {
	if v := s.String(key); v != "" {
		return v
	}
	return def
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
