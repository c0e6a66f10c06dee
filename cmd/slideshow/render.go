package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobarin/storyreel/internal/services"
	"github.com/bobarin/storyreel/internal/slideshow"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var renderFlags struct {
	outputDir     string
	tempDir       string
	transition    string
	duration      float64
	transitions   bool
	crossfade     bool
	music         string
	musicVolume   float64
	fontFile      string
	encodeTimeout time.Duration
}

var renderCmd = &cobra.Command{
	Use:   "render <scenes.json>",
	Short: "Render a scenes file into a video",
	Long: `Render reads a JSON array of scenes ({"index","description","dialogue",
"imagePath","audioPath"}) and writes the final video under <output>/final.
Relative paths are resolved against the scenes file. The result is printed as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scenes, err := readScenes(args[0])
		if err != nil {
			return err
		}

		ffmpegSvc, err := services.NewFFmpegService(renderFlags.tempDir, "", "")
		if err != nil {
			return err
		}
		if err := ffmpegSvc.CheckBinaries(); err != nil {
			return err
		}

		pipeline, err := slideshow.New(ffmpegSvc, slideshow.Config{
			TempDir:       ffmpegSvc.TempDir(),
			OutputDir:     renderFlags.outputDir,
			ProbeTimeout:  15 * time.Second,
			EncodeTimeout: renderFlags.encodeTimeout,
			CaptionStyle:  slideshow.CaptionStyle{FontFile: renderFlags.fontFile},
		})
		if err != nil {
			return err
		}

		opts := slideshow.RunOptions{
			Transition:          slideshow.TransitionKind(renderFlags.transition),
			TransitionDuration:  renderFlags.duration,
			BackgroundMusicPath: renderFlags.music,
			MusicVolume:         slideshow.Volume(renderFlags.musicVolume),
			UseTransitions:      renderFlags.transitions,
			CrossfadeAudio:      renderFlags.crossfade,
			OnStateChange: func(s slideshow.State) {
				log.Info().Str("state", string(s)).Msg("render")
			},
		}

		final, err := pipeline.Run(cmd.Context(), scenes, opts)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(final)
	},
}

func init() {
	f := renderCmd.Flags()
	f.StringVarP(&renderFlags.outputDir, "output", "o", "output", "output directory; videos go to <output>/final")
	f.StringVar(&renderFlags.tempDir, "temp", filepath.Join(os.TempDir(), "storyreel"), "directory for intermediate files")
	f.StringVarP(&renderFlags.transition, "transition", "t", string(slideshow.TransitionFade), "xfade transition between scenes")
	f.Float64VarP(&renderFlags.duration, "duration", "d", slideshow.DefaultTransitionDuration, "transition length in seconds")
	f.BoolVar(&renderFlags.transitions, "transitions", false, "cross-fade between scenes instead of hard cuts")
	f.BoolVar(&renderFlags.crossfade, "crossfade-audio", false, "blend narration across transitions")
	f.StringVarP(&renderFlags.music, "music", "m", "", "background music track (hard-cut renders only)")
	f.Float64Var(&renderFlags.musicVolume, "music-volume", slideshow.DefaultMusicVolume, "background music volume, 0 to 1")
	f.StringVar(&renderFlags.fontFile, "font", "", "font file for captions")
	f.DurationVar(&renderFlags.encodeTimeout, "encode-timeout", 10*time.Minute, "limit for each ffmpeg encode")
}

// readScenes loads a scenes file, resolving media paths against its directory.
func readScenes(path string) ([]slideshow.Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenes []slideshow.Scene
	if err := json.Unmarshal(data, &scenes); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i := range scenes {
		scenes[i].ImagePath = resolve(base, scenes[i].ImagePath)
		scenes[i].AudioPath = resolve(base, scenes[i].AudioPath)
	}
	return scenes, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

var transitionsCmd = &cobra.Command{
	Use:   "transitions",
	Short: "List the supported transitions",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, k := range slideshow.TransitionKinds {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
	},
}
