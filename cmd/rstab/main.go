// Command rstab converts a Rocksmith 2014 song archive into a Guitar
// Pro 6 tablature file.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/leafo/rstab"
)

func main() {
	log := logrus.New()

	var jsonOutput bool
	var verbose bool
	var midiPreviewPath string

	root := &cobra.Command{
		Use:           "rstab",
		Short:         "Convert Rocksmith 2014 PSARC archives into Guitar Pro 6 (.gpx) files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	convertCmd := &cobra.Command{
		Use:   "convert <input.psarc> <output.gpx>",
		Short: "Convert a PSARC archive to a GPX tab file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				log.SetLevel(logrus.DebugLevel)
			}
			return runConvert(log, args[0], args[1], midiPreviewPath, jsonOutput)
		},
	}
	convertCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the conversion result as JSON")
	convertCmd.Flags().StringVar(&midiPreviewPath, "midi-preview", "", "also write a MIDI preview of the reconstructed score to this path")
	convertCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log every pipeline stage")

	root.AddCommand(convertCmd)

	if err := root.Execute(); err != nil {
		log.WithError(err).Error("conversion failed")
		os.Exit(1)
	}
}

func runConvert(log *logrus.Logger, inputPath, outputPath, midiPreviewPath string, jsonOutput bool) error {
	progress := func(stage string, percent int) {
		log.WithFields(logrus.Fields{"stage": stage, "percent": percent}).Debug("pipeline stage")
	}

	result, err := rstab.Convert(inputPath, outputPath, progress)
	if err != nil {
		return fmt.Errorf("converting %s: %w", inputPath, err)
	}

	for _, w := range result.Warnings {
		log.WithField("warning", w).Warn("non-fatal issue during conversion")
	}

	if midiPreviewPath != "" {
		if err := writeMidiPreviewFile(inputPath, midiPreviewPath, log); err != nil {
			log.WithError(err).Warn("midi preview export failed")
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Printf("wrote %s (%d tracks)\n", result.OutputPath, result.TrackCount)
	for _, w := range result.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	return nil
}

func writeMidiPreviewFile(inputPath, midiPreviewPath string, log *logrus.Logger) error {
	score, err := rstab.BuildScoreFromPsarc(inputPath)
	if err != nil {
		return err
	}

	f, err := os.Create(midiPreviewPath)
	if err != nil {
		return fmt.Errorf("creating midi preview file: %w", err)
	}
	defer f.Close()

	if err := rstab.WriteMidiPreview(score, f); err != nil {
		return err
	}

	log.WithField("path", midiPreviewPath).Info("wrote midi preview")
	return nil
}
