package cmd

import (
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/attendance/internal/facematch"
	"github.com/kozaktomas/attendance/internal/pipeline"
	"github.com/kozaktomas/attendance/internal/roster"
)

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Inspect the known identities",
}

var rosterBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Load the reference images and list the known identities",
	Long: `Load every reference image, print the identities that were loaded and
the files that were skipped. When ROSTER_CACHE_PATH is set the cache is
refreshed, so the next run only embeds new or changed images.`,
	Args: cobra.NoArgs,
	RunE: runRosterBuild,
}

var rosterMatchCmd = &cobra.Command{
	Use:   "match <image>",
	Short: "Match the faces in a still image against the roster",
	Long: `Detect every face in a still image and print the best roster candidate
for each. Attendance is not recorded.

Examples:
  attendance roster match visitor.jpg
  attendance roster match visitor.jpg --tolerance 0.45 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runRosterMatch,
}

func init() {
	rootCmd.AddCommand(rosterCmd)
	rosterCmd.AddCommand(rosterBuildCmd)
	rosterCmd.AddCommand(rosterMatchCmd)

	rosterBuildCmd.Flags().Bool("json", false, "Output as JSON")

	rosterMatchCmd.Flags().Float64("tolerance", 0, "Maximum embedding distance for a match (default from the model profile)")
	rosterMatchCmd.Flags().Bool("json", false, "Output as JSON")
}

// RosterOutput is the JSON output of roster build.
type RosterOutput struct {
	Model      string           `json:"model"`
	Identities []RosterIdentity `json:"identities"`
	Skipped    []roster.Skipped `json:"skipped"`
	Files      int              `json:"files"`
	Cached     int              `json:"cached"`
}

// RosterIdentity is one identity in RosterOutput.
type RosterIdentity struct {
	Name    string   `json:"name"`
	Sources []string `json:"sources"`
}

func runRosterBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	jsonOutput := mustGetBool(cmd, "json")

	cfg := loadConfig(cmd)
	log := newLogger(cfg)

	detector, closeDetector, err := newDetector(cfg, log)
	if err != nil {
		return err
	}
	defer closeDetector()

	r, report, err := buildRoster(ctx, cfg, detector, log, !jsonOutput)
	if err != nil {
		return err
	}

	out := RosterOutput{
		Model:   r.Model(),
		Skipped: report.Skipped,
		Files:   report.Files,
		Cached:  report.Cached,
	}
	for _, id := range r.Identities() {
		out.Identities = append(out.Identities, RosterIdentity{Name: id.Name, Sources: id.Sources})
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tREFERENCES\tSOURCES")
	for _, id := range out.Identities {
		fmt.Fprintf(w, "%s\t%d\t%s\n", id.Name, len(id.Sources), strings.Join(id.Sources, ", "))
	}
	w.Flush()

	if len(out.Skipped) > 0 {
		fmt.Println()
		w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SKIPPED\tREASON")
		for _, s := range out.Skipped {
			fmt.Fprintf(w, "%s\t%s\n", s.Path, s.Reason)
		}
		w.Flush()
	}

	fmt.Printf("\nTotal known identities: %d (%d of %d files, %d cached)\n",
		len(out.Identities), report.Loaded, report.Files, report.Cached)
	return nil
}

// FaceMatch is one face in the roster match output.
type FaceMatch struct {
	Face       int     `json:"face"`
	Box        [4]int  `json:"box"` // x1, y1, x2, y2
	Name       string  `json:"name"`
	Matched    bool    `json:"matched"`
	Distance   float64 `json:"distance"`
	Confidence float64 `json:"confidence"`
}

func runRosterMatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	jsonOutput := mustGetBool(cmd, "json")

	cfg := loadConfig(cmd)
	if err := applyTolerance(cmd, cfg); err != nil {
		return err
	}
	log := newLogger(cfg)

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}

	detector, closeDetector, err := newDetector(cfg, log)
	if err != nil {
		return err
	}
	defer closeDetector()

	r, _, err := buildRoster(ctx, cfg, detector, log, false)
	if err != nil {
		return err
	}
	matcher := newMatcher(cfg, r)

	faces, err := detector.Detect(ctx, img)
	if err != nil {
		return fmt.Errorf("face detection failed: %w", err)
	}

	results := make([]FaceMatch, 0, len(faces))
	for i, face := range faces {
		m := matcher.Match(face.Embedding)
		b := facematch.ClampBox(face.Box, img.Bounds())
		results = append(results, FaceMatch{
			Face:       i,
			Box:        [4]int{b.Min.X, b.Min.Y, b.Max.X, b.Max.Y},
			Name:       m.Name,
			Matched:    m.Matched,
			Distance:   m.Distance,
			Confidence: m.Confidence,
		})
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No faces detected.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FACE\tBOX\tNAME\tDISTANCE\tCONFIDENCE")
	for _, res := range results {
		fmt.Fprintf(w, "%d\t%v\t%s\t%.4f\t%s\n",
			res.Face, res.Box, res.Name, res.Distance, pipeline.FormatDisplayConfidence(res.Confidence))
	}
	w.Flush()
	fmt.Printf("\nTolerance: %.2f\n", matcher.Tolerance())
	return nil
}
