package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/keyprint/internal/auth"
	"github.com/verte-zerg/keyprint/internal/config"
	"github.com/verte-zerg/keyprint/internal/generator"
	"github.com/verte-zerg/keyprint/internal/keystroke"
	"github.com/verte-zerg/keyprint/internal/model"
	"github.com/verte-zerg/keyprint/internal/phrases"
	"github.com/verte-zerg/keyprint/internal/stats"
)

const (
	defaultSimSpeed = 1.0
	defaultSimCount = 1
)

var (
	userID     string
	jsonOutput bool

	verifyAllow         float64
	verifyStepUp        float64
	verifyDeny          float64
	verifyAdaptRate     float64
	verifyUpdateOnAllow bool
	verifyMetrics       bool

	simText       string
	simWords      int
	simSeed       int64
	simSpeed      float64
	simErrors     int
	simBackspaces int
	simIME        bool
	simCount      int
	simOut        string
	simPhrases    string
)

func newEnrollCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enroll --user ID SAMPLE.json...",
		Short: "Merge typing samples into a user's profile",
		Long:  "Each sample is one enrollment round. A file may hold one sample or an array of samples; '-' reads stdin.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runEnrollCmd,
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runEnrollCmd(cmd *cobra.Command, args []string) error {
	samples, err := readSampleFiles(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	svc := auth.NewService(e.backend, e.logger)
	targets := e.targets()
	results := make([]auth.EnrollResult, 0, len(samples))
	for _, sample := range samples {
		res, err := svc.Enroll(cmd.Context(), auth.EnrollRequest{UserID: userID, Sample: sample, Targets: &targets})
		if err != nil {
			return err
		}
		results = append(results, res)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, results)
	}
	for i, res := range results {
		if _, err := fmt.Fprintf(out, "round %d: %d keystrokes, reasons %s\n",
			res.Progress.RoundsCompleted, res.Metrics.KeystrokeCount, joinReasons(res.Reasons)); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		if i == len(results)-1 {
			if _, err := fmt.Fprintln(out); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
			return stats.NewRenderer(out).RenderProfile(res.Profile, res.Progress)
		}
	}
	return nil
}

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify --user ID SAMPLE.json...",
		Short: "Score typing samples against a user's profile",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runVerifyCmd,
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
	cmd.Flags().Float64Var(&verifyAllow, "allow", 0, "allow threshold (default 0.76)")
	cmd.Flags().Float64Var(&verifyStepUp, "step-up", 0, "step-up threshold (default 0.56)")
	cmd.Flags().Float64Var(&verifyDeny, "deny", 0, "deny threshold (default 0.36)")
	cmd.Flags().Float64Var(&verifyAdaptRate, "adapt-rate", 0, "profile update rate on allow (default 0.08)")
	cmd.Flags().BoolVar(&verifyUpdateOnAllow, "update-on-allow", true, "adapt the profile after an allow")
	cmd.Flags().BoolVar(&verifyMetrics, "metrics", false, "print Prometheus metrics after verifying")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func verifyPolicy(cmd *cobra.Command, e *env) model.Policy {
	policy := e.cfg.Policy()
	policy.AllowThreshold = flagOrConfigFloat(cmd, "allow", verifyAllow, policy.AllowThreshold)
	policy.StepUpThreshold = flagOrConfigFloat(cmd, "step-up", verifyStepUp, policy.StepUpThreshold)
	policy.DenyThreshold = flagOrConfigFloat(cmd, "deny", verifyDeny, policy.DenyThreshold)
	policy.AdaptRate = flagOrConfigFloat(cmd, "adapt-rate", verifyAdaptRate, policy.AdaptRate)
	update := verifyUpdateOnAllow
	applyBoolConfig(cmd, "update-on-allow", &update, policy.UpdateOnAllow)
	policy.UpdateOnAllow = &update
	policy.Enrollment = e.targets()
	return policy
}

func runVerifyCmd(cmd *cobra.Command, args []string) error {
	samples, err := readSampleFiles(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	reg := prometheus.NewRegistry()
	svc := auth.NewService(e.backend, e.logger,
		auth.WithAttemptLog(e.backend),
		auth.WithMetrics(auth.NewMetrics(reg)),
		auth.WithPolicy(verifyPolicy(cmd, e)),
	)

	results := make([]auth.VerifyResult, 0, len(samples))
	for _, sample := range samples {
		res, err := svc.Verify(cmd.Context(), auth.VerifyRequest{UserID: userID, Sample: sample})
		if err != nil {
			return err
		}
		results = append(results, res)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		if err := writeJSON(out, results); err != nil {
			return err
		}
	} else {
		r := stats.NewRenderer(out)
		for i, res := range results {
			if i > 0 {
				if _, err := fmt.Fprintln(out); err != nil {
					return fmt.Errorf("failed to write output: %w", err)
				}
			}
			if err := r.RenderVerdict(verdict(res)); err != nil {
				return err
			}
		}
	}
	if verifyMetrics {
		return writeMetrics(out, reg)
	}
	return nil
}

func verdict(res auth.VerifyResult) stats.Verdict {
	return stats.Verdict{
		Decision:       res.Decision,
		Similarity:     res.Similarity,
		Distance:       res.Distance,
		Thresholds:     res.Thresholds,
		Reasons:        res.Reasons,
		ProfileUpdated: res.ProfileUpdated,
		AttemptID:      res.AttemptID,
	}
}

func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return nil
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect SAMPLE.json...",
		Short: "Show the timing metrics extracted from samples",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runInspectCmd,
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print metrics as JSON")
	return cmd
}

type inspection struct {
	Metrics model.KeystrokeSampleMetrics `json:"metrics"`
	Reasons []model.Reason               `json:"reasons"`
}

func runInspectCmd(cmd *cobra.Command, args []string) error {
	samples, err := readSampleFiles(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jsonOutput {
		results := make([]inspection, 0, len(samples))
		for _, sample := range samples {
			m, reasons := keystroke.ComputeMetrics(sample)
			results = append(results, inspection{Metrics: m, Reasons: reasons})
		}
		return writeJSON(out, results)
	}
	r := stats.NewRenderer(out)
	for i, sample := range samples {
		if i > 0 {
			if _, err := fmt.Fprintln(out); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
		}
		m, reasons := keystroke.ComputeMetrics(sample)
		if err := r.RenderMetrics(m, reasons, keystroke.ExtractSeries(sample).Hold); err != nil {
			return err
		}
	}
	return nil
}

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Generate synthetic typing samples",
		Args:  cobra.NoArgs,
		RunE:  runSimulateCmd,
	}
	cmd.Flags().StringVar(&simText, "text", "", "text to type (default: a random enrollment phrase)")
	cmd.Flags().IntVar(&simWords, "words", 0, "build the text from N random words instead of a phrase")
	cmd.Flags().Int64Var(&simSeed, "seed", 0, "random seed (0: time based)")
	cmd.Flags().Float64Var(&simSpeed, "speed", defaultSimSpeed, "speed multiplier")
	cmd.Flags().IntVar(&simErrors, "errors", 0, "wrong keystrokes to insert")
	cmd.Flags().IntVar(&simBackspaces, "backspaces", 0, "backspace corrections to insert")
	cmd.Flags().BoolVar(&simIME, "ime", false, "mark samples as IME composed")
	cmd.Flags().IntVar(&simCount, "count", defaultSimCount, "number of samples (more than one writes a JSON array)")
	cmd.Flags().StringVarP(&simOut, "out", "o", "", "output file (default: stdout)")
	cmd.Flags().StringVar(&simPhrases, "phrases", "", "phrase file (default: $XDG_CONFIG_HOME/keyprint/phrases.txt)")
	return cmd
}

func runSimulateCmd(cmd *cobra.Command, _ []string) error {
	if simSpeed <= 0 {
		return fmt.Errorf("--speed must be > 0")
	}
	if simCount <= 0 {
		return fmt.Errorf("--count must be > 0")
	}
	if simErrors < 0 || simBackspaces < 0 || simWords < 0 {
		return fmt.Errorf("--errors, --backspaces and --words must be >= 0")
	}

	gen := generator.New()
	if simSeed != 0 {
		gen = generator.NewSeeded(simSeed)
	}
	var pool []string
	if simText == "" && simWords == 0 {
		var err error
		if pool, err = loadPhrasePool(cmd); err != nil {
			return err
		}
	}

	samples := make([]model.KeystrokeSample, 0, simCount)
	for i := 0; i < simCount; i++ {
		text := simText
		switch {
		case text != "":
		case simWords > 0:
			text = gen.Phrase(phrases.Words(), simWords)
		default:
			text = gen.Pick(pool)
		}
		samples = append(samples, gen.Sample(generator.SampleOptions{
			Text:            text,
			SpeedMultiplier: simSpeed,
			Errors:          simErrors,
			Backspaces:      simBackspaces,
			IMEUsed:         simIME,
		}))
	}

	var payload any = samples
	if len(samples) == 1 {
		payload = samples[0]
	}
	if simOut == "" {
		return writeJSON(cmd.OutOrStdout(), payload)
	}
	var buf bytes.Buffer
	if err := writeJSON(&buf, payload); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(simOut), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(simOut, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write samples: %w", err)
	}
	return nil
}

func loadPhrasePool(cmd *cobra.Command) ([]string, error) {
	fileCfg, err := loadFileConfig()
	if err != nil {
		return nil, err
	}
	path := simPhrases
	if !cmd.Flags().Changed("phrases") {
		path = deref(fileCfg.Enrollment.Phrases)
	}
	if path == "" {
		path = config.DefaultPhrasesPath()
	}
	pool, err := phrases.Resolve(path, phrases.PrintableASCII)
	if err != nil {
		return nil, fmt.Errorf("failed to load phrases: %w", err)
	}
	return pool, nil
}

func newPhraseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "phrase",
		Short: "Print a random enrollment prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := loadPhrasePool(cmd)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), generator.New().Pick(pool)); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&simPhrases, "phrases", "", "phrase file (default: $XDG_CONFIG_HOME/keyprint/phrases.txt)")
	return cmd
}

// readSampleFiles decodes every file into samples. A file holds either one
// sample object or an array of them.
func readSampleFiles(stdin io.Reader, paths []string) ([]model.KeystrokeSample, error) {
	var samples []model.KeystrokeSample
	for _, path := range paths {
		var (
			data []byte
			err  error
		)
		if path == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read sample %s: %w", path, err)
		}
		decoded, err := decodeSamples(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode sample %s: %w", path, err)
		}
		samples = append(samples, decoded...)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples found")
	}
	return samples, nil
}

func decodeSamples(data []byte) ([]model.KeystrokeSample, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var samples []model.KeystrokeSample
		if err := json.Unmarshal(data, &samples); err != nil {
			return nil, err
		}
		return samples, nil
	}
	var sample model.KeystrokeSample
	if err := json.Unmarshal(data, &sample); err != nil {
		return nil, err
	}
	return []model.KeystrokeSample{sample}, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func joinReasons(reasons []model.Reason) string {
	if len(reasons) == 0 {
		return "none"
	}
	parts := make([]string, len(reasons))
	for i, r := range reasons {
		parts[i] = string(r)
	}
	return strings.Join(parts, ", ")
}
