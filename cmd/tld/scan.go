package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/trackforge/tld/internal/config"
	"github.com/trackforge/tld/internal/detect"
	"github.com/trackforge/tld/internal/geometry"
	"github.com/trackforge/tld/internal/imgutil"
	"github.com/trackforge/tld/internal/metrics"
)

type scanOptions struct {
	configFile  string
	selectBox   []int
	metricsAddr string
}

type scanResult struct {
	Frame      string             `json:"frame"`
	Valid      bool               `json:"valid"`
	Windows    int                `json:"windows"`
	Confident  int                `json:"confident"`
	Detections []detect.Detection `json:"detections"`
	DurationMS float64            `json:"duration_ms"`
}

func newScanCmd() *cobra.Command {
	opts := &scanOptions{}

	cmd := &cobra.Command{
		Use:   "scan --select X,Y,W,H REFERENCE_FRAME [FRAME...]",
		Short: "Scan frames for the object selected in a reference frame",
		Long: `Builds a detection cascade sized to the reference frame, seeds the
nearest-neighbor stage with the selected object patch, and runs one
detection pass per frame. Stage models are normally produced by an external
learner; scan substitutes a permissive ensemble so the full cascade
plumbing is exercised.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runScan(opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.configFile, "config", "c", "", "config file (default searches ./tld.yaml)")
	cmd.Flags().IntSliceVar(&opts.selectBox, "select", nil, "object box in the reference frame as x,y,w,h")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "expose prometheus metrics on this address")
	_ = cmd.MarkFlagRequired("select")

	return cmd
}

func loadScanConfig(opts *scanOptions) (*config.Config, error) {
	loader := config.NewLoader()
	if opts.configFile != "" {
		return loader.LoadFile(opts.configFile)
	}
	return loader.Load()
}

func runScan(opts *scanOptions, frames []string) error {
	if len(opts.selectBox) != 4 {
		return fmt.Errorf("--select needs x,y,w,h, got %v", opts.selectBox)
	}

	cfg, err := loadScanConfig(opts)
	if err != nil {
		return err
	}
	setupLogging(cfg.LogLevel)

	if opts.metricsAddr != "" {
		cfg.Metrics.Addr = opts.metricsAddr
	}
	if cfg.Metrics.Addr != "" {
		go serveMetrics(cfg.Metrics.Addr)
	}

	reference, err := imgutil.LoadGray(frames[0])
	if err != nil {
		return err
	}

	x, y, w, h := opts.selectBox[0], opts.selectBox[1], opts.selectBox[2], opts.selectBox[3]
	cascade, err := buildCascade(cfg, reference, x, y, w, h)
	if err != nil {
		return err
	}
	defer cascade.Release()

	enc := json.NewEncoder(os.Stdout)
	for _, path := range frames {
		frame := reference
		if path != frames[0] {
			frame, err = imgutil.LoadGray(path)
			if err != nil {
				return err
			}
		}

		start := time.Now()
		if err := cascade.Detect(frame); err != nil {
			return fmt.Errorf("detecting in %s: %w", path, err)
		}
		stats := cascade.Stats()
		metrics.ObservePass(stats)

		slog.Debug("pass complete",
			"frame", path,
			"grid", stats.GridWindows,
			"variance", stats.VarianceSurvivors,
			"ensemble", stats.EnsembleSurvivors,
			"confident", stats.ConfidentWindows,
			"detections", stats.Detections,
			"elapsed", time.Since(start))

		if err := enc.Encode(scanResult{
			Frame:      path,
			Valid:      cascade.Valid(),
			Windows:    stats.GridWindows,
			Confident:  stats.ConfidentWindows,
			Detections: cascade.Detections(),
			DurationMS: float64(stats.Duration.Microseconds()) / 1000,
		}); err != nil {
			return err
		}
	}
	return nil
}

// buildCascade sizes a cascade to the reference frame, seeds the
// nearest-neighbor model from the selected patch, and derives the variance
// threshold as half the patch variance.
func buildCascade(cfg *config.Config, reference *imgutil.Gray, x, y, w, h int) (*detect.Cascade, error) {
	if w <= 0 || h <= 0 || x < 1 || y < 1 ||
		x+w > reference.Width-1 || y+h > reference.Height-1 {
		return nil, fmt.Errorf("selected box (%d,%d,%d,%d) outside the inset scan area of a %dx%d frame",
			x, y, w, h, reference.Width, reference.Height)
	}

	cascadeCfg := cfg.Cascade
	cascadeCfg.TemplateWidth = w
	cascadeCfg.TemplateHeight = h
	cascadeCfg.ImageWidth = reference.Width
	cascadeCfg.ImageHeight = reference.Height
	cascadeCfg.ImageStride = reference.Stride

	if cascadeCfg.MinVariance <= 0 {
		cascadeCfg.MinVariance = patchVariance(reference, x, y, w, h) / 2
	}

	cascade := detect.NewCascade(cascadeCfg)
	if err := cascade.Init(); err != nil {
		return nil, err
	}

	if err := cascade.Ensemble().SetModel(permissiveEnsemble(cascadeCfg)); err != nil {
		cascade.Release()
		return nil, err
	}

	patch := detect.NormalizePatch(reference, geometry.Window{X: x, Y: y, W: w, H: h})
	cascade.NN().SetModel(detect.NNModel{Positive: [][]float64{patch}})

	slog.Info("cascade ready",
		"windows", cascade.NumWindows(),
		"min_variance", cascadeCfg.MinVariance)
	return cascade, nil
}

func patchVariance(frame *imgutil.Gray, x, y, w, h int) float64 {
	var sum, sqSum float64
	for yy := y; yy < y+h; yy++ {
		for xx := x; xx < x+w; xx++ {
			v := float64(frame.At(xx, yy))
			sum += v
			sqSum += v * v
		}
	}
	area := float64(w * h)
	mean := sum / area
	return sqSum/area - mean*mean
}

// permissiveEnsemble saturates every leaf posterior so the ensemble stage
// passes windows through when no trained model is available.
func permissiveEnsemble(cfg detect.Config) detect.EnsembleModel {
	posteriors := make([][]float32, cfg.NumTrees)
	for t := range posteriors {
		posteriors[t] = make([]float32, 1<<cfg.NumFeatures)
		for l := range posteriors[t] {
			posteriors[t][l] = 1
		}
	}
	return detect.EnsembleModel{Posteriors: posteriors}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	slog.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("metrics server stopped", "error", err)
	}
}
