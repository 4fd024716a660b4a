package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hupe1980/lodstream"
	"github.com/hupe1980/lodstream/config"
	"github.com/hupe1980/lodstream/model"
	"github.com/hupe1980/lodstream/observability"
)

type streamFlags struct {
	config      string
	vis         string
	root        string
	frames      int
	frameRate   int
	metricsAddr string
}

func streamCmd() *cobra.Command {
	var f streamFlags

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Run a streaming session and report throughput",
		Long: `Run a streaming session for a number of frames and report throughput.

Each frame requests the coarsest nodes of every model, as many as the slot
pool holds, so the run measures how fast the pool fills from storage.

Examples:
  lodstream stream --vis scene.vis --root /data/scans
  lodstream stream --config lodstream.yaml --frames 1200 --metrics-addr :2112`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			return runStream(ctx, f, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&f.config, "config", "c", "", "configuration file (yaml, json or toml)")
	cmd.Flags().StringVar(&f.vis, "vis", "", "renderer .vis file listing the models")
	cmd.Flags().StringVar(&f.root, "root", "", "local store root")
	cmd.Flags().IntVarP(&f.frames, "frames", "n", 600, "frames to run")
	cmd.Flags().IntVar(&f.frameRate, "frame-rate", 60, "frames per second, 0 runs unthrottled")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

func runStream(ctx context.Context, f streamFlags, w io.Writer) error {
	cfg, err := config.Load(f.config)
	if err != nil {
		return err
	}

	if f.vis != "" {
		cfg.Catalog.Kind = "vis"
		cfg.Catalog.VisFile = f.vis
	}

	if f.root != "" {
		cfg.Store.Root = f.root
	}

	if f.frameRate > 0 {
		cfg.Stream.FrameRate = f.frameRate
	}

	if f.metricsAddr == "" {
		f.metricsAddr = cfg.Metrics.Addr
	}

	obs := observability.NewPrometheusObserver()

	if f.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", obs.Handler())

		srv := &http.Server{Addr: f.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
			}
		}()

		defer srv.Close()
	}

	s, err := lodstream.OpenConfig(ctx, cfg, lodstream.WithMetricsObserver(obs))
	if err != nil {
		return err
	}
	defer s.Close()

	var tick <-chan time.Time

	if f.frameRate > 0 {
		t := time.NewTicker(time.Second / time.Duration(f.frameRate))
		defer t.Stop()

		tick = t.C
	}

	s.BeginMeasure()

	var rejected int

	for range f.frames {
		if _, err := s.Reconcile(); err != nil {
			return err
		}

		for _, r := range coarseCut(s) {
			st, err := s.Request(r.Model, r.Node, r.Priority)
			if err != nil {
				return err
			}

			if st == lodstream.StatusRejected {
				rejected++
			}
		}

		if tick != nil {
			select {
			case <-ctx.Done():
			case <-tick:
			}
		}

		if ctx.Err() != nil {
			break
		}
	}

	m := s.EndMeasure()
	st := s.Stats()

	fmt.Fprintf(w, "frames:    %d\n", st.Frame)
	fmt.Fprintf(w, "models:    %d\n", st.Models)
	fmt.Fprintf(w, "slots:     %d occupied / %d (%s each)\n", st.Slots.Occupied, st.Slots.Capacity, humanize.IBytes(uint64(st.SlotSize)))
	fmt.Fprintf(w, "evictions: %d, rejected requests: %d\n", st.Slots.Evictions, rejected)
	fmt.Fprintf(w, "loaded:    %s\n", m)

	return nil
}

// coarseCut shares the pool evenly between the models, nodes in breadth
// first order, coarser nodes first.
func coarseCut(s *lodstream.Session) []model.Job {
	models := s.Models()
	if len(models) == 0 {
		return nil
	}

	share := max(s.Stats().Slots.Capacity/len(models), 1)

	var cut []model.Job

	for _, m := range models {
		n := min(share, int(m.Tree.NumNodes()))

		for i := range n {
			cut = append(cut, model.Job{
				Model:    m.ID,
				Node:     model.NodeID(i),
				Priority: model.Priority(n-i) / model.Priority(n),
			})
		}
	}

	return cut
}
