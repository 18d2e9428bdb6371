package main

import (
	"context"
	"errors"
	"flag"
	"image"
	"image/color"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"pixelmorph.ai/internal/metrics"
	"pixelmorph.ai/internal/persistence/indexdb"
	persistlog "pixelmorph.ai/internal/persistence/log"
	"pixelmorph.ai/internal/sim/drawing"
	"pixelmorph.ai/internal/sim/imageprep"
	"pixelmorph.ai/internal/sim/live"
	"pixelmorph.ai/internal/sim/supervisor"
	"pixelmorph.ai/internal/sim/tuning"
	"pixelmorph.ai/internal/transport/preview"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "http listen address")
		configDir   = flag.String("configs", "./configs", "config directory")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		tuningPath  = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		targetPath  = flag.String("target", "", "image to approximate (png or jpeg)")
		palettePath = flag.String("palette", "", "image whose pixels get rearranged (default: the target itself)")
		seed        = flag.Int64("seed", 0, "override tuning seed (0 keeps tuning.yaml)")
		disableDB   = flag.Bool("disable_db", false, "disable the sqlite run/batch index")
		allowRemote = flag.Bool("allow_remote", false, "serve preview and control endpoints to non-loopback clients")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	if strings.TrimSpace(*targetPath) == "" {
		logger.Fatalf("-target is required")
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	if *seed != 0 {
		tune.Seed = *seed
	}

	target, err := imageprep.DecodeFile(*targetPath)
	if err != nil {
		logger.Fatalf("target: %v", err)
	}
	colors, err := loadPalette(*palettePath, *targetPath, tune.Sidelen)
	if err != nil {
		logger.Fatalf("palette: %v", err)
	}

	state := live.New(0, drawing.Color{})
	if err := state.SetColors(colors); err != nil {
		logger.Fatalf("palette: %v", err)
	}

	// Optional read-model index (the JSONL logs stay authoritative).
	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "pixelmorph.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Printf("index: upsert tuning: %v", err)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	batchLog := persistlog.NewBatchLogger(*dataDir)
	defer batchLog.Close()
	runLog := persistlog.NewRunLogger(*dataDir)
	defer runLog.Close()

	batchSinks := persistlog.BatchSinks{batchLog, m}
	runSinks := persistlog.RunSinks{runLog, m}
	if idx != nil {
		batchSinks = append(batchSinks, idx)
		runSinks = append(runSinks, idx)
	}

	progress := make(chan drawing.Progress, tune.ProgressBuffer)
	launcher, err := supervisor.NewLauncher(supervisor.Config{
		Source:        target,
		Settings:      tune.Settings(),
		Params:        tune.Params(),
		SwapsPerPixel: tune.SwapsPerGenerationPerPixel,
		Buffer:        tune.ProgressBuffer,
		Live:          state,
		Out:           progress,
		BatchLogger:   batchSinks,
		Runs:          runSinks,
		Logger:        log.New(os.Stdout, "[worker] ", log.LstdFlags|log.Lmicroseconds),
	})
	if err != nil {
		logger.Fatalf("launcher: %v", err)
	}

	hub, err := preview.NewHub(preview.HubConfig{
		Sidelen:        tune.Sidelen,
		Colors:         state.Colors,
		Generation:     launcher.Generation(),
		Input:          progress,
		MaxSubscribers: tune.Preview.MaxSubscribers,
		SendQueue:      tune.Preview.SendQueue,
		Stats:          m,
		Logger:         log.New(os.Stdout, "[preview] ", log.LstdFlags|log.Lmicroseconds),
	})
	if err != nil {
		logger.Fatalf("preview hub: %v", err)
	}
	previewSrv := preview.NewServer(hub, logger)
	previewSrv.AllowRemote = *allowRemote

	ctx, cancel := signalContext()
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	mux := buildMux(serverDeps{
		ctx:         gctx,
		state:       state,
		launcher:    launcher,
		hub:         hub,
		preview:     previewSrv,
		index:       idx,
		metrics:     m.Handler(),
		allowRemote: *allowRemote,
		logger:      logger,
	})
	if envBool("PM_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (PM_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return runFrameClock(gctx, state, tune.FrameRateHz) })
	g.Go(func() error {
		<-gctx.Done()
		launcher.Stop()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		return srv.Shutdown(ctx2)
	})
	g.Go(func() error {
		logger.Printf("listening on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	info, err := launcher.Restart(gctx)
	if err != nil {
		logger.Fatalf("start run: %v", err)
	}
	logger.Printf("run %s started gen=%d sidelen=%d", info.RunID, info.Generation, info.Sidelen)

	if err := g.Wait(); err != nil {
		logger.Printf("stopped: %v", err)
	}
	if idx != nil {
		ctx3, cancel3 := context.WithTimeout(context.Background(), 2*time.Second)
		_ = idx.Flush(ctx3)
		cancel3()
	}
}

// runFrameClock advances the shared frame counter so cell ages grow while
// nothing is painted.
func runFrameClock(ctx context.Context, state *live.State, hz int) error {
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			state.AdvanceFrame()
		}
	}
}

func loadPalette(palettePath, targetPath string, sidelen int) ([]drawing.Color, error) {
	p := strings.TrimSpace(palettePath)
	if p == "" {
		p = targetPath
	}
	raw, err := imageprep.DecodeFile(p)
	if err != nil {
		return nil, err
	}
	return paletteFromRaw(raw, sidelen)
}

// paletteFromRaw resamples raw to the permutation grid so every source
// pixel has a palette entry.
func paletteFromRaw(raw imageprep.RawImage, sidelen int) ([]drawing.Color, error) {
	prep, err := imageprep.Prepare(raw, sidelen)
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, sidelen, sidelen))
	for i, c := range prep.Targets {
		img.SetRGBA(i%sidelen, i/sidelen, color.RGBA{R: c.R, G: c.G, B: c.B, A: 255})
	}
	return live.ColorsFromImage(img), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
