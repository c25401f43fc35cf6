package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/fluxradio/fluxd/config"
	"github.com/fluxradio/fluxd/internal/controller"
	"github.com/fluxradio/fluxd/internal/decoder"
	"github.com/fluxradio/fluxd/internal/decoder/beepdec"
	"github.com/fluxradio/fluxd/internal/decoder/ffmpegdec"
	"github.com/fluxradio/fluxd/internal/eqpreset"
	"github.com/fluxradio/fluxd/internal/outbuf"
	"github.com/fluxradio/fluxd/internal/outdriver"
	"github.com/fluxradio/fluxd/internal/outdriver/beepdriver"
	"github.com/fluxradio/fluxd/internal/outdriver/nulldriver"
	"github.com/fluxradio/fluxd/internal/outdriver/otodriver"
	"github.com/fluxradio/fluxd/internal/outdriver/padriver"
	"github.com/fluxradio/fluxd/internal/player"
	"github.com/fluxradio/fluxd/internal/server"
	"github.com/fluxradio/fluxd/internal/soundfmt"
)

// consumerChunkBytes is the per-iteration size the output-buffer consumer
// goroutine reads before handing a chunk to the driver.
const consumerChunkBytes = 32 * 1024

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := config.Load()

	slog.Info("starting fluxd",
		"music_dir", cfg.MusicDir,
		"moc_dir", cfg.MOCDir,
		"socket", cfg.SocketPath,
	)

	if err := os.MkdirAll(cfg.MOCDir, 0o755); err != nil {
		slog.Error("creating state directory", "dir", cfg.MOCDir, "error", err)
		os.Exit(1)
	}

	if err := writePidFile(cfg.PidFilePath); err != nil {
		slog.Error("writing pid file", "error", err)
		os.Exit(1)
	}
	defer os.Remove(cfg.PidFilePath)

	drivers := outdriver.NewRegistry()
	drivers.Register(padriver.New())
	drivers.Register(otodriver.New())
	drivers.Register(beepdriver.New())
	drivers.Register(nulldriver.New())

	driver, caps, err := drivers.Select(cfg.SoundDriver)
	if err != nil {
		slog.Error("selecting output driver", "error", err)
		os.Exit(1)
	}
	slog.Info("output driver selected", "driver", driver.Name(), "formats", caps.Formats)
	defer driver.Shutdown()

	decoders := decoder.NewRegistry()
	decoders.Register(beepdec.NewMP3())
	decoders.Register(beepdec.NewFLAC())
	decoders.Register(beepdec.NewVorbis())
	decoders.Register(beepdec.NewWAV())
	decoders.Register(ffmpegdec.New())

	outBuf := outbuf.New(cfg.OutputBuffer * 1024)
	outBuf.SetBuffFillGetter(driver.GetBuffFill)
	go outBuf.RunConsumer(driver.Play, consumerChunkBytes)

	openDevice := func(req soundfmt.Params) (soundfmt.Params, error) {
		if cfg.ForceSampleRate > 0 {
			req.Rate = cfg.ForceSampleRate
		}
		if err := driver.Open(req); err != nil {
			return soundfmt.Params{}, err
		}
		actual := req
		actual.Rate = driver.Rate()
		outBuf.SetParams(outbuf.Params{BytesPerSecond: actual.BytesPerSecond()})
		return actual, nil
	}

	p := player.New(outBuf, openDevice)
	p.PrebufferKB = cfg.Prebuffering
	p.PrecacheEnabled = cfg.Precache
	p.ShowStreamErrors = cfg.ShowStreamErrors
	p.AutoNext = cfg.AutoNext

	eq, err := eqpreset.NewManager(cfg.EqsetsDir, 2, 44100)
	if err != nil {
		slog.Error("loading equalizer presets", "error", err)
		os.Exit(1)
	}

	srv, err := server.New(server.Options{
		SocketPath:    cfg.SocketPath,
		TagsCacheDir:  cfg.TagsDBDir,
		TagsCacheSize: cfg.TagsCacheSize,
		TagsSyncEvery: 32,
		EqPresetDir:   cfg.EqsetsDir,
		OnSongChange:  cfg.OnSongChange,
		OnStop:        cfg.OnStop,
	}, decoders, driver, eq)
	if err != nil {
		slog.Error("building server", "error", err)
		os.Exit(1)
	}

	ctl := controller.New(p, decoders, srv.Bus())
	ctl.Options = controller.Options{
		Shuffle:             cfg.Shuffle,
		Repeat:              cfg.Repeat,
		AutoNext:            cfg.AutoNext,
		QueueNextSongReturn: cfg.QueueNextSongReturn,
	}
	srv.AttachController(ctl)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		slog.Info("shutdown signal received")
		cancel()
	}()

	if err := srv.Start(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("fluxd stopped")
}

// writePidFile records the running process's PID under MOCDir, removed on
// clean shutdown via the deferred os.Remove in main.
func writePidFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}
