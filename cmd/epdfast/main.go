package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"epdfast/internal/config"
	"epdfast/internal/epd"
	"epdfast/internal/frame"
	appLog "epdfast/internal/log"
	"epdfast/internal/panel"
	"epdfast/internal/render"
	"epdfast/internal/runner"
	"epdfast/internal/thermo"
	"epdfast/internal/web"
)

const version = "0.1.0"

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	mode       string
	once       bool
	image      string
	text       string
	url        string
	regenerate bool
	renderOnly bool
	dump       string
}

// transport is what the driver and the shutdown path need from a board.
type transport interface {
	epd.Transport
	io.Closer
}

func main() {
	flags := parseFlags()

	if err := run(flags); err != nil {
		appLog.Error("epdfast failed", err)
		os.Exit(1)
	}
}

func run(flags flagConfig) error {
	conf, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", flags.configPath, err)
	}

	// CLI flags override the config file when set.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.mode != "" {
		conf.Mode = flags.mode
	}

	level, err := appLog.ParseLevel(conf.LogLevel)
	if err != nil {
		return err
	}
	appLog.SetLevel(level)
	appLog.Info("epdfast starting", "version", version)

	code, err := conf.ScreenCode()
	if err != nil {
		return err
	}
	mode, err := conf.UpdateMode()
	if err != nil {
		return err
	}

	appLog.Info("effective config",
		"screen", code,
		"orientation", conf.Orientation,
		"invert", conf.Invert,
		"mode", mode,
		"temperature", conf.Temperature.Source,
		"regenerate", conf.Regenerate,
		"refresh", conf.Refresh,
		"listen", conf.Listen,
		"once", flags.once,
		"render_only", flags.renderOnly,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	var tr transport
	if flags.renderOnly {
		tr = &panel.Discard{}
	} else {
		dev, err := panel.Open(conf.Panel)
		if err != nil {
			return err
		}
		tr = dev
	}
	defer tr.Close()

	reader, closer, err := thermo.Open(conf.Temperature)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	drv, err := epd.New(code, tr, &epd.Opts{
		Checker:     thermo.NewChecker(reader),
		SettleDelay: conf.SettleDelay,
	})
	if err != nil {
		return err
	}
	drv.SetOrientation(frame.Orientation(conf.Orientation))
	drv.SetInvert(conf.Invert)

	r := runner.New(drv, mode)

	acted, err := runOnce(ctx, r, flags, conf)
	if err != nil {
		return err
	}
	if flags.dump != "" {
		if err := dump(flags.dump, drv.Buffer()); err != nil {
			return err
		}
	}
	if flags.renderOnly && acted {
		if err := r.Preview(0); err != nil {
			return err
		}
	}
	if flags.once {
		return nil
	}

	return serve(ctx, r, conf)
}

// runOnce performs the actions requested on the command line. It reports
// whether anything was drawn.
func runOnce(ctx context.Context, r *runner.Runner, flags flagConfig, conf *config.Config) (bool, error) {
	if flags.regenerate {
		if err := r.Regenerate(); err != nil {
			return false, err
		}
	}

	var src runner.Source
	switch {
	case flags.url != "":
		src = runner.URLSource(flags.url)
	case flags.image != "":
		src = runner.FileSource(flags.image)
	case flags.text != "":
		src = runner.TextSource(flags.text)
	case flags.once:
		s, err := runner.NewSource(conf.Source)
		if errors.Is(err, runner.ErrNoSource) {
			return flags.regenerate, nil
		}
		src = s
	default:
		return flags.regenerate, nil
	}

	if err := r.Redraw(ctx, src); err != nil {
		return false, err
	}
	return true, nil
}

// serve runs the scheduler and the control API until ctx is done.
func serve(ctx context.Context, r *runner.Runner, conf *config.Config) error {
	if err := r.Schedule(ctx, "regenerate", conf.Regenerate, func(context.Context) error {
		return r.Regenerate()
	}); err != nil {
		return err
	}

	if conf.Refresh != "" {
		src, err := runner.NewSource(conf.Source)
		if err != nil {
			return fmt.Errorf("refresh schedule: %w", err)
		}
		if err := r.Schedule(ctx, "refresh", conf.Refresh, func(ctx context.Context) error {
			return r.Redraw(ctx, src)
		}); err != nil {
			return err
		}
	}
	r.Start()

	var serveErr error
	if conf.Listen == "" {
		<-ctx.Done()
	} else if err := web.NewServer(conf, r).ListenAndServe(ctx); err != nil {
		serveErr = fmt.Errorf("http server: %w", err)
	}

	// Any update still running, including one the HTTP shutdown gave up on,
	// reaches power-off before the transport closes.
	if err := r.Stop(context.Background()); err != nil {
		return errors.Join(serveErr, err)
	}
	appLog.Info("epdfast exiting")
	return serveErr
}

// dump writes frame.png, next.bin and previous.bin into dir.
func dump(dir string, buf *frame.Buffer) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(dir, "frame.png"))
	if err != nil {
		return err
	}
	if err := render.PNG(f, buf); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(dir, "next.bin"), buf.Next(), 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "previous.bin"), buf.Previous(), 0o644); err != nil {
		return err
	}
	appLog.Info("dumped frame", "dir", dir)
	return nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/epdfast/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.mode, "mode", "", "Update mode: fast, partial or global (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Draw once (flags or configured source) and exit")
	flag.StringVar(&cfg.image, "image", "", "Draw an image file")
	flag.StringVar(&cfg.text, "text", "", "Draw a text card")
	flag.StringVar(&cfg.url, "url", "", "Capture and draw a web page")
	flag.BoolVar(&cfg.regenerate, "regenerate", false, "Run the black/white ghost-reduction cycle first")
	flag.BoolVar(&cfg.renderOnly, "render-only", false, "Render only; do not touch display hardware")
	flag.StringVar(&cfg.dump, "dump", "", "Directory for debug artifacts (frame.png, next.bin, previous.bin)")

	flag.Parse()

	return cfg
}
