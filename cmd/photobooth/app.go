package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/LeeRoiii/Photoboots/internal/config"
	"github.com/LeeRoiii/Photoboots/modules/booth"
	"github.com/LeeRoiii/Photoboots/modules/capture"
	"github.com/LeeRoiii/Photoboots/modules/compositor"
	"github.com/LeeRoiii/Photoboots/modules/download"
	"github.com/LeeRoiii/Photoboots/modules/eventbus/mqttsink"
	"github.com/LeeRoiii/Photoboots/modules/framesource"
	"github.com/LeeRoiii/Photoboots/modules/framesource/gstsource"
	"github.com/LeeRoiii/Photoboots/modules/gallery"
)

// app owns everything a command needs and releases it in Close.
type app struct {
	cfg    *config.Config
	booth  *booth.Booth
	state  *capture.StateBox
	mqtt   *mqttsink.Forwarder
	closer []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, state: capture.NewStateBox()}

	source, err := newSource(cfg.Camera)
	if err != nil {
		return nil, err
	}

	store, err := a.newStore(cfg.Gallery)
	if err != nil {
		return nil, err
	}

	g, err := gallery.Open(ctx, store)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	settings, err := initialSettings(cfg)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	strip := compositor.DefaultStripConfig()
	strip.FrameWidth = cfg.Composite.FrameWidth
	strip.Border = cfg.Composite.Border
	strip.CaptionHeight = cfg.Composite.CaptionHeight
	strip.CacheTTL = cfg.Composite.CacheTTL()
	renderer, err := compositor.NewStripRenderer(strip)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	sink, err := download.NewFileSink(cfg.Download.Dir)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	b, err := booth.New(g, source,
		booth.WithCapacity(cfg.Composite.Capacity),
		booth.WithSettings(settings),
		booth.WithRenderer(renderer),
		booth.WithDownloadSink(sink),
		booth.WithCaptureOptions(
			capture.WithTiming(capture.Timing{
				Tick:       cfg.Capture.Tick(),
				InterShot:  cfg.Capture.InterShot(),
				FlashPulse: cfg.Capture.FlashPulse(),
			}),
			capture.WithObserver(a.state),
		),
	)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.booth = b

	if cfg.MQTT.Enabled {
		if err := a.attachMQTT(ctx, cfg); err != nil {
			// notifications are best effort; the booth works without a broker
			slog.Warn("photobooth: mqtt forwarding disabled", "broker", cfg.MQTT.Broker, "error", err)
		}
	}

	return a, nil
}

func newSource(cc config.CameraConfig) (framesource.Source, error) {
	switch cc.Source {
	case "v4l2":
		retry := gstsource.DefaultRetryConfig()
		if cc.MaxRetries > 0 {
			retry.MaxRetries = cc.MaxRetries
		}
		src, err := gstsource.New(gstsource.Config{
			FrontDevice:   cc.FrontDevice,
			BackDevice:    cc.BackDevice,
			Width:         cc.Width,
			Height:        cc.Height,
			WarmupFrames:  cc.WarmupFrames,
			SampleTimeout: cc.SampleTimeout(),
			Retry:         retry,
		})
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		src, err := framesource.NewSynthetic(cc.Width, cc.Height)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
}

func (a *app) newStore(gc config.GalleryConfig) (gallery.Store, error) {
	switch gc.Backend {
	case "file":
		s, err := gallery.NewFileStore(gc.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := gallery.OpenSQLite(gc.Path, gc.Collection)
		if err != nil {
			return nil, err
		}
		a.closer = append(a.closer, s.Close)
		return s, nil
	default:
		return gallery.NewMemoryStore(), nil
	}
}

func (a *app) attachMQTT(ctx context.Context, cfg *config.Config) error {
	fwd, err := mqttsink.New(mqttsink.Config{
		Broker:        cfg.MQTT.Broker,
		ClientID:      cfg.MQTT.ClientID,
		TopicPrefix:   cfg.MQTT.TopicPrefix,
		QoS:           cfg.MQTT.QoS,
		RatePerSecond: cfg.MQTT.RatePerSecond,
		Burst:         cfg.MQTT.Burst,
	})
	if err != nil {
		return err
	}
	if err := fwd.Connect(ctx); err != nil {
		return err
	}
	if err := fwd.Attach(ctx, a.booth.Bus(), "mqtt"); err != nil {
		fwd.Close()
		return err
	}
	a.mqtt = fwd
	return nil
}

func initialSettings(cfg *config.Config) (capture.Settings, error) {
	facing, err := framesource.ParseFacing(cfg.Camera.Facing)
	if err != nil {
		return capture.Settings{}, err
	}
	s := capture.Settings{
		Shots:  cfg.Capture.Shots,
		Flash:  cfg.Capture.Flash,
		Facing: facing,
		Zoom:   cfg.Capture.Zoom,
	}
	return s, s.Validate()
}

// Close stops the booth, then the forwarder, then the store.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.booth != nil {
		errs = append(errs, a.booth.Close(ctx))
	}
	a.state.Close()
	if a.mqtt != nil {
		stats := a.mqtt.Stats()
		slog.Debug("photobooth: mqtt forwarder stats",
			"published", stats.Published,
			"errors", stats.Errors,
			"limited", stats.Limited,
		)
		errs = append(errs, a.mqtt.Close())
	}
	for _, c := range a.closer {
		errs = append(errs, c())
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("photobooth: shutdown: %w", err)
	}
	return nil
}
