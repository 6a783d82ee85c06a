package cmd

import (
	"context"
	"errors"
	"testing"

	coreconfig "github.com/KyawPh/luu-kyone-bot-sub000/core/config"
	coretelegram "github.com/KyawPh/luu-kyone-bot-sub000/core/telegram"
)

type carrier struct{ cfg *coreconfig.Config }

func (c carrier) CoreConfig() *coreconfig.Config { return c.cfg }

type app struct {
	started, stopped, closed bool
}

func (a *app) TelegramRunOptions() (coretelegram.RunOptions, error) {
	return coretelegram.RunOptions{
		OnStart: func(context.Context, coretelegram.Runtime) error { a.started = true; return nil },
		OnStop:  func(context.Context, coretelegram.Runtime) error { a.stopped = true; return nil },
	}, nil
}

func (a *app) Close() error {
	a.closed = true
	return nil
}

func TestRunWiresHooksAndCloses(t *testing.T) {
	t.Setenv("LUUKYONE_TEST_CONFIG", "config.yaml")
	a := &app{}
	err := Run(Options{
		ConfigEnvVar: "LUUKYONE_TEST_CONFIG",
		LoadConfig: func(path string) (ConfigCarrier, error) {
			if path != "config.yaml" {
				t.Fatalf("path = %q", path)
			}
			return carrier{cfg: &coreconfig.Config{}}, nil
		},
		Bootstrap:      func(ConfigCarrier) (TelegramApp, error) { return a, nil },
		ShutdownLogger: func() error { return nil },
		RunTelegram: func(ctx context.Context, opts coretelegram.RunOptions) error {
			if err := opts.OnStart(ctx, coretelegram.Runtime{}); err != nil {
				return err
			}
			return opts.OnStop(ctx, coretelegram.Runtime{})
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !a.started || !a.stopped || !a.closed {
		t.Fatalf("hooks: %+v", a)
	}
}

func TestRunRequiresConfigPath(t *testing.T) {
	t.Setenv("LUUKYONE_TEST_CONFIG", "")
	err := Run(Options{
		ConfigEnvVar: "LUUKYONE_TEST_CONFIG",
		LoadConfig:   func(string) (ConfigCarrier, error) { return nil, errors.New("unreachable") },
		Bootstrap:    func(ConfigCarrier) (TelegramApp, error) { return nil, errors.New("unreachable") },
	})
	if err == nil {
		t.Fatalf("expected missing path error")
	}
}
