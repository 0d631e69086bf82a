package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okian/avatarcast/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 1)
				convey.So(cfg.Video.Priority, convey.ShouldResemble, []string{"heygen", "did", "replicate"})
				convey.So(cfg.Video.PollIntervalMS, convey.ShouldEqual, 5000)
				convey.So(cfg.Synthesis.TimeoutMS, convey.ShouldEqual, 30000)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("AVATARCAST_ADDR", ":8080")
			_ = os.Setenv("AVATARCAST_WORKER_COUNT", "2")
			_ = os.Setenv("AVATARCAST_VIDEO__PRIORITY", "did, replicate")
			_ = os.Setenv("AVATARCAST_VIDEO__HEYGEN__API_KEY", "hg-key")
			_ = os.Setenv("AVATARCAST_SYNTHESIS__PRIMARY", "openai")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 2)
				convey.So(cfg.Video.Priority, convey.ShouldResemble, []string{"did", "replicate"})
				convey.So(cfg.Video.HeyGen.APIKey, convey.ShouldEqual, "hg-key")
				convey.So(cfg.Video.HeyGen.BaseURL, convey.ShouldEqual, "https://api.heygen.com")
				convey.So(cfg.Synthesis.Primary, convey.ShouldEqual, "openai")
			})
		})

		convey.Convey("When loading config with a YAML file and env vars", func() {
			yamlContent := `
addr: ":9090"
queue_size: 50
video:
  priority: [replicate]
  max_poll_attempts: 10
avatars:
  backend: redis
`
			tmpFile := createTempConfigFile(t, yamlContent)
			_ = os.Setenv("AVATARCAST_CONFIG", tmpFile)
			_ = os.Setenv("AVATARCAST_ADDR", ":8181")

			cfg, err := config.Load(ctx)

			convey.Convey("Then env overrides the file which overrides defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8181")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 50)
				convey.So(cfg.Video.Priority, convey.ShouldResemble, []string{"replicate"})
				convey.So(cfg.Video.MaxPollAttempts, convey.ShouldEqual, 10)
				convey.So(cfg.Avatars.Backend, convey.ShouldEqual, "redis")
				convey.So(cfg.Avatars.UseScoring, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading a .env file", func() {
			envFile := filepath.Join(t.TempDir(), "test.env")
			convey.So(os.WriteFile(envFile, []byte("AVATARCAST_NOTIFY__WEBHOOK_URL=http://hooks.local/ready\n"), 0o600), convey.ShouldBeNil)
			_ = os.Setenv("AVATARCAST_ENV_FILE", envFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then its variables are applied", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Notify.WebhookURL, convey.ShouldEqual, "http://hooks.local/ready")
			})
		})

		convey.Convey("When loading config with an invalid YAML file", func() {
			tmpFile := createTempConfigFile(t, `invalid: yaml: content: [`)
			_ = os.Setenv("AVATARCAST_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("AVATARCAST_ADDR", "")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the pool backend is unknown", func() {
			_ = os.Setenv("AVATARCAST_AVATARS__BACKEND", "etcd")

			_, err := config.Load(ctx)

			convey.Convey("Then validation rejects it", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "AVATARCAST_") {
			_ = os.Unsetenv(key)
		}
	}
}
