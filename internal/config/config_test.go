package config

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config", func() {
	var (
		tempDir    string
		configFile string
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "alertd-config-test")
		Expect(err).NotTo(HaveOccurred())
		configFile = filepath.Join(tempDir, "config.yaml")
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
	})

	Describe("Load", func() {
		Context("when config file exists with valid content", func() {
			BeforeEach(func() {
				validConfig := `
server:
  bind_addrs:
    - "127.0.0.1:9000"

database:
  url: "postgres://localhost/alertd"

email:
  addr: "smtp.example.com:587"
  from: "alerts@example.com"

alerts:
  dir: "/etc/alertd/alerts.d"
  interval_floor: "30s"
  dry_run: true

logging:
  level: "debug"
  format: "console"
`
				Expect(os.WriteFile(configFile, []byte(validConfig), 0644)).To(Succeed())
			})

			It("should load configuration successfully", func() {
				cfg, err := Load(configFile)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg).NotTo(BeNil())

				Expect(cfg.Server.BindAddrs).To(Equal([]string{"127.0.0.1:9000"}))
				Expect(cfg.Database.URL).To(Equal("postgres://localhost/alertd"))
				Expect(cfg.Email.Addr).To(Equal("smtp.example.com:587"))
				Expect(cfg.Alerts.Dir).To(Equal("/etc/alertd/alerts.d"))
				Expect(cfg.Alerts.IntervalFloor.AsDuration()).To(Equal(30 * time.Second))
				Expect(cfg.Alerts.DryRun).To(BeTrue())
				Expect(cfg.Logging.Level).To(Equal("debug"))
				Expect(cfg.Logging.Format).To(Equal("console"))
			})
		})

		Context("when config file has minimal content", func() {
			BeforeEach(func() {
				minimalConfig := `
database:
  url: "postgres://localhost/alertd"
`
				Expect(os.WriteFile(configFile, []byte(minimalConfig), 0644)).To(Succeed())
			})

			It("should load with defaults for missing values", func() {
				cfg, err := Load(configFile)
				Expect(err).NotTo(HaveOccurred())

				Expect(cfg.Alerts.Dir).To(Equal("/etc/alertd/alerts.d"))
				Expect(cfg.Alerts.IntervalFloor.AsDuration()).To(Equal(time.Minute))
				Expect(cfg.Logging.Level).To(Equal("info"))
				Expect(cfg.Server.BindAddrs).To(Equal([]string{"[::1]:8271", "127.0.0.1:8271"}))
			})
		})

		Context("when config file does not exist", func() {
			It("should return an error", func() {
				_, err := Load("/nonexistent/config.yaml")
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to read config file"))
			})
		})

		Context("when config file has invalid YAML", func() {
			BeforeEach(func() {
				invalidConfig := "server:\n  bind_addrs: [\nalerts:\n  dir: x\n"
				Expect(os.WriteFile(configFile, []byte(invalidConfig), 0644)).To(Succeed())
			})

			It("should return an error", func() {
				_, err := Load(configFile)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to parse config file"))
			})
		})

		Context("when the interval floor is not a valid duration", func() {
			BeforeEach(func() {
				badDuration := "alerts:\n  interval_floor: \"not-a-duration\"\n"
				Expect(os.WriteFile(configFile, []byte(badDuration), 0644)).To(Succeed())
			})

			It("should return an error", func() {
				_, err := Load(configFile)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to parse config file"))
			})
		})
	})

	Describe("validate", func() {
		var cfg *Config

		BeforeEach(func() {
			cfg = &Config{
				Alerts:  AlertsConfig{Dir: "/etc/alertd/alerts.d", IntervalFloor: Duration(time.Minute)},
				Logging: LoggingConfig{Level: "info"},
				Server:  ServerConfig{BindAddrs: []string{"127.0.0.1:8271"}},
			}
		})

		Context("when config is valid", func() {
			It("should pass validation", func() {
				Expect(validate(cfg)).To(Succeed())
			})
		})

		Context("when alerts dir is empty", func() {
			BeforeEach(func() { cfg.Alerts.Dir = "" })

			It("should return a validation error", func() {
				err := validate(cfg)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("alerts directory is required"))
			})
		})

		Context("when log level is unsupported", func() {
			BeforeEach(func() { cfg.Logging.Level = "verbose" })

			It("should return a validation error", func() {
				err := validate(cfg)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("unsupported log level"))
			})
		})

		Context("when the server has no bind addresses and isn't disabled", func() {
			BeforeEach(func() { cfg.Server.BindAddrs = nil })

			It("should return a validation error", func() {
				err := validate(cfg)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("bind address is required"))
			})
		})

		Context("when the server has no bind addresses but is disabled", func() {
			BeforeEach(func() {
				cfg.Server.BindAddrs = nil
				cfg.Server.Disabled = true
			})

			It("should pass validation", func() {
				Expect(validate(cfg)).To(Succeed())
			})
		})
	})

	Describe("loadFromEnv", func() {
		var cfg *Config

		BeforeEach(func() {
			cfg = &Config{}
			os.Clearenv()
		})

		AfterEach(func() {
			os.Clearenv()
		})

		Context("when environment variables are set", func() {
			BeforeEach(func() {
				os.Setenv("ALERTD_DATABASE_URL", "postgres://test/db")
				os.Setenv("ALERTD_EMAIL_ADDR", "smtp.test:587")
				os.Setenv("ALERTD_ALERTS_DIR", "/tmp/alerts")
				os.Setenv("ALERTD_LOG_LEVEL", "debug")
				os.Setenv("ALERTD_DRY_RUN", "true")
				os.Setenv("ALERTD_BIND_ADDRS", "127.0.0.1:1,127.0.0.1:2")
			})

			It("should load values from environment", func() {
				Expect(loadFromEnv(cfg)).To(Succeed())

				Expect(cfg.Database.URL).To(Equal("postgres://test/db"))
				Expect(cfg.Email.Addr).To(Equal("smtp.test:587"))
				Expect(cfg.Alerts.Dir).To(Equal("/tmp/alerts"))
				Expect(cfg.Logging.Level).To(Equal("debug"))
				Expect(cfg.Alerts.DryRun).To(BeTrue())
				Expect(cfg.Server.BindAddrs).To(Equal([]string{"127.0.0.1:1", "127.0.0.1:2"}))
			})
		})

		Context("when no environment variables are set", func() {
			It("should not modify config", func() {
				original := *cfg
				Expect(loadFromEnv(cfg)).To(Succeed())
				Expect(*cfg).To(Equal(original))
			})
		})

		Context("when a boolean override is malformed", func() {
			BeforeEach(func() {
				os.Setenv("ALERTD_DRY_RUN", "not-a-bool")
			})

			It("should return an error", func() {
				err := loadFromEnv(cfg)
				Expect(err).To(HaveOccurred())
			})
		})
	})
})
