package commands

import (
	"os"
	"path/filepath"
	"time"

	"classlens-backend/lib/authflow"
	"classlens-backend/lib/browser"
	"classlens-backend/lib/configutil"
	"classlens-backend/lib/datastore"
	"classlens-backend/lib/restyutil"
	"classlens-backend/lib/runstore"
	"classlens-backend/lib/util/serviceutil"
	"classlens-backend/lib/util/sqliteutil"
	"classlens-backend/services/acely"
	"classlens-backend/services/mathacademy"

	"github.com/joho/godotenv"
)

type AcelyConfig struct {
	Email        string   `json:"email"`
	Password     string   `json:"password"`
	Headless     bool     `json:"headless"`
	TargetEmails []string `json:"target_emails"`
	SnapshotDir  string   `json:"snapshot_dir"`
}

type MathAcademyConfig struct {
	Username    string   `json:"username"`
	Password    string   `json:"password"`
	TargetNames []string `json:"target_names"`
}

type DatastoreConfig struct {
	BaseUrl    string `json:"base_url"`
	ServiceKey string `json:"service_key"`
}

type Config struct {
	Acely       AcelyConfig       `json:"acely"`
	MathAcademy MathAcademyConfig `json:"math_academy"`
	Datastore   DatastoreConfig   `json:"datastore"`
	// RunDb is the sqlite file holding scrape run history.
	RunDb string `json:"run_db"`
	// DebugHttpDir, when set, collects a dump of every http exchange
	// made while debug logging is enabled.
	DebugHttpDir string `json:"debug_http_dir"`
	// RunIntervalHours sets the daemon's scrape cadence.
	RunIntervalHours int `json:"run_interval_hours"`
}

// loadConfig reads config.json5 and lets .env / environment variables
// override the credential fields, matching how the scrapers were deployed.
func loadConfig() Config {
	godotenv.Load()

	cfg, err := configutil.ReadConfig[Config](*configPath)
	if err != nil && !os.IsNotExist(err) {
		serviceutil.Fatal("failed to read config", err)
	}

	overrideEnv(&cfg.Acely.Email, "ACELY_EMAIL")
	overrideEnv(&cfg.Acely.Password, "ACELY_PASSWORD")
	overrideEnv(&cfg.MathAcademy.Username, "MATH_ACADEMY_USERNAME")
	overrideEnv(&cfg.MathAcademy.Password, "MATH_ACADEMY_PASSWORD")
	overrideEnv(&cfg.Datastore.BaseUrl, "SUPABASE_URL")
	overrideEnv(&cfg.Datastore.ServiceKey, "SUPABASE_SERVICE_KEY")
	if os.Getenv("HEADLESS_MODE") == "true" {
		cfg.Acely.Headless = true
	}

	if cfg.RunDb == "" {
		cfg.RunDb = ".dev/classlens/runs.db"
	}
	return cfg
}

func overrideEnv(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func debugOutput(cfg Config, name string) restyutil.Output {
	if cfg.DebugHttpDir == "" {
		return nil
	}
	return restyutil.NewFilesystemOutput(filepath.Join(cfg.DebugHttpDir, name))
}

func newUploader(cfg Config) *datastore.Client {
	if cfg.Datastore.BaseUrl == "" {
		return nil
	}
	client, err := datastore.NewClient(datastore.ClientOptions{
		BaseUrl:     cfg.Datastore.BaseUrl,
		ServiceKey:  cfg.Datastore.ServiceKey,
		DebugOutput: debugOutput(cfg, "datastore"),
	})
	if err != nil {
		serviceutil.Fatal("failed to initialize datastore client", err)
	}
	return client
}

func openRuns(cfg Config) *runstore.Store {
	db, err := sqliteutil.OpenDB(runstore.Schema, cfg.RunDb)
	if err != nil {
		serviceutil.Fatal("failed to open run history db", err)
	}
	store := runstore.NewStore(db)
	return &store
}

func runInterval(cfg Config) time.Duration {
	if cfg.RunIntervalHours <= 0 {
		return time.Hour * 24
	}
	return time.Duration(cfg.RunIntervalHours) * time.Hour
}

func newAcelyService(cfg Config) *acely.Service {
	orchestrator := authflow.NewOrchestrator(browser.NewFactory(browser.FactoryOptions{}))

	var uploader acely.Uploader
	if client := newUploader(cfg); client != nil {
		uploader = client
	}
	return acely.NewService(orchestrator, uploader, openRuns(cfg), acely.Config{
		Identity: authflow.Identity{
			Email:    cfg.Acely.Email,
			Password: cfg.Acely.Password,
		},
		Headless:     cfg.Acely.Headless,
		TargetEmails: cfg.Acely.TargetEmails,
		SnapshotDir:  cfg.Acely.SnapshotDir,
		RunInterval:  runInterval(cfg),
	})
}

func newMathAcademyService(cfg Config) *mathacademy.Service {
	client, err := mathacademy.NewClient(mathacademy.ClientOptions{
		DebugOutput: debugOutput(cfg, "mathacademy"),
	})
	if err != nil {
		serviceutil.Fatal("failed to initialize mathacademy client", err)
	}

	var uploader mathacademy.Uploader
	if c := newUploader(cfg); c != nil {
		uploader = c
	}
	return mathacademy.NewService(client, uploader, openRuns(cfg), mathacademy.Config{
		Username:    cfg.MathAcademy.Username,
		Password:    cfg.MathAcademy.Password,
		TargetNames: cfg.MathAcademy.TargetNames,
		RunInterval: runInterval(cfg),
	})
}
