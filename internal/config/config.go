package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/attendance/internal/constants"
)

//go:embed models.yaml
var modelsYAML []byte

// Default embedding model profiles per backend, used when EMBEDDING_MODEL
// is unset. DefaultModel is also the fallback for unknown profile names.
const (
	DefaultModel     = "dlib_face_recognition_resnet_model_v1"
	DefaultHTTPModel = "buffalo_l"
)

type Config struct {
	Roster    RosterConfig
	Ledger    LedgerConfig
	Embedding EmbeddingConfig
	Match     MatchConfig
	Camera    CameraConfig
	Events    EventsConfig
	Metrics   MetricsConfig
	Log       LogConfig
	Models    ModelsConfig
}

type RosterConfig struct {
	ImagesDir string // directory with reference images (default images)
	CachePath string // gob cache of reference embeddings (optional)
}

type LedgerConfig struct {
	Backend       string // csv, sqlite, postgres or mysql (default csv)
	Path          string // CSV file path (default attendance.csv)
	DatabaseURL   string // DSN for the SQL backends
	AppendRetries int    // attempts per append before the error surfaces (default 2)
}

type EmbeddingConfig struct {
	Backend       string // http or dlib (default http)
	URL           string // embedding server, defaults to http://localhost:8000
	Model         string // model profile name
	DlibModelsDir string // directory with dlib .dat models
}

type MatchConfig struct {
	Tolerance         float64 // explicit acceptance distance, only used when ToleranceSet
	ToleranceSet      bool
	HNSWMinReferences int     // reference count at which the HNSW index kicks in (0 disables)
}

type CameraConfig struct {
	Device     int
	FrameScale float64 // downscale factor applied before detection (default 0.25)
	Name       string  // source name stamped on published events
}

type EventsConfig struct {
	Brokers []string
	Topic   string
}

type MetricsConfig struct {
	TextfilePath string // node_exporter textfile target (optional)
}

type LogConfig struct {
	Level  string // debug, info, warn or error
	Format string // pretty, text or json
}

type ModelsConfig struct {
	Models map[string]ModelProfile `yaml:"models"`
}

type ModelProfile struct {
	Dim       int     `yaml:"dim"`
	Tolerance float64 `yaml:"tolerance"`
}

// envInt reads an environment variable and parses it as a non-negative integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envOptionalFloat reads a non-negative float. ok is false when the env var
// is unset or invalid.
func envOptionalFloat(key string) (float64, bool) {
	s := os.Getenv(key)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return f, true
}

// envString returns the env var value or defaultVal when unset or empty.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma separated env var, dropping empty items.
func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func Load() *Config {
	backend := strings.ToLower(envString("EMBEDDING_BACKEND", "http"))
	defaultModel := DefaultModel
	if backend == "http" {
		defaultModel = DefaultHTTPModel
	}
	tolerance, toleranceSet := envOptionalFloat("MATCH_TOLERANCE")

	var models ModelsConfig
	if err := yaml.Unmarshal(modelsYAML, &models); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded models.yaml: " + err.Error())
	}

	return &Config{
		Roster: RosterConfig{
			ImagesDir: envString("IMAGES_DIR", "images"),
			CachePath: os.Getenv("ROSTER_CACHE_PATH"),
		},
		Ledger: LedgerConfig{
			Backend:       strings.ToLower(envString("LEDGER_BACKEND", "csv")),
			Path:          envString("ATTENDANCE_FILE", "attendance.csv"),
			DatabaseURL:   os.Getenv("LEDGER_DATABASE_URL"),
			AppendRetries: max(envInt("LEDGER_APPEND_RETRIES", 2), 1),
		},
		Embedding: EmbeddingConfig{
			Backend:       backend,
			URL:           os.Getenv("EMBEDDING_URL"),
			Model:         envString("EMBEDDING_MODEL", defaultModel),
			DlibModelsDir: envString("DLIB_MODELS_DIR", "models"),
		},
		Match: MatchConfig{
			Tolerance:         tolerance,
			ToleranceSet:      toleranceSet,
			HNSWMinReferences: envInt("HNSW_MIN_IDENTITIES", 2000),
		},
		Camera: CameraConfig{
			Device:     envInt("CAMERA_DEVICE", 0),
			FrameScale: envFloat("FRAME_SCALE", 0.25),
			Name:       envString("CAMERA_NAME", "camera-0"),
		},
		Events: EventsConfig{
			Brokers: envList("KAFKA_BROKERS"),
			Topic:   envString("KAFKA_TOPIC", "attendance.recorded"),
		},
		Metrics: MetricsConfig{
			TextfilePath: os.Getenv("METRICS_TEXTFILE"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(envString("LOG_LEVEL", "info")),
			Format: strings.ToLower(envString("LOG_FORMAT", "pretty")),
		},
		Models: models,
	}
}

// GetModelProfile returns the profile for a model, falling back to the dlib profile.
func (c *Config) GetModelProfile(modelName string) ModelProfile {
	profile, ok := c.Models.Models[modelName]
	if !ok {
		profile = c.Models.Models[DefaultModel]
	}
	if profile.Tolerance <= 0 {
		profile.Tolerance = constants.DefaultTolerance
	}
	return profile
}

// SetTolerance overrides the profile tolerance. Zero accepts only identical
// embeddings.
func (c *Config) SetTolerance(t float64) {
	c.Match.Tolerance = t
	c.Match.ToleranceSet = true
}

// ToleranceFor returns the acceptance distance for embeddings produced by
// model: the explicit override when set, otherwise the profile tolerance.
func (c *Config) ToleranceFor(model string) float64 {
	if c.Match.ToleranceSet {
		return c.Match.Tolerance
	}
	return c.GetModelProfile(model).Tolerance
}
