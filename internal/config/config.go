// Package config loads the bridge's process configuration once at startup
// from the environment (with optional .env support) plus an optional
// config.json overlay for settings with no natural env shape.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/austinmesh/bridger/pkg/log"
	"github.com/austinmesh/bridger/pkg/meshmodel"
)

// defaultMeshtasticKey is the Meshtastic project's public default channel
// key (base64, AES-128).
const defaultMeshtasticKey = "1PG7OiApB1nwvP+rz05pAQ=="

// Config is the single struct every component receives at construction; no
// component reads the environment directly once Load returns.
type Config struct {
	MQTTBroker string
	MQTTPort   int
	MQTTUser   string
	MQTTPass   string
	MQTTTopic  string

	InfluxURL               string
	InfluxToken             string
	InfluxOrg               string
	InfluxBucket            string
	InfluxAnnotationsBucket string
	InfluxWritePrecision    string

	MeshtasticKey string

	ExhookHost           string
	ExhookPort           int
	ExhookAllowedUsers   []string
	ExhookWorkerPoolSize int64
	ExhookShutdownGrace  time.Duration

	EMQXURL       string
	EMQXAPIKey    string
	EMQXSecretKey string

	VirtualNodeID                uint32
	VirtualNodeShortName         string
	VirtualNodeLongName          string
	VirtualNodeHwModel           int32
	VirtualNodeRole              int32
	VirtualNodeChannel           string
	VirtualNodeBroadcastInterval time.Duration

	DedupCapacity     int
	DedupUseGatewayID bool

	Overlay Overlay
}

// Overlay covers the per-handler toggles, which have no natural env var
// shape. Loaded from an optional config.json, validated against
// embeddedSchema.
type Overlay struct {
	StripText   bool `json:"strip_text"`
	ForceDecode bool `json:"force_decode"`
}

// Load reads process environment variables (layering real env vars over any
// .env file found in the working directory; env wins) and, if
// configPath is non-empty, an additional JSON overlay validated against
// embeddedSchema.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("config: .env present but unreadable: %v", err)
	}

	c := &Config{
		MQTTBroker: getEnv("MQTT_BROKER", "localhost"),
		MQTTPort:   getEnvInt("MQTT_PORT", 1883),
		MQTTUser:   getEnv("MQTT_USER", ""),
		MQTTPass:   getEnv("MQTT_PASS", ""),
		MQTTTopic:  getEnv("MQTT_TOPIC", "msh/US"),

		InfluxURL:               getEnv("INFLUXDB_V2_URL", "http://localhost:8086"),
		InfluxToken:             getEnv("INFLUXDB_V2_TOKEN", ""),
		InfluxOrg:               getEnv("INFLUXDB_V2_ORG", ""),
		InfluxBucket:            getEnv("INFLUXDB_V2_BUCKET", "meshtastic"),
		InfluxAnnotationsBucket: getEnv("INFLUXDB_V2_ANNOTATIONS_BUCKET", "annotations"),
		InfluxWritePrecision:    getEnv("INFLUXDB_V2_WRITE_PRECISION", "s"),

		MeshtasticKey: getEnv("MESHTASTIC_KEY", defaultMeshtasticKey),

		// The EXHOOK_GRPC_* names are kept for operator familiarity even
		// though the transport is HTTP+JSON, not gRPC.
		ExhookHost:           getEnv("EXHOOK_GRPC_HOST", "0.0.0.0"),
		ExhookPort:           getEnvInt("EXHOOK_GRPC_PORT", 9000),
		ExhookAllowedUsers:   splitCSV(getEnv("EXHOOK_ALLOWED_USERS", "bridger")),
		ExhookWorkerPoolSize: int64(getEnvInt("EXHOOK_WORKER_POOL_SIZE", 10)),
		ExhookShutdownGrace:  getEnvDuration("EXHOOK_SHUTDOWN_GRACE", 5*time.Second),

		EMQXURL:       getEnv("EMQX_URL", ""),
		EMQXAPIKey:    getEnv("EMQX_API_KEY", ""),
		EMQXSecretKey: getEnv("EMQX_SECRET_KEY", ""),

		VirtualNodeShortName:         getEnv("VIRTUAL_NODE_SHORT_NAME", "BRDG"),
		VirtualNodeLongName:          getEnv("VIRTUAL_NODE_LONG_NAME", "Bridger"),
		VirtualNodeHwModel:           int32(getEnvInt("VIRTUAL_NODE_HW_MODEL", 255)),
		VirtualNodeRole:              int32(getEnvInt("VIRTUAL_NODE_ROLE", 3)),
		VirtualNodeChannel:           getEnv("VIRTUAL_NODE_CHANNEL", "LongFast"),
		VirtualNodeBroadcastInterval: time.Duration(getEnvInt("VIRTUAL_NODE_BROADCAST_INTERVAL_HOURS", 2)) * time.Hour,

		DedupCapacity:     getEnvInt("DEDUP_CAPACITY", 100),
		DedupUseGatewayID: getEnvBool("DEDUP_USE_GATEWAY_ID", false),

		// StripText defaults true: message bodies are elided unless the
		// operator explicitly opts in to retaining them. Go's struct
		// zero-value is false, so this has to be seeded explicitly before
		// the optional config.json overlay is applied below, or an absent
		// overlay (the common case) would silently retain every message
		// body instead of eliding it.
		Overlay: Overlay{StripText: true},
	}

	nodeID, err := getEnvNodeID("VIRTUAL_NODE_ID", 0x42524447)
	if err != nil {
		return nil, err
	}
	c.VirtualNodeID = nodeID

	if configPath != "" {
		if err := c.loadOverlay(configPath); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (c *Config) loadOverlay(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read overlay %s: %w", path, err)
	}

	if err := ValidateOverlay(raw); err != nil {
		return fmt.Errorf("config: validate overlay: %w", err)
	}

	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c.Overlay); err != nil {
		return fmt.Errorf("config: decode overlay %s: %w", path, err)
	}
	return nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warnf("config: %s=%q is not an integer, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warnf("config: %s=%q is not a boolean, using default %t", key, v, def)
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warnf("config: %s=%q is not a duration, using default %s", key, v, def)
		return def
	}
	return d
}

func getEnvNodeID(key string, def uint32) (uint32, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	trimmed := strings.TrimPrefix(strings.TrimPrefix(v, "0x"), "0X")
	n, err := strconv.ParseUint(trimmed, 16, 32)
	if err != nil {
		if parsed, perr := meshmodel.ParseNodeID(v); perr == nil {
			return parsed, nil
		}
		return 0, fmt.Errorf("config: %s=%q is not a valid node id: %w", key, v, err)
	}
	return uint32(n), nil
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
