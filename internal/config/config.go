package config

import (
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/store"
)

// EnvPrefix is prepended to every key when read from the environment,
// e.g. ATTENDANCE_HTTP_ADDR.
const EnvPrefix = "ATTENDANCE"

const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// DevProvisioningToken is accepted by the enrollment endpoints in dev when
// no tokens are configured.
const DevProvisioningToken = "dev-provisioning-token"

type Config struct {
	HTTPAddr string
	GRPCAddr string // "off" in the environment disables the gRPC listener

	Env         string // "dev" | "prod"
	Store       string // "memory" | "sqlite" | "postgres"
	DBPath      string // sqlite file, e.g. "./data/attendance.db"
	PostgresURL string

	AntiPassbackWindow time.Duration
	MailboxTTL         time.Duration
	LiveThreshold      time.Duration
	DayZone            *time.Location
	DayCutoff          time.Duration

	ProvisioningTokens []string

	// Dev seeding, applied only when Env is "dev".
	Devices  []store.DevDevice
	Bindings []store.BadgeBinding

	// Heartbeat retention
	HeartbeatRetentionDays int // 0 = keep forever
	PruneIntervalHours     int // how often the pruner runs (default 6)

	KafkaBrokers []string
	KafkaTopic   string

	LogLevel string
}

var defaults = map[string]any{
	"http_addr":                ":8080",
	"grpc_addr":                ":9090",
	"env":                      "dev",
	"store":                    StoreSQLite,
	"db_path":                  "./data/attendance.db",
	"anti_passback_window":     "60s",
	"mailbox_ttl":              "60s",
	"live_threshold":           "30s",
	"day_zone":                 "UTC",
	"day_cutoff":               "0s",
	"heartbeat_retention_days": "30",
	"prune_interval_hours":     "6",
	"kafka_topic":              "attendance.events",
	"log_level":                "info",
}

// New returns a viper instance reading ATTENDANCE_* environment variables
// with the server defaults applied. Callers may bind flags to it before
// calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	return v
}

func FromEnv() Config {
	return Load(New())
}

// Load reads the configuration from v. Parsing is fail-soft: unknown or
// malformed values fall back to their defaults.
func Load(v *viper.Viper) Config {
	env := strings.ToLower(getString(v, "env"))
	if env != "dev" && env != "prod" {
		env = "dev"
	}

	st := strings.ToLower(getString(v, "store"))
	switch st {
	case StoreMemory, StoreSQLite, StorePostgres:
	default:
		st = StoreSQLite
	}

	grpcAddr := strings.TrimSpace(v.GetString("grpc_addr"))
	if strings.EqualFold(grpcAddr, "off") {
		grpcAddr = ""
	}

	tokens := splitCSV(v.GetString("provisioning_tokens"))
	if len(tokens) == 0 && env == "dev" {
		tokens = []string{DevProvisioningToken}
	}

	return Config{
		HTTPAddr: getString(v, "http_addr"),
		GRPCAddr: grpcAddr,

		Env:         env,
		Store:       st,
		DBPath:      getString(v, "db_path"),
		PostgresURL: strings.TrimSpace(v.GetString("postgres_url")),

		AntiPassbackWindow: getDuration(v, "anti_passback_window"),
		MailboxTTL:         getDuration(v, "mailbox_ttl"),
		LiveThreshold:      getDuration(v, "live_threshold"),
		DayZone:            getLocation(v, "day_zone"),
		DayCutoff:          getDuration(v, "day_cutoff"),

		ProvisioningTokens: tokens,

		Devices:  parseDevices(v.GetString("devices")),
		Bindings: parseBindings(v.GetString("bindings")),

		HeartbeatRetentionDays: getInt(v, "heartbeat_retention_days"),
		PruneIntervalHours:     getInt(v, "prune_interval_hours"),

		KafkaBrokers: splitCSV(v.GetString("kafka_brokers")),
		KafkaTopic:   getString(v, "kafka_topic"),

		LogLevel: strings.ToLower(getString(v, "log_level")),
	}
}

func getString(v *viper.Viper, key string) string {
	s := strings.TrimSpace(v.GetString(key))
	if s == "" {
		s, _ = defaults[key].(string)
	}
	return s
}

func getInt(v *viper.Viper, key string) int {
	n, err := strconv.Atoi(getString(v, key))
	if err != nil || n < 0 {
		n, _ = strconv.Atoi(defaults[key].(string))
	}
	return n
}

// getDuration accepts Go duration strings ("90s", "4h") or a bare number
// of seconds.
func getDuration(v *viper.Viper, key string) time.Duration {
	if d, ok := parseDuration(getString(v, key)); ok {
		return d
	}
	d, _ := parseDuration(defaults[key].(string))
	return d
}

func parseDuration(s string) (time.Duration, bool) {
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return time.Duration(n) * time.Second, true
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, false
	}
	return d, true
}

func getLocation(v *viper.Viper, key string) *time.Location {
	loc, err := time.LoadLocation(getString(v, key))
	if err != nil {
		return time.UTC
	}
	return loc
}

// parseDevices reads "id:key,id:key". Malformed entries are skipped.
func parseDevices(s string) []store.DevDevice {
	var out []store.DevDevice
	for _, entry := range splitCSV(s) {
		id, key, ok := strings.Cut(entry, ":")
		id, key = strings.TrimSpace(id), strings.TrimSpace(key)
		if !ok || id == "" || key == "" {
			continue
		}
		out = append(out, store.DevDevice{DeviceID: id, APIKey: key})
	}
	return out
}

// parseBindings reads "badge:subject[:state[:inactive]]". State defaults to
// ACTIVE, or UNBOUND when the subject is empty.
func parseBindings(s string) []store.BadgeBinding {
	var out []store.BadgeBinding
	for _, entry := range splitCSV(s) {
		parts := strings.Split(entry, ":")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) < 2 || parts[0] == "" {
			continue
		}

		b := store.BadgeBinding{
			BadgeID:       strings.ToUpper(parts[0]),
			SubjectID:     parts[1],
			State:         store.BindingActive,
			SubjectActive: true,
		}
		if b.SubjectID == "" {
			b.State = store.BindingUnbound
		}
		if len(parts) > 2 && parts[2] != "" {
			b.State = store.BindingState(strings.ToUpper(parts[2]))
		}
		if len(parts) > 3 && strings.EqualFold(parts[3], "inactive") {
			b.SubjectActive = false
		}
		if !b.State.Valid() {
			continue
		}
		out = append(out, b)
	}
	return out
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
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
