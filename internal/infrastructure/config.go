package infra

import (
	"encoding/json"
	"fmt"
	"log"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix env prefix for viper
const EnvPrefix = "GOAPP"

// runtime environments
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// resume store backends
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendMySQL    = "mysql"
	BackendPostgres = "postgres"
)

// DefaultCatalogURL upstream preview-courses endpoint
const DefaultCatalogURL = "https://api.wisey.app/api/v1/core/preview-courses"

// AppConfig App option object
type AppConfig struct {
	AppID          string        `mapstructure:"app_id" json:"app_id" yaml:"app_id" validate:"required"`            // Application ID
	Host           string        `mapstructure:"host" json:"host" yaml:"host"`                                      // bind host address
	Port           int           `mapstructure:"port" json:"port" yaml:"port"`                                      // bind listen port
	Env            string        `mapstructure:"env" json:"env" yaml:"env" validate:"oneof=development production"` // runtime environment
	RequestTimeout time.Duration `mapstructure:"request_timeout" json:"request_timeout" yaml:"request_timeout"`
	SessionTimeout time.Duration `mapstructure:"session_timeout" json:"session_timeout" yaml:"session_timeout"` // idle viewing sessions are ended after this
	Catalog        struct {
		BaseURL  string        `mapstructure:"base_url" json:"base_url" yaml:"base_url" validate:"required,url"`
		Token    string        `mapstructure:"token" json:"-" yaml:"token" validate:"required"` // static bearer credential
		Timeout  time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
		PageSize int           `mapstructure:"page_size" json:"page_size" yaml:"page_size" validate:"min=1"`
	} `mapstructure:"catalog" json:"catalog" yaml:"catalog"`
	Resume struct {
		Backend string `mapstructure:"backend" json:"backend" yaml:"backend" validate:"oneof=memory redis mysql postgres"`
	} `mapstructure:"resume" json:"resume" yaml:"resume"`
	Database struct {
		Host     string `mapstructure:"host" json:"host" yaml:"host"`                                                // server host
		MaxConn  int32  `mapstructure:"maxconn" json:"maxconn" yaml:"maxconn" validate:"min=1"`                      // maximum opening connections number
		Password string `mapstructure:"password" json:"-" yaml:"password"`                                           // db password
		Port     int    `mapstructure:"port" json:"port" yaml:"port"`                                                // server port
		Protocol string `mapstructure:"protocol" json:"protocol" yaml:"protocol" validate:"omitempty,oneof=tcp udp"` // connection protocol, eg.tcp
		Query    string `mapstructure:"query" json:"query" yaml:"query"`                                             // DSN query parameter
		Schema   string `mapstructure:"schema" json:"schema" yaml:"schema"`                                          // use schema
		User     string `mapstructure:"username" json:"username" yaml:"username"`                                    // db username
	} `mapstructure:"database" json:"database" yaml:"database"`
	Logging struct {
		FilePath string `mapstructure:"file_path" json:"file_path" yaml:"file_path"`                            // log file path
		Level    string `mapstructure:"level" json:"level" yaml:"level" validate:"oneof=debug info warn error"` // global logging level
	} `mapstructure:"logging" json:"logging" yaml:"logging"`
	Security struct {
		IDLength int `mapstructure:"id_length" json:"id_length" yaml:"id_length" validate:"min=8"` // length of generated session ID
	} `mapstructure:"security" json:"security" yaml:"security"`
	KVStore struct {
		Host     string `mapstructure:"host" json:"host" yaml:"host"` // bind host address
		Port     int    `mapstructure:"port" json:"port" yaml:"port"` // bind listen port
		Password string `mapstructure:"password" json:"-" yaml:"password"`
		DB       int    `mapstructure:"db" json:"db" yaml:"db"`
	} `mapstructure:"kv" json:"kv" yaml:"kv"`
	DevOP struct {
		APM bool `mapstructure:"apm" json:"apm" yaml:"apm"`
	} `mapstructure:"devop" json:"devop" yaml:"devop"`
}

// InitConfig init app config from command line flags and environment
func InitConfig(args []string) (*AppConfig, error) {
	return LoadConfig(pflag.CommandLine, args)
}

// LoadConfig registers app flags on fs, parses args and merges GOAPP_* environment overrides
func LoadConfig(fs *pflag.FlagSet, args []string) (*AppConfig, error) {
	registerFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config = new(AppConfig)
	if err := v.Unmarshal(config); err != nil {
		return nil, err
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	if config.Logging.Level == "debug" {
		if configJSON, err := json.MarshalIndent(config, "", "  "); err == nil {
			log.Printf("App config: %s\n", string(configJSON))
		}
	}
	return config, nil
}

func registerFlags(fs *pflag.FlagSet) {
	// app
	fs.String("host", "", "binding address")
	fs.String("app_id", "course-player", "application identifier")
	fs.String("env", EnvDevelopment, "runtime environment, can be 'development' or 'production'")
	fs.Int("port", 8081, "listening port")
	fs.Duration("request_timeout", 30*time.Second, "abort requests running longer than this")
	fs.Duration("session_timeout", 2*time.Hour, "end viewing sessions idle for longer than this(m, s and h units are supported), eg.30m")

	// catalog
	fs.String("catalog.base_url", DefaultCatalogURL, "upstream course catalog endpoint")
	fs.String("catalog.token", "", "bearer credential attached to every catalog request (required)")
	fs.Duration("catalog.timeout", 10*time.Second, "catalog request timeout")
	fs.Int("catalog.page_size", 10, "courses per catalog page")

	// resume
	fs.String("resume.backend", BackendMemory, "resume point storage, one of memory, redis, mysql, postgres")

	// database
	fs.String("database.host", "127.0.0.1", "database host")
	fs.Int("database.port", 3306, "database server port")
	fs.String("database.protocol", "", "connection protocol(if mysql is used, this flag must be set), eg.tcp")
	fs.String("database.username", "", "database username")
	fs.String("database.password", "", "database password")
	fs.String("database.schema", "", "database schema")
	fs.String("database.query", "", "additional DSN query parameters('?' is auto prefixed)")
	fs.Int32("database.maxconn", 20, "max connection count")

	// logging
	fs.String("logging.level", "info", "logging level")
	fs.String("logging.file_path", "", "log to file")

	// security
	fs.Int("security.id_length", 21, "length of generated session ID")

	// kv storage
	fs.String("kv.host", "127.0.0.1", "kv host")
	fs.Int("kv.port", 6379, "kv server port")
	fs.String("kv.password", "", "kv server password")
	fs.Int("kv.db", 0, "kv database number")

	// DevOp
	fs.Bool("devop.apm", false, "enable apm metrics")
}

func validateConfig(config *AppConfig) error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := fld.Tag.Get("mapstructure")
		if name == "-" || name == "" {
			return ""
		}
		return name
	})

	var msg []string
	err := validate.Struct(config)
	if _, ok := err.(*validator.InvalidValidationError); ok {
		return fmt.Errorf("failed to validate config: %w", err)
	}
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, field := range verrs {
			namespace := field.Namespace()
			fieldName := namespace[strings.IndexByte(namespace, '.')+1:] // trim top level namespace
			switch field.Tag() {
			case "required":
				msg = append(msg, fmt.Sprintf("%s is required", fieldName))
			case "oneof":
				msg = append(msg, fmt.Sprintf("%s must be one of (%s)", fieldName, field.Param()))
			case "min":
				msg = append(msg, fmt.Sprintf("%s must be at least %s", fieldName, field.Param()))
			case "url":
				msg = append(msg, fmt.Sprintf("%s must be a valid URL", fieldName))
			default:
				msg = append(msg, fmt.Sprintf("%s is invalid", fieldName))
			}
		}
	}

	// SQL backends need a reachable schema
	switch config.Resume.Backend {
	case BackendMySQL, BackendPostgres:
		if config.Database.User == "" {
			msg = append(msg, "database.username is required")
		}
		if config.Database.Schema == "" {
			msg = append(msg, "database.schema is required")
		}
	}

	if len(msg) > 0 {
		return fmt.Errorf("failed to validate config: \n%s", strings.Join(msg, "\n"))
	}
	return nil
}
