package configuration

import (
	"os"
	"strings"

	"authd/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

// ArrayConfigFields are flattened to []string when supplied through the
// environment as comma- or space-separated values.
var ArrayConfigFields = []string{
	"app.allowed_origins",
	"cache.redis.hosts",
}

func parseArrayFields(k *koanf.Koanf) {
	for _, field := range ArrayConfigFields {
		if stringVal := k.String(field); stringVal != "" {
			stringVal = strings.Trim(stringVal, "[]")
			var items []string
			if strings.Contains(stringVal, ",") {
				items = strings.Split(stringVal, ",")
			} else {
				items = strings.Fields(stringVal)
			}
			for i, item := range items {
				items[i] = strings.TrimSpace(item)
			}
			err := k.Set(field, items)
			if err != nil {
				zap.L().
					Error("Error parsing array field", zap.String("field", field), zap.Error(err))
			}
		}
	}
}

func readEnvVars(k *koanf.Koanf) {
	err := k.Load(env.Provider("", ".", func(s string) string {
		s = strings.ToLower(s)
		segments := strings.Split(s, "__")
		return strings.Join(segments, ".")
	}), nil)
	if err != nil {
		zap.L().Warn("Error loading environment variables", zap.Error(err))
	}

	parseArrayFields(k)
}

func readFileConfig(k *koanf.Koanf) {
	configFilePath := os.Getenv("CONFIG_FILE_PATH")
	var filePath string
	if configFilePath == "" {
		for _, path := range ConfigFileSearchPaths {
			if _, err := os.Stat(path); err == nil {
				filePath = path
				break
			}
		}
	} else {
		filePath = configFilePath
	}

	if filePath != "" {
		err := k.Load(file.Provider(filePath), yaml.Parser())
		if err != nil {
			zap.L().
				Fatal("Fatal error loading config file", zap.String("path", filePath), zap.Error(err))
		}
		zap.L().Info("Read configuration from file " + filePath)
	} else {
		zap.L().Warn("No configuration file found")
	}
}

func loadDefaults(k *koanf.Koanf) {
	defaults := map[string]interface{}{
		"app.issuer":                      AppName,
		"app.access_token_expiry":         AccessTokenExpiry,
		"app.refresh_token_expiry":        RefreshTokenExpiry,
		"app.log_level":                   "info",
		"app.port":                        8080,
		"app.mfa_required":                false,
		"app.check_password_against_hibp": true,
		"app.allow_registration":          true,
		"app.make_first_user_admin":       true,

		"database.port":    int32(5432),
		"database.sslmode": "disable",

		"cache.type": "memory",

		"notifier.type":                 "filesystem",
		"notifier.filesystem.directory": "notifications",
		"notifier.smtp.enable_tls":      false,
		"notifier.smtp.skip_verify_tls": false,
	}

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		zap.L().Fatal("Failed to load default configuration", zap.Error(err))
	}
}

func Read() models.Configuration {
	k := koanf.New(".")

	loadDefaults(k)
	readFileConfig(k)
	readEnvVars(k)

	var config models.Configuration
	err := k.UnmarshalWithConf("", &config, koanf.UnmarshalConf{Tag: "mapstructure"})
	if err != nil {
		zap.L().Fatal("Unable to decode config into struct", zap.Error(err))
	}

	validate := validator.New()
	if err = validate.Struct(config); err != nil {
		zap.L().Fatal("Invalid configuration", zap.Error(err))
	}

	return config
}
