package models

type Configuration struct {
	App      AppConfiguration      `mapstructure:"app"      validate:"required"`
	Database DatabaseConfiguration `mapstructure:"database" validate:"required"`
	Cache    CacheConfiguration    `mapstructure:"cache"`
	Notifier NotifierConfiguration `mapstructure:"notifier" validate:"required"`
}

type AppConfiguration struct {
	Issuer             string   `mapstructure:"issuer"               validate:"required"`
	JWTSecret          string   `mapstructure:"jwt_secret"           validate:"required"`
	MFAEncryptionKey   string   `mapstructure:"mfa_encryption_key"   validate:"len=32"`
	MFARequired        bool     `mapstructure:"mfa_required"`
	HIBPCheckEnabled   bool     `mapstructure:"check_password_against_hibp"`
	AllowRegistration  bool     `mapstructure:"allow_registration"`
	MakeFirstUserAdmin bool     `mapstructure:"make_first_user_admin"`
	AccessTokenExpiry  int      `mapstructure:"access_token_expiry"  validate:"gte=1,lte=1440"`
	RefreshTokenExpiry int      `mapstructure:"refresh_token_expiry" validate:"gte=1,lte=720"`
	LogLevel           string   `mapstructure:"log_level"            validate:"oneof=debug info warn error fatal panic"`
	Port               int      `mapstructure:"port"                 validate:"gte=80,lte=65535"`
	AllowedOrigins     []string `mapstructure:"allowed_origins"`
	WebURL             string   `mapstructure:"web_url"              validate:"required"`
}

type DatabaseConfiguration struct {
	Host     string `mapstructure:"host"     validate:"required"`
	Port     int32  `mapstructure:"port"     validate:"gte=80,lte=65535"`
	User     string `mapstructure:"user"     validate:"required"`
	Password string `mapstructure:"password" validate:"required"`
	Name     string `mapstructure:"name"     validate:"required"`
	SSLMode  string `mapstructure:"sslmode"`
}

type CacheConfiguration struct {
	Type  string                   `mapstructure:"type"  validate:"omitempty,oneof=redis memory"`
	Redis *RedisCacheConfiguration `mapstructure:"redis" validate:"required_if=Type redis"`
}

type RedisCacheConfiguration struct {
	Hosts         []string `mapstructure:"hosts"`
	Password      string   `mapstructure:"password"`
	TLSEnabled    bool     `mapstructure:"tls_enabled"`
	TLSServerName string   `mapstructure:"tls_server_name"`
}

type NotifierConfiguration struct {
	Type       string                           `mapstructure:"type"       validate:"required,oneof=smtp filesystem"`
	SMTP       *SMTPNotifierConfiguration       `mapstructure:"smtp"       validate:"required_if=Type smtp"`
	Filesystem *FilesystemNotifierConfiguration `mapstructure:"filesystem" validate:"required_if=Type filesystem"`
}

type SMTPNotifierConfiguration struct {
	Host          string `mapstructure:"host"      validate:"required"`
	Port          int    `mapstructure:"port"      validate:"gte=1,lte=65535"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	From          string `mapstructure:"from"      validate:"required,email"`
	EnableTLS     bool   `mapstructure:"enable_tls"`
	SkipVerifyTLS bool   `mapstructure:"skip_verify_tls"`
}

type FilesystemNotifierConfiguration struct {
	Directory string `mapstructure:"directory" validate:"required"`
}
