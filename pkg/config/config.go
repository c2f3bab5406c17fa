package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrInvalid se devuelve (envuelto) cuando la configuración no pasa la validación de arranque.
var ErrInvalid = errors.New("configuración inválida")

// Modos de pedido soportados.
const (
	ModeVoiceOrder   = "voice_order"
	ModeShoppingList = "shopping_list"
	ModeNotifyOnly   = "notify_only"
)

// Backends del ledger.
const (
	LedgerBackendFile     = "file"
	LedgerBackendPostgres = "postgres"
)

// Config agrupa la configuración de la aplicación (lectura vía Viper desde env y opcionalmente archivo YAML).
type Config struct {
	App           AppConfig
	Log           LogConfig
	Grocy         GrocyConfig
	HomeAssistant HomeAssistantConfig
	Telegram      TelegramConfig
	Order         OrderConfig
	Ledger        LedgerConfig
	DB            DBConfig
	HTTP          HTTPConfig
	JWT           JWTConfig
	Telemetry     TelemetryConfig
}

// AppConfig configuración general de la aplicación.
type AppConfig struct {
	Env  string // development, staging, production
	Name string
}

// LogConfig nivel y archivo de log.
type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// GrocyConfig acceso a la API de Grocy y nombres de los userfields con datos de Amazon.
type GrocyConfig struct {
	URL             string
	APIKey          string
	ASINField       string // userfield con la referencia de catálogo (ASIN)
	OrderUnitsField string // userfield con las unidades por paquete
	Timeout         time.Duration
}

// HomeAssistantConfig acceso al puente de hogar inteligente (Alexa vía Home Assistant).
type HomeAssistantConfig struct {
	URL                 string
	Token               string
	AlexaEntityID       string
	ShoppingListEntity  string
	NotificationService string // "dominio.servicio", ej. notify.persistent_notification
	OrderPhrase         string // verbo del comando de voz, ej. "Bestelle"
	Timeout             time.Duration
}

// TelegramConfig notificaciones opcionales por Telegram.
type TelegramConfig struct {
	Enabled  bool
	BotToken string
	ChatID   string
	BaseURL  string
	Timeout  time.Duration
}

// OrderConfig parámetros del motor de reposición.
type OrderConfig struct {
	Mode            string
	CheckInterval   time.Duration
	MaxOrdersPerDay int
	DryRun          bool
	NotifyOnOrder   bool
	CartBaseURL     string
}

// LedgerConfig persistencia de entregas pendientes y contador diario.
type LedgerConfig struct {
	Backend     string // file | postgres
	Path        string
	LockTimeout time.Duration
}

// DBConfig configuración de PostgreSQL (solo con Ledger.Backend = postgres).
// Si DatabaseURL no está vacío, se usa como connection string completo.
type DBConfig struct {
	DatabaseURL string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
}

// ConnectionString devuelve el DSN a usar: DATABASE_URL si está definido, si no el construido con DSN().
func (c DBConfig) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DSN()
}

// DSN devuelve el connection string para PostgreSQL con URL encoding para caracteres especiales.
func (c DBConfig) DSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.SSLMode),
	}
	return u.String()
}

// HTTPConfig configuración del servidor HTTP de control (solo en modo daemon).
type HTTPConfig struct {
	Enabled bool
	Host    string
	Port    int
}

// Addr devuelve la dirección de escucha (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// JWTConfig firma de los tokens de la API de control. Secret vacío = API sin autenticación.
type JWTConfig struct {
	Secret     string
	Expiration int // minutos
	Issuer     string
}

// TelemetryConfig exportación OTLP (vacío = sin exportar).
type TelemetryConfig struct {
	OTLPEndpoint string
	Insecure     bool
	ServiceName  string
}

// binding asocia una clave de Viper con sus variables de entorno y su valor por defecto.
type binding struct {
	key  string
	envs []string
	def  any
}

var bindings = []binding{
	{"app.env", []string{"APP_ENV"}, "production"},
	{"app.name", []string{"APP_NAME"}, "grocy-autobuy"},

	{"log.level", []string{"LOG_LEVEL"}, "info"},
	{"log.file", []string{"LOG_FILE"}, ""},
	{"log.max_size_mb", []string{"LOG_MAX_SIZE_MB"}, 10},
	{"log.max_backups", []string{"LOG_MAX_BACKUPS"}, 3},
	{"log.max_age_days", []string{"LOG_MAX_AGE_DAYS"}, 28},

	{"grocy.url", []string{"GROCY_URL"}, "http://localhost:9283"},
	{"grocy.api_key", []string{"GROCY_API_KEY"}, ""},
	{"grocy.asin_field", []string{"GROCY_ASIN_FIELD"}, "Amazon_ASIN"},
	{"grocy.order_units_field", []string{"GROCY_ORDER_UNITS_FIELD"}, "Amazon_bestelleinheiten"},
	{"grocy.timeout", []string{"GROCY_TIMEOUT"}, "15s"},

	{"homeassistant.url", []string{"HASS_URL"}, "http://homeassistant.local:8123"},
	{"homeassistant.token", []string{"HASS_TOKEN"}, ""},
	{"homeassistant.alexa_entity_id", []string{"HASS_ALEXA_ENTITY_ID"}, "media_player.echo_dot"},
	{"homeassistant.shopping_list_entity", []string{"HASS_SHOPPING_LIST_ENTITY"}, "todo.alexa_shopping_list"},
	{"homeassistant.notification_service", []string{"ORDER_NOTIFICATION_SERVICE", "HASS_NOTIFICATION_SERVICE"}, "notify.persistent_notification"},
	{"homeassistant.order_phrase", []string{"HASS_ORDER_PHRASE"}, "Bestelle"},
	{"homeassistant.timeout", []string{"HASS_TIMEOUT"}, "30s"},

	{"telegram.enabled", []string{"TELEGRAM_ENABLED"}, false},
	{"telegram.bot_token", []string{"TELEGRAM_BOT_TOKEN"}, ""},
	{"telegram.chat_id", []string{"TELEGRAM_CHAT_ID"}, ""},
	{"telegram.base_url", []string{"TELEGRAM_BASE_URL"}, "https://api.telegram.org"},
	{"telegram.timeout", []string{"TELEGRAM_TIMEOUT"}, "10s"},

	{"order.mode", []string{"ORDER_MODE"}, ModeShoppingList},
	{"order.check_interval_minutes", []string{"ORDER_CHECK_INTERVAL"}, 60},
	{"order.max_per_day", []string{"ORDER_MAX_PER_DAY"}, 10},
	{"order.dry_run", []string{"ORDER_DRY_RUN"}, true},
	{"order.notify", []string{"ORDER_NOTIFY"}, true},
	{"order.cart_base_url", []string{"ORDER_CART_BASE_URL"}, "https://www.amazon.de/gp/aws/cart/add.html"},

	{"ledger.backend", []string{"LEDGER_BACKEND"}, LedgerBackendFile},
	{"ledger.path", []string{"LEDGER_PATH"}, "data/order_history.json"},
	{"ledger.lock_timeout", []string{"LEDGER_LOCK_TIMEOUT"}, "10s"},

	{"db.url", []string{"DATABASE_URL"}, ""},
	{"db.host", []string{"DB_HOST"}, "localhost"},
	{"db.port", []string{"DB_PORT"}, 5432},
	{"db.user", []string{"DB_USER"}, "postgres"},
	{"db.password", []string{"DB_PASSWORD"}, ""},
	{"db.name", []string{"DB_NAME"}, "grocy_autobuy"},
	{"db.sslmode", []string{"DB_SSLMODE"}, "disable"},

	{"http.enabled", []string{"HTTP_ENABLED"}, true},
	{"http.host", []string{"HTTP_HOST"}, "0.0.0.0"},
	{"http.port", []string{"HTTP_PORT"}, 8080},

	{"jwt.secret", []string{"JWT_SECRET"}, ""},
	{"jwt.expiration_minutes", []string{"JWT_EXPIRATION_MINUTES"}, 60 * 24 * 30},
	{"jwt.issuer", []string{"JWT_ISSUER"}, "grocy-autobuy"},

	{"telemetry.otlp_endpoint", []string{"OTEL_EXPORTER_OTLP_ENDPOINT"}, ""},
	{"telemetry.insecure", []string{"OTEL_EXPORTER_OTLP_INSECURE"}, true},
	{"telemetry.service_name", []string{"OTEL_SERVICE_NAME"}, "grocy-autobuy"},
}

// flagKeys asocia flags de la CLI con claves de configuración.
var flagKeys = map[string]string{
	"dry-run":     "order.dry_run",
	"interval":    "order.check_interval_minutes",
	"max-per-day": "order.max_per_day",
	"mode":        "order.mode",
	"ledger":      "ledger.path",
}

// Load lee la configuración. Prioridad: flags > variables de entorno > .env > archivo YAML > valores por defecto.
// path vacío o inexistente se ignora; flags puede ser nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("leer %s: %w", path, err)
			}
		}
	}

	// .env opcional en el directorio de trabajo; se exporta al entorno para que AutomaticEnv lo vea.
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, b := range bindings {
		v.SetDefault(b.key, b.def)
		args := append([]string{b.key}, b.envs...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", b.key, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{
		App: AppConfig{
			Env:  v.GetString("app.env"),
			Name: v.GetString("app.name"),
		},
		Log: LogConfig{
			Level:      v.GetString("log.level"),
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
		},
		Grocy: GrocyConfig{
			URL:             strings.TrimRight(v.GetString("grocy.url"), "/"),
			APIKey:          v.GetString("grocy.api_key"),
			ASINField:       v.GetString("grocy.asin_field"),
			OrderUnitsField: v.GetString("grocy.order_units_field"),
			Timeout:         v.GetDuration("grocy.timeout"),
		},
		HomeAssistant: HomeAssistantConfig{
			URL:                 strings.TrimRight(v.GetString("homeassistant.url"), "/"),
			Token:               v.GetString("homeassistant.token"),
			AlexaEntityID:       v.GetString("homeassistant.alexa_entity_id"),
			ShoppingListEntity:  v.GetString("homeassistant.shopping_list_entity"),
			NotificationService: v.GetString("homeassistant.notification_service"),
			OrderPhrase:         v.GetString("homeassistant.order_phrase"),
			Timeout:             v.GetDuration("homeassistant.timeout"),
		},
		Telegram: TelegramConfig{
			Enabled:  v.GetBool("telegram.enabled"),
			BotToken: v.GetString("telegram.bot_token"),
			ChatID:   v.GetString("telegram.chat_id"),
			BaseURL:  strings.TrimRight(v.GetString("telegram.base_url"), "/"),
			Timeout:  v.GetDuration("telegram.timeout"),
		},
		Order: OrderConfig{
			Mode:            NormalizeMode(v.GetString("order.mode")),
			CheckInterval:   time.Duration(v.GetInt("order.check_interval_minutes")) * time.Minute,
			MaxOrdersPerDay: v.GetInt("order.max_per_day"),
			DryRun:          v.GetBool("order.dry_run"),
			NotifyOnOrder:   v.GetBool("order.notify"),
			CartBaseURL:     v.GetString("order.cart_base_url"),
		},
		Ledger: LedgerConfig{
			Backend:     strings.ToLower(v.GetString("ledger.backend")),
			Path:        v.GetString("ledger.path"),
			LockTimeout: v.GetDuration("ledger.lock_timeout"),
		},
		DB: DBConfig{
			DatabaseURL: v.GetString("db.url"),
			Host:        v.GetString("db.host"),
			Port:        v.GetInt("db.port"),
			User:        v.GetString("db.user"),
			Password:    v.GetString("db.password"),
			DBName:      v.GetString("db.name"),
			SSLMode:     v.GetString("db.sslmode"),
		},
		HTTP: HTTPConfig{
			Enabled: v.GetBool("http.enabled"),
			Host:    v.GetString("http.host"),
			Port:    v.GetInt("http.port"),
		},
		JWT: JWTConfig{
			Secret:     v.GetString("jwt.secret"),
			Expiration: v.GetInt("jwt.expiration_minutes"),
			Issuer:     v.GetString("jwt.issuer"),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: v.GetString("telemetry.otlp_endpoint"),
			Insecure:     v.GetBool("telemetry.insecure"),
			ServiceName:  v.GetString("telemetry.service_name"),
		},
	}

	return cfg, nil
}

// NormalizeMode aplica el alias histórico voice_command → voice_order.
func NormalizeMode(mode string) string {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "voice_command" {
		return ModeVoiceOrder
	}
	return mode
}

// NeedsBridge indica si el modo configurado requiere el puente de Home Assistant para pedir.
func (c OrderConfig) NeedsBridge() bool {
	return c.Mode == ModeVoiceOrder || c.Mode == ModeShoppingList
}

// Validate comprueba los valores obligatorios. Todos los problemas se devuelven juntos.
func (c *Config) Validate() error {
	var errs []error
	switch c.Order.Mode {
	case ModeVoiceOrder, ModeShoppingList, ModeNotifyOnly:
	default:
		errs = append(errs, fmt.Errorf("order.mode %q no soportado (voice_order, shopping_list, notify_only)", c.Order.Mode))
	}
	if c.Order.MaxOrdersPerDay <= 0 {
		errs = append(errs, fmt.Errorf("order.max_per_day debe ser positivo (actual %d)", c.Order.MaxOrdersPerDay))
	}
	if c.Order.CheckInterval <= 0 {
		errs = append(errs, errors.New("order.check_interval_minutes debe ser positivo"))
	}
	if c.Grocy.URL == "" {
		errs = append(errs, errors.New("GROCY_URL es obligatorio"))
	}
	if c.Grocy.APIKey == "" {
		errs = append(errs, errors.New("GROCY_API_KEY es obligatorio"))
	}
	if c.Order.NeedsBridge() && c.HomeAssistant.Token == "" {
		errs = append(errs, errors.New("HASS_TOKEN es obligatorio para los modos voice_order y shopping_list"))
	}
	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == "") {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN y TELEGRAM_CHAT_ID son obligatorios con Telegram activo"))
	}
	switch c.Ledger.Backend {
	case LedgerBackendFile:
		if c.Ledger.Path == "" {
			errs = append(errs, errors.New("LEDGER_PATH es obligatorio con backend file"))
		}
	case LedgerBackendPostgres:
		if c.DB.DatabaseURL == "" && c.DB.Host == "" {
			errs = append(errs, errors.New("DATABASE_URL o DB_HOST es obligatorio con backend postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("ledger.backend %q no soportado (file, postgres)", c.Ledger.Backend))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// loadDotEnv exporta las claves de un archivo .env que aún no existan en el entorno.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("leer %s: %w", path, err)
	}
	for _, key := range v.AllKeys() {
		env := strings.ToUpper(key)
		if _, exists := os.LookupEnv(env); exists {
			continue
		}
		_ = os.Setenv(env, v.GetString(key))
	}
	return nil
}
