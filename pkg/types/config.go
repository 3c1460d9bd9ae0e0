package types

// Calendar defines a named set of non-school days and dates.
type Calendar struct {
	Name  string   `yaml:"name" json:"name"`
	Days  []string `yaml:"days,omitempty" json:"days,omitempty"`   // "saturday", "sunday"
	Dates []string `yaml:"dates,omitempty" json:"dates,omitempty"` // "2025-12-25"
}

// AlertConfig configures a notification fan-out sink.
type AlertConfig struct {
	Type     AlertType `yaml:"type" json:"type"`
	URL      string    `yaml:"url,omitempty" json:"url,omitempty"`
	Path     string    `yaml:"path,omitempty" json:"path,omitempty"`
	BusName  string    `yaml:"busName,omitempty" json:"busName,omitempty"`
	Source   string    `yaml:"source,omitempty" json:"source,omitempty"`
	QueueURL string    `yaml:"queueUrl,omitempty" json:"queueUrl,omitempty"`
}

// ServerConfig configures the ops HTTP API.
type ServerConfig struct {
	Addr           string   `yaml:"addr" json:"addr"`
	APIKey         string   `yaml:"apiKey,omitempty" json:"-"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty" json:"allowedOrigins,omitempty"`
}

// EngineConfig tunes the streak engine and backfill sweep.
type EngineConfig struct {
	Timezone         string `yaml:"timezone,omitempty" json:"timezone,omitempty"`           // e.g. "Asia/Manila"
	LeaseDuration    string `yaml:"leaseDuration,omitempty" json:"leaseDuration,omitempty"` // e.g. "5m"
	FetchConcurrency int    `yaml:"fetchConcurrency,omitempty" json:"fetchConcurrency,omitempty"`
	Calendar         string `yaml:"calendar,omitempty" json:"calendar,omitempty"` // named calendar of non-school days
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	Endpoint    string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	ServiceName string `yaml:"serviceName,omitempty" json:"serviceName,omitempty"`
	Insecure    bool   `yaml:"insecure,omitempty" json:"insecure,omitempty"`
}

// WatchdogConfig configures the watermark lag watchdog.
type WatchdogConfig struct {
	Enabled         bool   `yaml:"enabled" json:"enabled"`
	Interval        string `yaml:"interval,omitempty" json:"interval,omitempty"`               // e.g. "5m"
	MaxLagDays      int    `yaml:"maxLagDays,omitempty" json:"maxLagDays,omitempty"`           // days a watermark may trail yesterday
	StaleLeaseGrace string `yaml:"staleLeaseGrace,omitempty" json:"staleLeaseGrace,omitempty"` // e.g. "15m"
}

// DynamoDBConfig holds DynamoDB connection settings.
type DynamoDBConfig struct {
	TableName   string `yaml:"tableName" json:"tableName"`
	Region      string `yaml:"region,omitempty" json:"region,omitempty"`
	Endpoint    string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	CreateTable bool   `yaml:"createTable,omitempty" json:"createTable,omitempty"`
}

// FirestoreConfig holds Firestore connection settings.
type FirestoreConfig struct {
	ProjectID  string `yaml:"projectId" json:"projectId"`
	Collection string `yaml:"collection,omitempty" json:"collection,omitempty"`
	Emulator   string `yaml:"emulator,omitempty" json:"emulator,omitempty"`
}

// ProjectConfig is the top-level rollcall.yaml configuration.
type ProjectConfig struct {
	Provider     string           `yaml:"provider"`
	DynamoDB     *DynamoDBConfig  `yaml:"dynamodb,omitempty"`
	Firestore    *FirestoreConfig `yaml:"firestore,omitempty"`
	Engine       EngineConfig     `yaml:"engine,omitempty"`
	Server       ServerConfig     `yaml:"server,omitempty"`
	CalendarDirs []string         `yaml:"calendarDirs,omitempty"`
	Alerts       []AlertConfig    `yaml:"alerts,omitempty"`
	Telemetry    *TelemetryConfig `yaml:"telemetry,omitempty"`
	Watchdog     *WatchdogConfig  `yaml:"watchdog,omitempty"`
}
