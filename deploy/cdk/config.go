package main

// StackConfig holds configuration for the Rollcall CDK stack.
type StackConfig struct {
	TableName        string
	MemorySize       float64
	Timeout          float64
	StreakTimeout    float64
	LambdaDistDir    string
	LayerDistDir     string
	Timezone         string
	Calendar         string
	LeaseDuration    string
	LogRetentionDays float64
	DestroyOnDelete  bool

	// NightlySchedule is the EventBridge expression that starts the backfill
	// Lambda, which then chains the streak Lambda.
	NightlySchedule  string
	WatchdogSchedule string

	// Opt-in notification queue alongside the event bus.
	EnableQueue bool

	// WebhookSecretID names a Secrets Manager secret holding a webhook URL
	// that receives notifications and watchdog alerts.
	WebhookSecretID string
}

// DefaultConfig returns a StackConfig with sensible defaults.
func DefaultConfig() StackConfig {
	return StackConfig{
		TableName:        "rollcall",
		MemorySize:       256,
		Timeout:          60,
		StreakTimeout:    300,
		LambdaDistDir:    "../dist/lambda",
		LayerDistDir:     "../dist/layer",
		Timezone:         "UTC",
		LeaseDuration:    "5m",
		LogRetentionDays: 7,
		NightlySchedule:  "cron(0 17 * * ? *)",
		WatchdogSchedule: "rate(1 hour)",
	}
}
