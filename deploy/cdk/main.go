package main

import (
	"os"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/jsii-runtime-go"
)

func main() {
	defer jsii.Close()

	app := awscdk.NewApp(nil)
	cfg := DefaultConfig()

	if name := os.Getenv("ROLLCALL_TABLE_NAME"); name != "" {
		cfg.TableName = name
	}
	if tz := os.Getenv("ROLLCALL_TIMEZONE"); tz != "" {
		cfg.Timezone = tz
	}
	if cal := os.Getenv("ROLLCALL_CALENDAR"); cal != "" {
		cfg.Calendar = cal
	}
	if sched := os.Getenv("ROLLCALL_NIGHTLY_SCHEDULE"); sched != "" {
		cfg.NightlySchedule = sched
	}
	cfg.WebhookSecretID = os.Getenv("ROLLCALL_WEBHOOK_SECRET_ID")
	cfg.EnableQueue = os.Getenv("ROLLCALL_ENABLE_QUEUE") == "true"
	cfg.DestroyOnDelete = os.Getenv("ROLLCALL_DESTROY_ON_DELETE") == "true"

	stackName := "RollcallStack"
	if name := os.Getenv("ROLLCALL_STACK_NAME"); name != "" {
		stackName = name
	}

	NewRollcallStack(app, stackName, cfg)
	app.Synth(nil)
}
