package main

import (
	"path/filepath"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsdynamodb"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsevents"
	"github.com/aws/aws-cdk-go/awscdk/v2/awseventstargets"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambda"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambdaeventsources"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslogs"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssqs"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
)

// NewRollcallStack defines the table, the four handler Lambdas, their
// schedules and the notification fan-out targets.
func NewRollcallStack(scope constructs.Construct, id string, cfg StackConfig) awscdk.Stack {
	stack := awscdk.NewStack(scope, &id, nil)

	// Single table; the stream feeds notification records to stream-router.
	table := awsdynamodb.NewTableV2(stack, jsii.String("Table"), &awsdynamodb.TablePropsV2{
		TableName: jsii.String(cfg.TableName),
		PartitionKey: &awsdynamodb.Attribute{
			Name: jsii.String("PK"),
			Type: awsdynamodb.AttributeType_STRING,
		},
		SortKey: &awsdynamodb.Attribute{
			Name: jsii.String("SK"),
			Type: awsdynamodb.AttributeType_STRING,
		},
		Billing:       awsdynamodb.Billing_OnDemand(nil),
		DynamoStream:  awsdynamodb.StreamViewType_NEW_IMAGE,
		RemovalPolicy: removalPolicy(cfg.DestroyOnDelete),
		GlobalSecondaryIndexes: &[]*awsdynamodb.GlobalSecondaryIndexPropsV2{
			{
				IndexName: jsii.String("GSI1"),
				PartitionKey: &awsdynamodb.Attribute{
					Name: jsii.String("GSI1PK"),
					Type: awsdynamodb.AttributeType_STRING,
				},
				SortKey: &awsdynamodb.Attribute{
					Name: jsii.String("GSI1SK"),
					Type: awsdynamodb.AttributeType_STRING,
				},
			},
		},
	})

	bus := awsevents.NewEventBus(stack, jsii.String("NotificationBus"), &awsevents.EventBusProps{
		EventBusName: jsii.String(cfg.TableName + "-notifications"),
	})

	var queue awssqs.Queue
	if cfg.EnableQueue {
		queue = awssqs.NewQueue(stack, jsii.String("NotificationQueue"), &awssqs.QueueProps{
			QueueName:       jsii.String(cfg.TableName + "-notifications"),
			RetentionPeriod: awscdk.Duration_Days(jsii.Number(4)),
		})
	}

	// Calendar YAML files, mounted at /opt/calendars.
	layer := awslambda.NewLayerVersion(stack, jsii.String("CalendarLayer"), &awslambda.LayerVersionProps{
		Code:                    awslambda.Code_FromAsset(jsii.String(cfg.LayerDistDir), nil),
		CompatibleRuntimes:      &[]awslambda.Runtime{awslambda.Runtime_PROVIDED_AL2023()},
		CompatibleArchitectures: &[]awslambda.Architecture{awslambda.Architecture_ARM_64()},
		Description:             jsii.String("Rollcall school calendars"),
	})

	memorySize := jsii.Number(cfg.MemorySize)
	logRetention := logRetentionDays(cfg.LogRetentionDays)

	makeFn := func(name string, timeout float64, env map[string]*string) awslambda.Function {
		vars := map[string]*string{
			"TABLE_NAME":     table.TableName(),
			"TIMEZONE":       jsii.String(cfg.Timezone),
			"LEASE_DURATION": jsii.String(cfg.LeaseDuration),
			"CALENDAR_DIR":   jsii.String("/opt/calendars"),
		}
		if cfg.Calendar != "" {
			vars["CALENDAR"] = jsii.String(cfg.Calendar)
		}
		for k, v := range env {
			vars[k] = v
		}
		return awslambda.NewFunction(stack, jsii.String(name), &awslambda.FunctionProps{
			FunctionName: jsii.String(cfg.TableName + "-" + name),
			Runtime:      awslambda.Runtime_PROVIDED_AL2023(),
			Handler:      jsii.String("bootstrap"),
			Code:         awslambda.Code_FromAsset(jsii.String(filepath.Join(cfg.LambdaDistDir, name)), nil),
			Architecture: awslambda.Architecture_ARM_64(),
			MemorySize:   memorySize,
			Timeout:      awscdk.Duration_Seconds(jsii.Number(timeout)),
			Environment:  &vars,
			Layers:       &[]awslambda.ILayerVersion{layer},
			LogRetention: logRetention,
		})
	}

	notifyEnv := map[string]*string{"EVENT_BUS_NAME": bus.EventBusName()}
	if queue != nil {
		notifyEnv["NOTIFICATION_QUEUE_URL"] = queue.QueueUrl()
	}
	if cfg.WebhookSecretID != "" {
		notifyEnv["WEBHOOK_SECRET_ID"] = jsii.String(cfg.WebhookSecretID)
	}

	streakFn := makeFn("streak", cfg.StreakTimeout, nil)
	backfillFn := makeFn("backfill", cfg.StreakTimeout, map[string]*string{
		"STREAK_FUNCTION_NAME": streakFn.FunctionName(),
	})
	streamRouterFn := makeFn("stream-router", cfg.Timeout, notifyEnv)
	watchdogFn := makeFn("watchdog", cfg.Timeout, notifyEnv)

	// Backfill and streak write facts, state and notifications; watchdog only
	// reads the watermark.
	table.GrantReadWriteData(backfillFn)
	table.GrantReadWriteData(streakFn)
	table.GrantReadData(watchdogFn)
	streakFn.GrantInvoke(backfillFn)

	for _, fn := range []awslambda.Function{streamRouterFn, watchdogFn} {
		fn.AddToRolePolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
			Actions:   &[]*string{jsii.String("events:PutEvents")},
			Resources: &[]*string{bus.EventBusArn()},
		}))
		if queue != nil {
			queue.GrantSendMessages(fn)
		}
		if cfg.WebhookSecretID != "" {
			fn.AddToRolePolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
				Actions:   &[]*string{jsii.String("secretsmanager:GetSecretValue")},
				Resources: &[]*string{jsii.String("*")},
			}))
		}
	}

	// stream-router reports undelivered notifications per record.
	streamRouterFn.AddEventSource(awslambdaeventsources.NewDynamoEventSource(table, &awslambdaeventsources.DynamoEventSourceProps{
		StartingPosition:        awslambda.StartingPosition_LATEST,
		BatchSize:               jsii.Number(10),
		RetryAttempts:           jsii.Number(3),
		ReportBatchItemFailures: jsii.Bool(true),
	}))

	awsevents.NewRule(stack, jsii.String("NightlySchedule"), &awsevents.RuleProps{
		RuleName: jsii.String(cfg.TableName + "-nightly"),
		Schedule: awsevents.Schedule_Expression(jsii.String(cfg.NightlySchedule)),
		Targets:  &[]awsevents.IRuleTarget{awseventstargets.NewLambdaFunction(backfillFn, nil)},
	})
	awsevents.NewRule(stack, jsii.String("WatchdogSchedule"), &awsevents.RuleProps{
		RuleName: jsii.String(cfg.TableName + "-watchdog"),
		Schedule: awsevents.Schedule_Expression(jsii.String(cfg.WatchdogSchedule)),
		Targets:  &[]awsevents.IRuleTarget{awseventstargets.NewLambdaFunction(watchdogFn, nil)},
	})

	awscdk.NewCfnOutput(stack, jsii.String("TableName"), &awscdk.CfnOutputProps{
		Value: table.TableName(),
	})
	awscdk.NewCfnOutput(stack, jsii.String("EventBusName"), &awscdk.CfnOutputProps{
		Value: bus.EventBusName(),
	})
	if queue != nil {
		awscdk.NewCfnOutput(stack, jsii.String("QueueUrl"), &awscdk.CfnOutputProps{
			Value: queue.QueueUrl(),
		})
	}

	return stack
}

func removalPolicy(destroy bool) awscdk.RemovalPolicy {
	if destroy {
		return awscdk.RemovalPolicy_DESTROY
	}
	return awscdk.RemovalPolicy_RETAIN
}

func logRetentionDays(days float64) awslogs.RetentionDays {
	switch days {
	case 1:
		return awslogs.RetentionDays_ONE_DAY
	case 3:
		return awslogs.RetentionDays_THREE_DAYS
	case 7:
		return awslogs.RetentionDays_ONE_WEEK
	case 14:
		return awslogs.RetentionDays_TWO_WEEKS
	case 30:
		return awslogs.RetentionDays_ONE_MONTH
	case 90:
		return awslogs.RetentionDays_THREE_MONTHS
	case 365:
		return awslogs.RetentionDays_ONE_YEAR
	default:
		return awslogs.RetentionDays_ONE_WEEK
	}
}
