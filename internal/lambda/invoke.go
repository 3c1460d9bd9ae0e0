package lambda

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/aws/aws-sdk-go-v2/aws"
	lambdasvc "github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/oklog/ulid/v2"
)

// InvokeAPI is the subset of the Lambda client used to chain functions.
type InvokeAPI interface {
	Invoke(ctx context.Context, params *lambdasvc.InvokeInput, optFns ...func(*lambdasvc.Options)) (*lambdasvc.InvokeOutput, error)
}

// StreakRequest is the payload of the streak function. Scheduled EventBridge
// invocations decode to the zero value.
type StreakRequest struct {
	Trigger        string `json:"trigger,omitempty"`
	BackfillEndDay string `json:"backfillEndDay,omitempty"`
}

// ChainStreak asynchronously invokes the streak function. It reports false
// without error when no streak function is configured.
func (d *Deps) ChainStreak(ctx context.Context, req StreakRequest) (bool, error) {
	if d.Invoker == nil || d.StreakFunctionName == "" {
		return false, nil
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return false, fmt.Errorf("marshaling streak request: %w", err)
	}
	out, err := d.Invoker.Invoke(ctx, &lambdasvc.InvokeInput{
		FunctionName:   aws.String(d.StreakFunctionName),
		InvocationType: lambdatypes.InvocationTypeEvent,
		Payload:        payload,
	})
	if err != nil {
		return false, fmt.Errorf("invoking %s: %w", d.StreakFunctionName, err)
	}
	if out.FunctionError != nil {
		return false, fmt.Errorf("invoking %s: %s", d.StreakFunctionName, *out.FunctionError)
	}
	d.Logger.Info("chained streak function", "function", d.StreakFunctionName, "trigger", req.Trigger)
	return true, nil
}

// ActorID returns the lease holder id for an invocation: the Lambda request
// id when available, otherwise a fresh ULID.
func ActorID(ctx context.Context) string {
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		return "lambda-" + lc.AwsRequestID
	}
	return "lambda-" + ulid.Make().String()
}
