package lambda

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/rollcall/internal/testutil"
)

type mockSecrets struct {
	value string
	err   error
	ids   []string
}

func (m *mockSecrets) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	m.ids = append(m.ids, aws.ToString(in.SecretId))
	if m.err != nil {
		return nil, m.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(m.value)}, nil
}

func TestResolveWebhookURL(t *testing.T) {
	api := &mockSecrets{value: " https://hooks.example.com/rollcall\n"}
	url, err := ResolveWebhookURL(context.Background(), api, "rollcall/webhook")
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.example.com/rollcall", url)
	assert.Equal(t, []string{"rollcall/webhook"}, api.ids)
}

func TestResolveWebhookURL_Errors(t *testing.T) {
	_, err := ResolveWebhookURL(context.Background(), &mockSecrets{err: errors.New("access denied")}, "rollcall/webhook")
	assert.ErrorContains(t, err, "access denied")

	_, err = ResolveWebhookURL(context.Background(), &mockSecrets{value: "not-a-url"}, "rollcall/webhook")
	assert.ErrorContains(t, err, "http(s) URL")
}

func TestNewDeps_WebhookSink(t *testing.T) {
	d, err := NewDeps(context.Background(), Env{WebhookURL: "https://hooks.example.com/rollcall"}, testutil.NewMockProvider(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Notifier.Len())
}
