package config

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

type fakeSecretsManager map[string]*string

func (f fakeSecretsManager) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	value, ok := f[aws.ToString(in.SecretId)]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: value}, nil
}

func useSecretsManager(t *testing.T, client secretsManagerAPI) {
	t.Helper()
	prev := newSecretsManager
	newSecretsManager = func(context.Context) (secretsManagerAPI, error) { return client, nil }
	t.Cleanup(func() { newSecretsManager = prev })
}

func TestResolveAWSSecretsManager(t *testing.T) {
	useSecretsManager(t, fakeSecretsManager{
		"wshealth/metadata-url": aws.String("postgres://core@db/core"),
		"rds/core":              aws.String(`{"username":"core","password":"s3cret","port":5432}`),
		"binary":                nil,
	})

	tests := []struct {
		name    string
		ref     string
		want    string
		wantErr string
	}{
		{name: "plain secret", ref: "wshealth/metadata-url", want: "postgres://core@db/core"},
		{name: "json field", ref: "rds/core#password", want: "s3cret"},
		{name: "json number", ref: "rds/core#port", want: "5432"},
		{name: "missing field", ref: "rds/core#host", wantErr: "not found"},
		{name: "field of plain secret", ref: "wshealth/metadata-url#password", wantErr: "not a JSON object"},
		{name: "binary secret", ref: "binary", wantErr: "no string value"},
		{name: "unknown secret", ref: "nope", wantErr: "ResourceNotFoundException"},
		{name: "empty id", ref: "#password", wantErr: "invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveAWSSecretsManager(context.Background(), tt.ref)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want one mentioning %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveValueAWSSecretsManager(t *testing.T) {
	useSecretsManager(t, fakeSecretsManager{"rds/core": aws.String(`{"password":"s3cret"}`)})

	val, err := ResolveValue(context.Background(), "${AWS_SM:rds/core#password}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "s3cret" {
		t.Errorf("got %q", val)
	}
}

func TestResolveAWSSecretsManagerClientError(t *testing.T) {
	prev := newSecretsManager
	newSecretsManager = func(context.Context) (secretsManagerAPI, error) {
		return nil, errors.New("loading AWS config: no region")
	}
	t.Cleanup(func() { newSecretsManager = prev })

	if _, err := resolveAWSSecretsManager(context.Background(), "rds/core"); err == nil {
		t.Error("expected error when the client cannot be built")
	}
}
