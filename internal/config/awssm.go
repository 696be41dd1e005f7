package config

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// newSecretsManager builds a client from the default AWS credential chain.
var newSecretsManager = func(ctx context.Context) (secretsManagerAPI, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return secretsmanager.NewFromConfig(cfg), nil
}

// resolveAWSSecretsManager reads a secret by name or ARN. A #field suffix
// selects one field of a JSON secret, such as the password of an RDS
// credential.
func resolveAWSSecretsManager(ctx context.Context, ref string) (string, error) {
	id, field, _ := strings.Cut(ref, "#")
	if id == "" {
		return "", fmt.Errorf("invalid AWS Secrets Manager reference %q", ref)
	}

	client, err := newSecretsManager(ctx)
	if err != nil {
		return "", err
	}

	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(id),
	})
	if err != nil {
		return "", fmt.Errorf("getting secret %q: %w", id, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %q has no string value", id)
	}
	if field == "" {
		return *out.SecretString, nil
	}

	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(*out.SecretString), &fields); err != nil {
		return "", fmt.Errorf("secret %q is not a JSON object: %w", id, err)
	}
	switch v := fields[field].(type) {
	case string:
		return v, nil
	case float64:
		return fmt.Sprint(v), nil
	case nil:
		return "", fmt.Errorf("field %q not found in secret %q", field, id)
	default:
		return "", fmt.Errorf("field %q of secret %q is a %T, want a string", field, id, v)
	}
}
