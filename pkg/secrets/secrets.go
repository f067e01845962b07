// Package secrets seeds the registry auth-file from AWS-held credentials.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/sirupsen/logrus"
)

// SecretsManagerPrefix marks names read from Secrets Manager. Any other name
// is an SSM parameter.
const SecretsManagerPrefix = "arn:aws:secretsmanager:"

var ErrEmptySecret = errors.New("secret has no string value")

type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Getter returns the plaintext value stored under name.
type Getter interface {
	Get(ctx context.Context, name string) (string, error)
}

// AWSGetter reads from SSM Parameter Store or Secrets Manager depending on name.
type AWSGetter struct {
	ssm     SSMAPI
	secrets SecretsManagerAPI
}

func NewAWSGetter(ctx context.Context, region string) (*AWSGetter, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return New(ssm.NewFromConfig(cfg), secretsmanager.NewFromConfig(cfg)), nil
}

func New(ssmAPI SSMAPI, secretsAPI SecretsManagerAPI) *AWSGetter {
	return &AWSGetter{ssm: ssmAPI, secrets: secretsAPI}
}

func (g *AWSGetter) Get(ctx context.Context, name string) (string, error) {
	if strings.HasPrefix(name, SecretsManagerPrefix) {
		resp, err := g.secrets.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: aws.String(name),
		})
		if err != nil {
			return "", fmt.Errorf("failed to read secret %s: %w", name, err)
		}
		if resp.SecretString == nil {
			return "", fmt.Errorf("%w: %s", ErrEmptySecret, name)
		}
		return *resp.SecretString, nil
	}

	resp, err := g.ssm.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to read parameter %s: %w", name, err)
	}
	if resp.Parameter == nil || resp.Parameter.Value == nil {
		return "", fmt.Errorf("%w: %s", ErrEmptySecret, name)
	}

	return *resp.Parameter.Value, nil
}

// Seed writes the value stored under name verbatim to path with mode 0600.
// An empty name leaves path untouched.
func Seed(ctx context.Context, getter Getter, name, path string, log logrus.FieldLogger) error {
	if name == "" {
		return nil
	}

	value, err := getter.Get(ctx, name)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create auth-file directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(value), 0o600); err != nil {
		return fmt.Errorf("failed to write auth-file %s: %w", path, err)
	}

	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("failed to restrict auth-file %s: %w", path, err)
	}

	log.WithFields(logrus.Fields{"secret": name, "authfile": path}).Info("Seeded auth-file")
	return nil
}
