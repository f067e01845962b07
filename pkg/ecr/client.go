package ecr

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"ecrmirror/pkg/reference"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"github.com/aws/aws-sdk-go-v2/service/ecrpublic"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
)

// ECR Public only issues tokens from us-east-1.
const publicRegion = "us-east-1"

const usernameTokenParts = 2

var (
	ErrNoAuthorizationData = errors.New("no authorization data returned")
	ErrInvalidToken        = errors.New("invalid authorization token format")
	ErrUnsupportedHost     = errors.New("host is not an ECR registry")
)

// API is the subset of the ECR client used here.
type API interface {
	GetAuthorizationToken(ctx context.Context, params *ecr.GetAuthorizationTokenInput,
		optFns ...func(*ecr.Options)) (*ecr.GetAuthorizationTokenOutput, error)
	DescribeImages(ctx context.Context, params *ecr.DescribeImagesInput,
		optFns ...func(*ecr.Options)) (*ecr.DescribeImagesOutput, error)
}

// PublicAPI is the subset of the ECR Public client used here.
type PublicAPI interface {
	GetAuthorizationToken(ctx context.Context, params *ecrpublic.GetAuthorizationTokenInput,
		optFns ...func(*ecrpublic.Options)) (*ecrpublic.GetAuthorizationTokenOutput, error)
}

// IdentityAPI resolves the caller's account.
type IdentityAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput,
		optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Client talks to private ECR (one API client per region), ECR Public and STS.
type Client struct {
	region    string
	accountID string
	newAPI    func(region string) API
	apis      map[string]API
	public    PublicAPI
	identity  IdentityAPI
}

// NewClient loads the default AWS configuration for region.
func NewClient(ctx context.Context, region string) (*Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewFromConfig(cfg), nil
}

// NewFromConfig builds the service clients from cfg.
func NewFromConfig(cfg aws.Config) *Client {
	publicCfg := cfg.Copy()
	publicCfg.Region = publicRegion

	return New(cfg.Region,
		func(region string) API {
			return ecr.NewFromConfig(cfg, func(o *ecr.Options) { o.Region = region })
		},
		ecrpublic.NewFromConfig(publicCfg),
		sts.NewFromConfig(cfg),
	)
}

// New wires the client from already constructed service clients.
func New(region string, newAPI func(region string) API, public PublicAPI, identity IdentityAPI) *Client {
	return &Client{
		region:   region,
		newAPI:   newAPI,
		apis:     map[string]API{},
		public:   public,
		identity: identity,
	}
}

func (c *Client) api(region string) API {
	if api, ok := c.apis[region]; ok {
		return api
	}
	api := c.newAPI(region)
	c.apis[region] = api
	return api
}

// AccountID returns the account of the current credentials.
func (c *Client) AccountID(ctx context.Context) (string, error) {
	if c.accountID != "" {
		return c.accountID, nil
	}

	identity, err := c.identity.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to get AWS account ID: %w", err)
	}
	c.accountID = aws.ToString(identity.Account)
	return c.accountID, nil
}

// RegistryURL is the home private registry host of the current account and region.
func (c *Client) RegistryURL(ctx context.Context) (string, error) {
	account, err := c.AccountID(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s.dkr.ecr.%s.amazonaws.com", account, c.region), nil
}

// AuthToken returns a short-lived username/password pair for a private or public ECR host.
func (c *Client) AuthToken(ctx context.Context, host string) (string, string, error) {
	switch {
	case strings.Contains(host, reference.PrivateMarker):
		return c.privateToken(ctx, host)
	case strings.HasPrefix(host, reference.PublicMarker):
		return c.publicToken(ctx)
	default:
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedHost, host)
	}
}

func (c *Client) privateToken(ctx context.Context, host string) (string, string, error) {
	account, region, err := reference.AccountRegion(host)
	if err != nil {
		return "", "", err
	}

	result, err := c.api(region).GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{
		RegistryIds: []string{account},
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to get ECR auth token for %s: %w", host, err)
	}
	if len(result.AuthorizationData) == 0 {
		return "", "", ErrNoAuthorizationData
	}

	return decodeToken(aws.ToString(result.AuthorizationData[0].AuthorizationToken))
}

func (c *Client) publicToken(ctx context.Context) (string, string, error) {
	result, err := c.public.GetAuthorizationToken(ctx, &ecrpublic.GetAuthorizationTokenInput{})
	if err != nil {
		return "", "", fmt.Errorf("failed to get ECR Public auth token: %w", err)
	}
	if result.AuthorizationData == nil {
		return "", "", ErrNoAuthorizationData
	}

	return decodeToken(aws.ToString(result.AuthorizationData.AuthorizationToken))
}

// decodeToken splits a base64 "user:password" authorization token.
func decodeToken(token string) (string, string, error) {
	if token == "" {
		return "", "", ErrNoAuthorizationData
	}

	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", "", fmt.Errorf("failed to decode auth token: %w", err)
	}

	parts := strings.SplitN(string(decoded), ":", usernameTokenParts)
	if len(parts) != usernameTokenParts {
		return "", "", ErrInvalidToken
	}

	return parts[0], parts[1], nil
}

// ImageDigest looks up the digest of a private ECR reference with DescribeImages.
// A missing repository or tag yields an unresolved digest and no error.
func (c *Client) ImageDigest(ctx context.Context, ref reference.Reference) (reference.Digest, error) {
	account, region, err := reference.AccountRegion(ref.Registry)
	if err != nil {
		return "", err
	}

	result, err := c.api(region).DescribeImages(ctx, &ecr.DescribeImagesInput{
		RegistryId:     aws.String(account),
		RepositoryName: aws.String(ref.Repository),
		ImageIds: []ecrtypes.ImageIdentifier{
			{ImageTag: aws.String(ref.Tag)},
		},
	})
	if err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to describe image %s: %w", ref, err)
	}

	if len(result.ImageDetails) == 0 {
		return "", nil
	}
	return reference.Digest(aws.ToString(result.ImageDetails[0].ImageDigest)), nil
}

func isNotFound(err error) bool {
	var imageNotFound *ecrtypes.ImageNotFoundException
	var repoNotFound *ecrtypes.RepositoryNotFoundException
	if errors.As(err, &imageNotFound) || errors.As(err, &repoNotFound) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ImageNotFoundException", "RepositoryNotFoundException":
			return true
		}
	}
	return false
}
