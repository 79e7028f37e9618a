// Package aws implements resource handlers for the EC2 networking family
// backed by the AWS SDK.
package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/smithy-go"

	"github.com/stackform-io/stackform/internal/provider"
)

// Provider holds shared AWS clients for all handlers in this package.
// Clients initialize lazily on first use so commands that never touch AWS
// (plan against local state, validate) need no credentials.
type Provider struct {
	region string

	mu        sync.Mutex
	ec2Client *ec2.Client
}

func New(region string) *Provider {
	if region == "" {
		region = "us-east-1"
	}
	return &Provider{region: region}
}

// Register installs every handler this package implements.
func Register(reg *provider.Registry, p *Provider) error {
	handlers := map[string]provider.Handler{
		"aws_vpc":              &vpcHandler{p: p},
		"aws_subnet":           &subnetHandler{p: p},
		"aws_internet_gateway": &internetGatewayHandler{p: p},
		"aws_route_table":      &routeTableHandler{p: p},
		"aws_security_group":   &securityGroupHandler{p: p},
		"aws_key_pair":         &keyPairHandler{p: p},
		"aws_instance":         &instanceHandler{p: p},
	}
	for kind, h := range handlers {
		if err := reg.Register(kind, h); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) ec2(ctx context.Context) (*ec2.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ec2Client != nil {
		return p.ec2Client, nil
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(p.region))
	if err != nil {
		return nil, provider.Permanent(fmt.Errorf("unable to load SDK config: %w", err))
	}
	p.ec2Client = ec2.NewFromConfig(cfg)
	return p.ec2Client, nil
}

// classify maps an AWS API error onto the engine's error classes so the
// executor knows what is retryable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return provider.Permanent(err)
	}
	code := apiErr.ErrorCode()
	switch {
	case strings.HasSuffix(code, ".NotFound"), strings.HasSuffix(code, "NotFoundException"):
		return provider.NotFound(err)
	case code == "Throttling", code == "ThrottlingException",
		code == "RequestLimitExceeded", code == "RequestThrottled",
		code == "ServiceUnavailable", code == "InternalError":
		return provider.Transient(err)
	default:
		return provider.Permanent(err)
	}
}

// decode maps a loosely typed attribute tree onto a handler's config struct.
func decode(attrs map[string]any, dst any) error {
	data, err := json.Marshal(attrs)
	if err != nil {
		return provider.Permanent(fmt.Errorf("encoding attributes: %w", err))
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return provider.Permanent(fmt.Errorf("decoding attributes: %w", err))
	}
	return nil
}
