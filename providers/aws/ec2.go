package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/stackform-io/stackform/internal/provider"
)

type keyPairConfig struct {
	Name      string            `json:"name"`
	PublicKey string            `json:"publicKey"`
	Tags      map[string]string `json:"tags,omitempty"`
}

type keyPairHandler struct {
	p *Provider
}

func (h *keyPairHandler) Schema() provider.Schema {
	return provider.Schema{
		Mutable:           []string{"tags"},
		ForcesReplacement: []string{"name", "publicKey"},
	}
}

func (h *keyPairHandler) Create(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var cfg keyPairConfig
	if err := decode(attrs, &cfg); err != nil {
		return "", nil, err
	}
	client, err := h.p.ec2(ctx)
	if err != nil {
		return "", nil, err
	}

	resp, err := client.ImportKeyPair(ctx, &ec2.ImportKeyPairInput{
		KeyName:           aws.String(cfg.Name),
		PublicKeyMaterial: []byte(cfg.PublicKey),
	})
	if err != nil {
		return "", nil, classify(fmt.Errorf("failed to import key pair: %w", err))
	}
	name := aws.ToString(resp.KeyName)

	if err := applyTags(ctx, client, aws.ToString(resp.KeyPairId), cfg.Tags); err != nil {
		return "", nil, err
	}

	return name, map[string]any{
		"id":          name,
		"keyPairId":   aws.ToString(resp.KeyPairId),
		"fingerprint": aws.ToString(resp.KeyFingerprint),
	}, nil
}

func (h *keyPairHandler) Read(ctx context.Context, id string) (map[string]any, error) {
	client, err := h.p.ec2(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := client.DescribeKeyPairs(ctx, &ec2.DescribeKeyPairsInput{KeyNames: []string{id}})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.KeyPairs) == 0 {
		return nil, provider.NotFound(fmt.Errorf("key pair %s does not exist", id))
	}
	kp := resp.KeyPairs[0]
	return map[string]any{
		"name": aws.ToString(kp.KeyName),
		"tags": fromEC2Tags(kp.Tags),
	}, nil
}

func (h *keyPairHandler) Update(ctx context.Context, id string, attrs map[string]any) (map[string]any, error) {
	var cfg keyPairConfig
	if err := decode(attrs, &cfg); err != nil {
		return nil, err
	}
	client, err := h.p.ec2(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := client.DescribeKeyPairs(ctx, &ec2.DescribeKeyPairsInput{KeyNames: []string{id}})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.KeyPairs) == 0 {
		return nil, provider.NotFound(fmt.Errorf("key pair %s does not exist", id))
	}
	if err := applyTags(ctx, client, aws.ToString(resp.KeyPairs[0].KeyPairId), cfg.Tags); err != nil {
		return nil, err
	}
	return map[string]any{"id": id}, nil
}

func (h *keyPairHandler) Delete(ctx context.Context, id string) error {
	client, err := h.p.ec2(ctx)
	if err != nil {
		return err
	}
	if _, err := client.DeleteKeyPair(ctx, &ec2.DeleteKeyPairInput{KeyName: aws.String(id)}); err != nil {
		return classify(fmt.Errorf("failed to delete key pair: %w", err))
	}
	return nil
}

type instanceConfig struct {
	AMI              string            `json:"ami"`
	InstanceType     string            `json:"instanceType"`
	SubnetID         string            `json:"subnetId,omitempty"`
	SecurityGroupIDs []string          `json:"securityGroupIds,omitempty"`
	KeyName          string            `json:"keyName,omitempty"`
	UserData         string            `json:"userData,omitempty"`
	Tags             map[string]string `json:"tags,omitempty"`
}

type instanceHandler struct {
	p *Provider
}

func (h *instanceHandler) Schema() provider.Schema {
	return provider.Schema{
		Mutable:           []string{"tags", "securityGroupIds"},
		ForcesReplacement: []string{"ami", "instanceType", "subnetId", "keyName", "userData"},
	}
}

func (h *instanceHandler) Create(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var cfg instanceConfig
	if err := decode(attrs, &cfg); err != nil {
		return "", nil, err
	}
	client, err := h.p.ec2(ctx)
	if err != nil {
		return "", nil, err
	}

	input := &ec2.RunInstancesInput{
		ImageId:      aws.String(cfg.AMI),
		InstanceType: types.InstanceType(cfg.InstanceType),
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
	}
	if cfg.SubnetID != "" {
		input.SubnetId = aws.String(cfg.SubnetID)
	}
	if len(cfg.SecurityGroupIDs) > 0 {
		input.SecurityGroupIds = cfg.SecurityGroupIDs
	}
	if cfg.KeyName != "" {
		input.KeyName = aws.String(cfg.KeyName)
	}
	if cfg.UserData != "" {
		input.UserData = aws.String(cfg.UserData)
	}

	resp, err := client.RunInstances(ctx, input)
	if err != nil {
		return "", nil, classify(fmt.Errorf("failed to launch instance: %w", err))
	}
	if len(resp.Instances) == 0 {
		return "", nil, provider.Permanent(fmt.Errorf("RunInstances returned no instances"))
	}
	inst := resp.Instances[0]
	id := aws.ToString(inst.InstanceId)

	if err := applyTags(ctx, client, id, cfg.Tags); err != nil {
		return "", nil, err
	}

	// Wait until the instance leaves pending so dependents see a usable
	// private IP.
	waiter := ec2.NewInstanceRunningWaiter(client)
	describe := &ec2.DescribeInstancesInput{InstanceIds: []string{id}}
	if err := waiter.Wait(ctx, describe, 5*time.Minute); err != nil {
		return "", nil, provider.Transient(fmt.Errorf("waiting for instance %s to run: %w", id, err))
	}

	out, err := client.DescribeInstances(ctx, describe)
	if err != nil {
		return "", nil, classify(err)
	}
	running := out.Reservations[0].Instances[0]

	return id, map[string]any{
		"id":        id,
		"privateIp": aws.ToString(running.PrivateIpAddress),
		"publicIp":  aws.ToString(running.PublicIpAddress),
	}, nil
}

func (h *instanceHandler) Read(ctx context.Context, id string) (map[string]any, error) {
	client, err := h.p.ec2(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{id}})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Reservations) == 0 || len(resp.Reservations[0].Instances) == 0 {
		return nil, provider.NotFound(fmt.Errorf("instance %s does not exist", id))
	}
	inst := resp.Reservations[0].Instances[0]
	if inst.State != nil && inst.State.Name == types.InstanceStateNameTerminated {
		return nil, provider.NotFound(fmt.Errorf("instance %s is terminated", id))
	}

	var sgIDs []string
	for _, sg := range inst.SecurityGroups {
		sgIDs = append(sgIDs, aws.ToString(sg.GroupId))
	}
	return map[string]any{
		"ami":              aws.ToString(inst.ImageId),
		"instanceType":     string(inst.InstanceType),
		"subnetId":         aws.ToString(inst.SubnetId),
		"securityGroupIds": sgIDs,
		"keyName":          aws.ToString(inst.KeyName),
		"tags":             fromEC2Tags(inst.Tags),
	}, nil
}

func (h *instanceHandler) Update(ctx context.Context, id string, attrs map[string]any) (map[string]any, error) {
	var cfg instanceConfig
	if err := decode(attrs, &cfg); err != nil {
		return nil, err
	}
	client, err := h.p.ec2(ctx)
	if err != nil {
		return nil, err
	}

	if len(cfg.SecurityGroupIDs) > 0 {
		_, err := client.ModifyInstanceAttribute(ctx, &ec2.ModifyInstanceAttributeInput{
			InstanceId: aws.String(id),
			Groups:     cfg.SecurityGroupIDs,
		})
		if err != nil {
			return nil, classify(fmt.Errorf("failed to update instance security groups: %w", err))
		}
	}
	if err := applyTags(ctx, client, id, cfg.Tags); err != nil {
		return nil, err
	}

	resp, err := client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{id}})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Reservations) == 0 || len(resp.Reservations[0].Instances) == 0 {
		return nil, provider.NotFound(fmt.Errorf("instance %s does not exist", id))
	}
	inst := resp.Reservations[0].Instances[0]
	return map[string]any{
		"id":        id,
		"privateIp": aws.ToString(inst.PrivateIpAddress),
		"publicIp":  aws.ToString(inst.PublicIpAddress),
	}, nil
}

func (h *instanceHandler) Delete(ctx context.Context, id string) error {
	client, err := h.p.ec2(ctx)
	if err != nil {
		return err
	}
	if _, err := client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{id},
	}); err != nil {
		return classify(fmt.Errorf("failed to terminate instance: %w", err))
	}
	return nil
}
