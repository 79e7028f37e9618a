package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/stackform-io/stackform/internal/provider"
)

type securityGroupConfig struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	VpcID       string              `json:"vpcId"`
	Ingress     []securityGroupRule `json:"ingress,omitempty"`
	Egress      []securityGroupRule `json:"egress,omitempty"`
	Tags        map[string]string   `json:"tags,omitempty"`
}

type securityGroupRule struct {
	FromPort   int      `json:"fromPort"`
	ToPort     int      `json:"toPort"`
	Protocol   string   `json:"protocol"`
	CidrBlocks []string `json:"cidrBlocks"`
}

type securityGroupHandler struct {
	p *Provider
}

func (h *securityGroupHandler) Schema() provider.Schema {
	return provider.Schema{
		Mutable:           []string{"tags", "ingress", "egress"},
		ForcesReplacement: []string{"name", "description", "vpcId"},
	}
}

func (h *securityGroupHandler) Create(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var cfg securityGroupConfig
	if err := decode(attrs, &cfg); err != nil {
		return "", nil, err
	}
	client, err := h.p.ec2(ctx)
	if err != nil {
		return "", nil, err
	}

	resp, err := client.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:   aws.String(cfg.Name),
		Description: aws.String(cfg.Description),
		VpcId:       aws.String(cfg.VpcID),
	})
	if err != nil {
		return "", nil, classify(fmt.Errorf("failed to create security group: %w", err))
	}
	id := aws.ToString(resp.GroupId)

	if err := h.authorizeRules(ctx, client, id, cfg); err != nil {
		return "", nil, err
	}
	if err := applyTags(ctx, client, id, cfg.Tags); err != nil {
		return "", nil, err
	}

	return id, map[string]any{"id": id, "name": cfg.Name, "vpcId": cfg.VpcID}, nil
}

func (h *securityGroupHandler) authorizeRules(ctx context.Context, client *ec2.Client, id string, cfg securityGroupConfig) error {
	if len(cfg.Ingress) > 0 {
		_, err := client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
			GroupId:       aws.String(id),
			IpPermissions: toIPPermissions(cfg.Ingress),
		})
		if err != nil {
			return classify(fmt.Errorf("failed to authorize ingress: %w", err))
		}
	}
	if len(cfg.Egress) > 0 {
		_, err := client.AuthorizeSecurityGroupEgress(ctx, &ec2.AuthorizeSecurityGroupEgressInput{
			GroupId:       aws.String(id),
			IpPermissions: toIPPermissions(cfg.Egress),
		})
		if err != nil {
			return classify(fmt.Errorf("failed to authorize egress: %w", err))
		}
	}
	return nil
}

func (h *securityGroupHandler) Read(ctx context.Context, id string) (map[string]any, error) {
	client, err := h.p.ec2(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{GroupIds: []string{id}})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.SecurityGroups) == 0 {
		return nil, provider.NotFound(fmt.Errorf("security group %s does not exist", id))
	}
	sg := resp.SecurityGroups[0]
	return map[string]any{
		"name":        aws.ToString(sg.GroupName),
		"description": aws.ToString(sg.Description),
		"vpcId":       aws.ToString(sg.VpcId),
		"ingress":     fromIPPermissions(sg.IpPermissions),
		"egress":      fromIPPermissions(sg.IpPermissionsEgress),
		"tags":        fromEC2Tags(sg.Tags),
	}, nil
}

func (h *securityGroupHandler) Update(ctx context.Context, id string, attrs map[string]any) (map[string]any, error) {
	var cfg securityGroupConfig
	if err := decode(attrs, &cfg); err != nil {
		return nil, err
	}
	client, err := h.p.ec2(ctx)
	if err != nil {
		return nil, err
	}

	// Rule sets reconcile by full rewrite: revoke everything currently on
	// the group, then authorize the declared set.
	resp, err := client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{GroupIds: []string{id}})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.SecurityGroups) > 0 {
		sg := resp.SecurityGroups[0]
		if len(sg.IpPermissions) > 0 {
			_, err := client.RevokeSecurityGroupIngress(ctx, &ec2.RevokeSecurityGroupIngressInput{
				GroupId:       aws.String(id),
				IpPermissions: sg.IpPermissions,
			})
			if err != nil {
				return nil, classify(err)
			}
		}
		if len(sg.IpPermissionsEgress) > 0 {
			_, err := client.RevokeSecurityGroupEgress(ctx, &ec2.RevokeSecurityGroupEgressInput{
				GroupId:       aws.String(id),
				IpPermissions: sg.IpPermissionsEgress,
			})
			if err != nil {
				return nil, classify(err)
			}
		}
	}
	if err := h.authorizeRules(ctx, client, id, cfg); err != nil {
		return nil, err
	}
	if err := applyTags(ctx, client, id, cfg.Tags); err != nil {
		return nil, err
	}
	return map[string]any{"id": id, "name": cfg.Name, "vpcId": cfg.VpcID}, nil
}

func (h *securityGroupHandler) Delete(ctx context.Context, id string) error {
	client, err := h.p.ec2(ctx)
	if err != nil {
		return err
	}
	if _, err := client.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{GroupId: aws.String(id)}); err != nil {
		return classify(fmt.Errorf("failed to delete security group: %w", err))
	}
	return nil
}

func toIPPermissions(rules []securityGroupRule) []types.IpPermission {
	perms := make([]types.IpPermission, 0, len(rules))
	for _, r := range rules {
		perm := types.IpPermission{
			FromPort:   aws.Int32(int32(r.FromPort)),
			ToPort:     aws.Int32(int32(r.ToPort)),
			IpProtocol: aws.String(r.Protocol),
		}
		for _, cidr := range r.CidrBlocks {
			perm.IpRanges = append(perm.IpRanges, types.IpRange{CidrIp: aws.String(cidr)})
		}
		perms = append(perms, perm)
	}
	return perms
}

func fromIPPermissions(perms []types.IpPermission) []any {
	var rules []any
	for _, p := range perms {
		var cidrs []string
		for _, r := range p.IpRanges {
			cidrs = append(cidrs, aws.ToString(r.CidrIp))
		}
		rules = append(rules, map[string]any{
			"fromPort":   int(aws.ToInt32(p.FromPort)),
			"toPort":     int(aws.ToInt32(p.ToPort)),
			"protocol":   aws.ToString(p.IpProtocol),
			"cidrBlocks": cidrs,
		})
	}
	return rules
}
