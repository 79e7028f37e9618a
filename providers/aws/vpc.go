package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/stackform-io/stackform/internal/provider"
)

type vpcConfig struct {
	CidrBlock          string            `json:"cidrBlock"`
	EnableDnsSupport   *bool             `json:"enableDnsSupport,omitempty"`
	EnableDnsHostnames *bool             `json:"enableDnsHostnames,omitempty"`
	Tags               map[string]string `json:"tags,omitempty"`
}

type vpcHandler struct {
	p *Provider
}

func (h *vpcHandler) Schema() provider.Schema {
	return provider.Schema{
		Mutable:           []string{"tags", "enableDnsSupport", "enableDnsHostnames"},
		ForcesReplacement: []string{"cidrBlock"},
	}
}

func (h *vpcHandler) Create(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var cfg vpcConfig
	if err := decode(attrs, &cfg); err != nil {
		return "", nil, err
	}
	client, err := h.p.ec2(ctx)
	if err != nil {
		return "", nil, err
	}

	resp, err := client.CreateVpc(ctx, &ec2.CreateVpcInput{
		CidrBlock: aws.String(cfg.CidrBlock),
	})
	if err != nil {
		return "", nil, classify(fmt.Errorf("failed to create VPC: %w", err))
	}
	id := aws.ToString(resp.Vpc.VpcId)

	if err := h.configure(ctx, client, id, cfg); err != nil {
		return "", nil, err
	}

	return id, map[string]any{
		"id":        id,
		"arn":       vpcArn(h.p.region, id),
		"cidrBlock": aws.ToString(resp.Vpc.CidrBlock),
	}, nil
}

func (h *vpcHandler) Read(ctx context.Context, id string) (map[string]any, error) {
	client, err := h.p.ec2(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := client.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{VpcIds: []string{id}})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Vpcs) == 0 {
		return nil, provider.NotFound(fmt.Errorf("VPC %s does not exist", id))
	}
	vpc := resp.Vpcs[0]
	return map[string]any{
		"cidrBlock": aws.ToString(vpc.CidrBlock),
		"tags":      fromEC2Tags(vpc.Tags),
	}, nil
}

func (h *vpcHandler) Update(ctx context.Context, id string, attrs map[string]any) (map[string]any, error) {
	var cfg vpcConfig
	if err := decode(attrs, &cfg); err != nil {
		return nil, err
	}
	client, err := h.p.ec2(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.configure(ctx, client, id, cfg); err != nil {
		return nil, err
	}
	return map[string]any{
		"id":        id,
		"arn":       vpcArn(h.p.region, id),
		"cidrBlock": cfg.CidrBlock,
	}, nil
}

func (h *vpcHandler) Delete(ctx context.Context, id string) error {
	client, err := h.p.ec2(ctx)
	if err != nil {
		return err
	}
	if _, err := client.DeleteVpc(ctx, &ec2.DeleteVpcInput{VpcId: aws.String(id)}); err != nil {
		return classify(fmt.Errorf("failed to delete VPC: %w", err))
	}
	return nil
}

func (h *vpcHandler) configure(ctx context.Context, client *ec2.Client, id string, cfg vpcConfig) error {
	if cfg.EnableDnsSupport != nil {
		_, err := client.ModifyVpcAttribute(ctx, &ec2.ModifyVpcAttributeInput{
			VpcId:            aws.String(id),
			EnableDnsSupport: &types.AttributeBooleanValue{Value: cfg.EnableDnsSupport},
		})
		if err != nil {
			return classify(err)
		}
	}
	if cfg.EnableDnsHostnames != nil {
		_, err := client.ModifyVpcAttribute(ctx, &ec2.ModifyVpcAttributeInput{
			VpcId:              aws.String(id),
			EnableDnsHostnames: &types.AttributeBooleanValue{Value: cfg.EnableDnsHostnames},
		})
		if err != nil {
			return classify(err)
		}
	}
	return applyTags(ctx, client, id, cfg.Tags)
}

type subnetConfig struct {
	VpcID               string            `json:"vpcId"`
	CidrBlock           string            `json:"cidrBlock"`
	AvailabilityZone    string            `json:"availabilityZone,omitempty"`
	MapPublicIpOnLaunch bool              `json:"mapPublicIpOnLaunch,omitempty"`
	Tags                map[string]string `json:"tags,omitempty"`
}

type subnetHandler struct {
	p *Provider
}

func (h *subnetHandler) Schema() provider.Schema {
	return provider.Schema{
		Mutable:           []string{"tags", "mapPublicIpOnLaunch"},
		ForcesReplacement: []string{"vpcId", "cidrBlock", "availabilityZone"},
	}
}

func (h *subnetHandler) Create(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var cfg subnetConfig
	if err := decode(attrs, &cfg); err != nil {
		return "", nil, err
	}
	client, err := h.p.ec2(ctx)
	if err != nil {
		return "", nil, err
	}

	input := &ec2.CreateSubnetInput{
		VpcId:     aws.String(cfg.VpcID),
		CidrBlock: aws.String(cfg.CidrBlock),
	}
	if cfg.AvailabilityZone != "" {
		input.AvailabilityZone = aws.String(cfg.AvailabilityZone)
	}

	resp, err := client.CreateSubnet(ctx, input)
	if err != nil {
		return "", nil, classify(fmt.Errorf("failed to create subnet: %w", err))
	}
	id := aws.ToString(resp.Subnet.SubnetId)

	if cfg.MapPublicIpOnLaunch {
		_, err := client.ModifySubnetAttribute(ctx, &ec2.ModifySubnetAttributeInput{
			SubnetId:            aws.String(id),
			MapPublicIpOnLaunch: &types.AttributeBooleanValue{Value: aws.Bool(true)},
		})
		if err != nil {
			return "", nil, classify(err)
		}
	}
	if err := applyTags(ctx, client, id, cfg.Tags); err != nil {
		return "", nil, err
	}

	return id, map[string]any{
		"id":               id,
		"vpcId":            aws.ToString(resp.Subnet.VpcId),
		"availabilityZone": aws.ToString(resp.Subnet.AvailabilityZone),
	}, nil
}

func (h *subnetHandler) Read(ctx context.Context, id string) (map[string]any, error) {
	client, err := h.p.ec2(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := client.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{SubnetIds: []string{id}})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Subnets) == 0 {
		return nil, provider.NotFound(fmt.Errorf("subnet %s does not exist", id))
	}
	sn := resp.Subnets[0]
	return map[string]any{
		"vpcId":               aws.ToString(sn.VpcId),
		"cidrBlock":           aws.ToString(sn.CidrBlock),
		"availabilityZone":    aws.ToString(sn.AvailabilityZone),
		"mapPublicIpOnLaunch": aws.ToBool(sn.MapPublicIpOnLaunch),
		"tags":                fromEC2Tags(sn.Tags),
	}, nil
}

func (h *subnetHandler) Update(ctx context.Context, id string, attrs map[string]any) (map[string]any, error) {
	var cfg subnetConfig
	if err := decode(attrs, &cfg); err != nil {
		return nil, err
	}
	client, err := h.p.ec2(ctx)
	if err != nil {
		return nil, err
	}
	_, err = client.ModifySubnetAttribute(ctx, &ec2.ModifySubnetAttributeInput{
		SubnetId:            aws.String(id),
		MapPublicIpOnLaunch: &types.AttributeBooleanValue{Value: aws.Bool(cfg.MapPublicIpOnLaunch)},
	})
	if err != nil {
		return nil, classify(err)
	}
	if err := applyTags(ctx, client, id, cfg.Tags); err != nil {
		return nil, err
	}
	return map[string]any{"id": id, "vpcId": cfg.VpcID}, nil
}

func (h *subnetHandler) Delete(ctx context.Context, id string) error {
	client, err := h.p.ec2(ctx)
	if err != nil {
		return err
	}
	if _, err := client.DeleteSubnet(ctx, &ec2.DeleteSubnetInput{SubnetId: aws.String(id)}); err != nil {
		return classify(fmt.Errorf("failed to delete subnet: %w", err))
	}
	return nil
}

type internetGatewayConfig struct {
	VpcID string            `json:"vpcId"`
	Tags  map[string]string `json:"tags,omitempty"`
}

type internetGatewayHandler struct {
	p *Provider
}

func (h *internetGatewayHandler) Schema() provider.Schema {
	return provider.Schema{
		Mutable:           []string{"tags"},
		ForcesReplacement: []string{"vpcId"},
	}
}

func (h *internetGatewayHandler) Create(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var cfg internetGatewayConfig
	if err := decode(attrs, &cfg); err != nil {
		return "", nil, err
	}
	client, err := h.p.ec2(ctx)
	if err != nil {
		return "", nil, err
	}

	resp, err := client.CreateInternetGateway(ctx, &ec2.CreateInternetGatewayInput{})
	if err != nil {
		return "", nil, classify(fmt.Errorf("failed to create internet gateway: %w", err))
	}
	id := aws.ToString(resp.InternetGateway.InternetGatewayId)

	if cfg.VpcID != "" {
		_, err := client.AttachInternetGateway(ctx, &ec2.AttachInternetGatewayInput{
			InternetGatewayId: aws.String(id),
			VpcId:             aws.String(cfg.VpcID),
		})
		if err != nil {
			return "", nil, classify(fmt.Errorf("failed to attach internet gateway: %w", err))
		}
	}
	if err := applyTags(ctx, client, id, cfg.Tags); err != nil {
		return "", nil, err
	}

	return id, map[string]any{"id": id, "vpcId": cfg.VpcID}, nil
}

func (h *internetGatewayHandler) Read(ctx context.Context, id string) (map[string]any, error) {
	client, err := h.p.ec2(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := client.DescribeInternetGateways(ctx, &ec2.DescribeInternetGatewaysInput{
		InternetGatewayIds: []string{id},
	})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.InternetGateways) == 0 {
		return nil, provider.NotFound(fmt.Errorf("internet gateway %s does not exist", id))
	}
	igw := resp.InternetGateways[0]
	observed := map[string]any{"tags": fromEC2Tags(igw.Tags)}
	if len(igw.Attachments) > 0 {
		observed["vpcId"] = aws.ToString(igw.Attachments[0].VpcId)
	}
	return observed, nil
}

func (h *internetGatewayHandler) Update(ctx context.Context, id string, attrs map[string]any) (map[string]any, error) {
	var cfg internetGatewayConfig
	if err := decode(attrs, &cfg); err != nil {
		return nil, err
	}
	client, err := h.p.ec2(ctx)
	if err != nil {
		return nil, err
	}
	if err := applyTags(ctx, client, id, cfg.Tags); err != nil {
		return nil, err
	}
	return map[string]any{"id": id, "vpcId": cfg.VpcID}, nil
}

func (h *internetGatewayHandler) Delete(ctx context.Context, id string) error {
	client, err := h.p.ec2(ctx)
	if err != nil {
		return err
	}

	// Detach from whatever VPC it is attached to before deletion.
	resp, err := client.DescribeInternetGateways(ctx, &ec2.DescribeInternetGatewaysInput{
		InternetGatewayIds: []string{id},
	})
	if err != nil {
		return classify(err)
	}
	if len(resp.InternetGateways) > 0 {
		for _, att := range resp.InternetGateways[0].Attachments {
			_, err := client.DetachInternetGateway(ctx, &ec2.DetachInternetGatewayInput{
				InternetGatewayId: aws.String(id),
				VpcId:             att.VpcId,
			})
			if err != nil {
				return classify(fmt.Errorf("failed to detach internet gateway: %w", err))
			}
		}
	}

	if _, err := client.DeleteInternetGateway(ctx, &ec2.DeleteInternetGatewayInput{
		InternetGatewayId: aws.String(id),
	}); err != nil {
		return classify(fmt.Errorf("failed to delete internet gateway: %w", err))
	}
	return nil
}

type routeTableConfig struct {
	VpcID  string            `json:"vpcId"`
	Routes []routeConfig     `json:"routes,omitempty"`
	Tags   map[string]string `json:"tags,omitempty"`
}

type routeConfig struct {
	DestinationCidrBlock string `json:"destinationCidrBlock"`
	GatewayID            string `json:"gatewayId,omitempty"`
}

type routeTableHandler struct {
	p *Provider
}

func (h *routeTableHandler) Schema() provider.Schema {
	return provider.Schema{
		Mutable:           []string{"tags", "routes"},
		ForcesReplacement: []string{"vpcId"},
	}
}

func (h *routeTableHandler) Create(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var cfg routeTableConfig
	if err := decode(attrs, &cfg); err != nil {
		return "", nil, err
	}
	client, err := h.p.ec2(ctx)
	if err != nil {
		return "", nil, err
	}

	resp, err := client.CreateRouteTable(ctx, &ec2.CreateRouteTableInput{
		VpcId: aws.String(cfg.VpcID),
	})
	if err != nil {
		return "", nil, classify(fmt.Errorf("failed to create route table: %w", err))
	}
	id := aws.ToString(resp.RouteTable.RouteTableId)

	for _, r := range cfg.Routes {
		if err := h.createRoute(ctx, client, id, r); err != nil {
			return "", nil, err
		}
	}
	if err := applyTags(ctx, client, id, cfg.Tags); err != nil {
		return "", nil, err
	}

	return id, map[string]any{"id": id, "vpcId": cfg.VpcID}, nil
}

func (h *routeTableHandler) createRoute(ctx context.Context, client *ec2.Client, id string, r routeConfig) error {
	input := &ec2.CreateRouteInput{
		RouteTableId:         aws.String(id),
		DestinationCidrBlock: aws.String(r.DestinationCidrBlock),
	}
	if r.GatewayID != "" {
		input.GatewayId = aws.String(r.GatewayID)
	}
	if _, err := client.CreateRoute(ctx, input); err != nil {
		return classify(fmt.Errorf("failed to create route to %s: %w", r.DestinationCidrBlock, err))
	}
	return nil
}

func (h *routeTableHandler) Read(ctx context.Context, id string) (map[string]any, error) {
	client, err := h.p.ec2(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := client.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{
		RouteTableIds: []string{id},
	})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.RouteTables) == 0 {
		return nil, provider.NotFound(fmt.Errorf("route table %s does not exist", id))
	}
	rt := resp.RouteTables[0]

	var routes []any
	for _, r := range rt.Routes {
		// The local route is implicit and never declared.
		if aws.ToString(r.GatewayId) == "local" {
			continue
		}
		routes = append(routes, map[string]any{
			"destinationCidrBlock": aws.ToString(r.DestinationCidrBlock),
			"gatewayId":            aws.ToString(r.GatewayId),
		})
	}
	return map[string]any{
		"vpcId":  aws.ToString(rt.VpcId),
		"routes": routes,
		"tags":   fromEC2Tags(rt.Tags),
	}, nil
}

func (h *routeTableHandler) Update(ctx context.Context, id string, attrs map[string]any) (map[string]any, error) {
	var cfg routeTableConfig
	if err := decode(attrs, &cfg); err != nil {
		return nil, err
	}
	client, err := h.p.ec2(ctx)
	if err != nil {
		return nil, err
	}

	// Routes reconcile by full rewrite: drop every non-local route, then
	// recreate from the declaration.
	resp, err := client.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{RouteTableIds: []string{id}})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.RouteTables) > 0 {
		for _, r := range resp.RouteTables[0].Routes {
			if aws.ToString(r.GatewayId) == "local" || r.DestinationCidrBlock == nil {
				continue
			}
			_, err := client.DeleteRoute(ctx, &ec2.DeleteRouteInput{
				RouteTableId:         aws.String(id),
				DestinationCidrBlock: r.DestinationCidrBlock,
			})
			if err != nil {
				return nil, classify(err)
			}
		}
	}
	for _, r := range cfg.Routes {
		if err := h.createRoute(ctx, client, id, r); err != nil {
			return nil, err
		}
	}
	if err := applyTags(ctx, client, id, cfg.Tags); err != nil {
		return nil, err
	}
	return map[string]any{"id": id, "vpcId": cfg.VpcID}, nil
}

func (h *routeTableHandler) Delete(ctx context.Context, id string) error {
	client, err := h.p.ec2(ctx)
	if err != nil {
		return err
	}
	if _, err := client.DeleteRouteTable(ctx, &ec2.DeleteRouteTableInput{
		RouteTableId: aws.String(id),
	}); err != nil {
		return classify(fmt.Errorf("failed to delete route table: %w", err))
	}
	return nil
}

func applyTags(ctx context.Context, client *ec2.Client, id string, tags map[string]string) error {
	if len(tags) == 0 {
		return nil
	}
	var ec2Tags []types.Tag
	for k, v := range tags {
		ec2Tags = append(ec2Tags, types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	if _, err := client.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{id},
		Tags:      ec2Tags,
	}); err != nil {
		return classify(fmt.Errorf("failed to tag %s: %w", id, err))
	}
	return nil
}

func fromEC2Tags(tags []types.Tag) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	out := make(map[string]string, len(tags))
	for _, t := range tags {
		out[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return out
}

func vpcArn(region, id string) string {
	return fmt.Sprintf("arn:aws:ec2:%s::vpc/%s", region, id)
}
