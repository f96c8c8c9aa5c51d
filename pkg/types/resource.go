package types

import "fmt"

// ProviderType identifies a supported cloud provider
type ProviderType string

const (
	ProviderAWS   ProviderType = "aws"
	ProviderAzure ProviderType = "azure"
	ProviderGCP   ProviderType = "gcp"
)

// ResourceType classifies a cloud resource
type ResourceType string

const (
	ResourceCompute      ResourceType = "compute"
	ResourceStorage      ResourceType = "storage"
	ResourceDatabase     ResourceType = "database"
	ResourceNetwork      ResourceType = "network"
	ResourceContainer    ResourceType = "container"
	ResourceServerless   ResourceType = "serverless"
	ResourceLoadBalancer ResourceType = "load_balancer"
	ResourceDNS          ResourceType = "dns"
	ResourceCDN          ResourceType = "cdn"
	ResourceQueue        ResourceType = "queue"
	ResourceCache        ResourceType = "cache"
)

// ResourceSpec describes a single cloud resource to deploy
type ResourceSpec struct {
	ResourceType ResourceType      `json:"resource_type" yaml:"resource_type"`
	Provider     ProviderType      `json:"provider" yaml:"provider"`
	Region       string            `json:"region" yaml:"region"`
	Name         string            `json:"name" yaml:"name"`
	Properties   map[string]any    `json:"properties,omitempty" yaml:"properties,omitempty"`
	Tags         map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Dependencies []string          `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// ResourceIdentifier returns the canonical cross-plan identifier for
// this resource. Intent dependencies reference resources by this
// string, and drift reports key expected state by it.
func (r ResourceSpec) ResourceIdentifier() string {
	return fmt.Sprintf("%s/%s/%s/%s", r.Provider, r.Region, r.ResourceType, r.Name)
}

// AsMap flattens the spec into the map form drift comparison works on.
func (r ResourceSpec) AsMap() map[string]any {
	m := map[string]any{
		"resource_type": string(r.ResourceType),
		"provider":      string(r.Provider),
		"region":        r.Region,
		"name":          r.Name,
	}
	if len(r.Properties) > 0 {
		m["properties"] = r.Properties
	}
	if len(r.Tags) > 0 {
		tags := make(map[string]any, len(r.Tags))
		for k, v := range r.Tags {
			tags[k] = v
		}
		m["tags"] = tags
	}
	return m
}

// DeploymentStrategy selects how a deployment is rolled out
type DeploymentStrategy string

const (
	StrategyRolling   DeploymentStrategy = "rolling"
	StrategyBlueGreen DeploymentStrategy = "blue_green"
	StrategyCanary    DeploymentStrategy = "canary"
	StrategyRecreate  DeploymentStrategy = "recreate"
)

// DeploymentIntent is the caller's declarative request. It is immutable
// once attached to a deployment.
type DeploymentIntent struct {
	Description       string             `json:"description" yaml:"description"`
	TargetProviders   []ProviderType     `json:"target_providers" yaml:"target_providers"`
	TargetRegions     []string           `json:"target_regions,omitempty" yaml:"target_regions,omitempty"`
	Resources         []ResourceSpec     `json:"resources,omitempty" yaml:"resources,omitempty"`
	Strategy          DeploymentStrategy `json:"strategy" yaml:"strategy"`
	AutoApprove       bool               `json:"auto_approve" yaml:"auto_approve"`
	RollbackOnFailure bool               `json:"rollback_on_failure" yaml:"rollback_on_failure"`
	Environment       string             `json:"environment" yaml:"environment"`
	Parameters        map[string]any     `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}
