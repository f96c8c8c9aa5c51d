package terraform

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"

	"github.com/caravel-io/caravel/pkg/types"
)

// providerConfig pins the terraform provider source and version
type providerConfig struct {
	Source  string
	Version string
}

var providerConfigs = map[types.ProviderType]providerConfig{
	types.ProviderAWS:   {Source: "hashicorp/aws", Version: "~> 5.0"},
	types.ProviderAzure: {Source: "hashicorp/azurerm", Version: "~> 3.0"},
	types.ProviderGCP:   {Source: "hashicorp/google", Version: "~> 5.0"},
}

type providerResource struct {
	Provider     types.ProviderType
	ResourceType types.ResourceType
}

// resourceTerraformMap maps provider and resource type to the concrete
// terraform resource. Pairs not listed fall back to
// "{provider}_{resource_type}".
var resourceTerraformMap = map[providerResource]string{
	{types.ProviderAWS, types.ResourceCompute}:      "aws_instance",
	{types.ProviderAWS, types.ResourceStorage}:      "aws_s3_bucket",
	{types.ProviderAWS, types.ResourceDatabase}:     "aws_db_instance",
	{types.ProviderAWS, types.ResourceNetwork}:      "aws_vpc",
	{types.ProviderAWS, types.ResourceContainer}:    "aws_ecs_cluster",
	{types.ProviderAWS, types.ResourceServerless}:   "aws_lambda_function",
	{types.ProviderAWS, types.ResourceLoadBalancer}: "aws_lb",
	{types.ProviderAWS, types.ResourceCache}:        "aws_elasticache_cluster",

	{types.ProviderAzure, types.ResourceCompute}:   "azurerm_virtual_machine",
	{types.ProviderAzure, types.ResourceStorage}:   "azurerm_storage_account",
	{types.ProviderAzure, types.ResourceDatabase}:  "azurerm_postgresql_server",
	{types.ProviderAzure, types.ResourceNetwork}:   "azurerm_virtual_network",
	{types.ProviderAzure, types.ResourceContainer}: "azurerm_kubernetes_cluster",

	{types.ProviderGCP, types.ResourceCompute}:   "google_compute_instance",
	{types.ProviderGCP, types.ResourceStorage}:   "google_storage_bucket",
	{types.ProviderGCP, types.ResourceDatabase}:  "google_sql_database_instance",
	{types.ProviderGCP, types.ResourceNetwork}:   "google_compute_network",
	{types.ProviderGCP, types.ResourceContainer}: "google_container_cluster",
}

// TerraformResource returns the terraform resource name for a
// provider and resource type.
func TerraformResource(provider types.ProviderType, resourceType types.ResourceType) string {
	if name, ok := resourceTerraformMap[providerResource{provider, resourceType}]; ok {
		return name
	}
	return fmt.Sprintf("%s_%s", provider, resourceType)
}

// generateConfig renders the HCL configuration for one resource and
// writes it to main.tf in the working directory.
func generateConfig(spec types.ResourceSpec, workingDir string) (string, error) {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	pc, ok := providerConfigs[spec.Provider]
	if !ok {
		pc = providerConfig{
			Source:  "hashicorp/" + string(spec.Provider),
			Version: "~> 1.0",
		}
	}

	tfBlock := body.AppendNewBlock("terraform", nil)
	required := tfBlock.Body().AppendNewBlock("required_providers", nil)
	required.Body().SetAttributeValue(string(spec.Provider), cty.ObjectVal(map[string]cty.Value{
		"source":  cty.StringVal(pc.Source),
		"version": cty.StringVal(pc.Version),
	}))
	body.AppendNewline()

	resource := body.AppendNewBlock("resource", []string{
		TerraformResource(spec.Provider, spec.ResourceType),
		spec.Name,
	})
	rb := resource.Body()
	rb.SetAttributeValue("region", cty.StringVal(spec.Region))

	for _, key := range sortedKeys(spec.Properties) {
		rb.SetAttributeValue(key, ctyValue(spec.Properties[key]))
	}

	if len(spec.Tags) > 0 {
		tags := make(map[string]cty.Value, len(spec.Tags))
		for k, v := range spec.Tags {
			tags[k] = cty.StringVal(v)
		}
		rb.SetAttributeValue("tags", cty.MapVal(tags))
	}

	hcl := string(f.Bytes())

	if err := os.MkdirAll(workingDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create working dir: %w", err)
	}
	configPath := filepath.Join(workingDir, "main.tf")
	if err := os.WriteFile(configPath, []byte(hcl), 0644); err != nil {
		return "", fmt.Errorf("failed to write config: %w", err)
	}

	return hcl, nil
}

// ctyValue converts a free-form property value. Structured values that
// have no direct cty shape travel as their JSON encoding.
func ctyValue(v any) cty.Value {
	switch val := v.(type) {
	case string:
		return cty.StringVal(val)
	case bool:
		return cty.BoolVal(val)
	case int:
		return cty.NumberIntVal(int64(val))
	case int64:
		return cty.NumberIntVal(val)
	case float64:
		return cty.NumberFloatVal(val)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return cty.StringVal(fmt.Sprintf("%v", v))
		}
		return cty.StringVal(string(encoded))
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
