/*
Package terraform defines the executor port workers drive to realize
plan steps, and a simulated implementation for development and tests.

The action ordering a worker uses is:

	GenerateConfig -> Init -> Plan -> (Apply | Destroy)

GenerateConfig renders real HCL through hclwrite: a terraform block
pinning the provider (hashicorp/aws ~> 5.0, hashicorp/azurerm ~> 3.0,
hashicorp/google ~> 5.0) and one resource block whose terraform type
comes from the provider and resource-type mapping table
(aws_instance, azurerm_virtual_network, google_sql_database_instance,
and so on; unmapped pairs fall back to "{provider}_{type}").

The Simulator tracks applied resources in an in-memory state map keyed
by "sim-{workdir base}". It sleeps briefly on each call so timeout and
cancellation paths behave as they would against a real binary. A driver
for the actual terraform CLI satisfies the same interface.

# Idempotency

Workers derive one working directory per task idempotency key, so a
retried step attempt re-applies the same directory. The simulator's
apply is an upsert on that key, which makes re-runs safe; a real driver
gets the same property from terraform's own state handling.

# See Also

  - pkg/worker for the runner that drives this port
  - pkg/drift for the detector that reads ShowState
*/
package terraform
