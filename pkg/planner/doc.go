/*
Package planner translates a deployment intent into an execution plan.

The planner is rule-based and CPU-only. Its output on the same intent
is deterministic up to id generation: step names, ordering, and
dependency sets never vary across runs.

# Algorithm

 1. Explicit resources are stable-sorted by resource-type priority,
    network(1) < dns(2) < storage(3) < database(4) < cache(5) <
    queue(6) < compute(7) < container(8) < serverless(9) <
    load_balancer(10) < cdn(11). Unknown types sort last.
 2. With no resources, a default network plus compute pair is
    synthesized per target provider in the first target region
    (us-east-1 when none is given); the compute step depends on the
    network step.
 3. Each resource becomes one create step carrying a per-type duration
    estimate and a fresh idempotency key.
 4. Resource-identifier dependencies ("provider/region/type/name") are
    rewritten to step-id dependencies; references to resources no step
    owns are skipped and surface in ValidatePlan instead.
 5. The total duration estimate is the per-step sum. Risk is high for
    production, medium for multi-provider or more than ten steps,
    low otherwise.

# Usage

	p := planner.New()
	plan, err := p.GeneratePlan(intent)
	if err != nil {
		return err
	}

	ok, problems := p.ValidatePlan(plan)
	costs := p.EstimateCost(plan)

# See Also

  - pkg/types for ExecutionPlan and wave partitioning
  - pkg/manager which invokes the planner under the planning lock
*/
package planner
