// Package orchestrator runs a declared sequence of steps over a shared
// execution history.
//
// # Overview
//
// A Flow is built once from a registry, a generation collaborator and the
// step definitions, and can then be run any number of times. Each run seeds
// history position 0 with the run input, executes the steps strictly in
// declaration order and returns a Report.
//
//	seed → step 1 → step 2 → ... → step N → Report
//
// # Step Executor
//
// Every step moves through the same states:
//
//	Pending → Invoking → Decoding → Auditing → {Accepted | Retrying | Exhausted}
//
// Invoking builds the input over the full history and calls the collaborator
// (remote steps) or the local function. Decoding turns the raw result into a
// typed output through the registry. Auditing runs the step's checks and its
// pass predicate. A failed audit is retried while rounds remain, with the
// failed attempts visible to the collaborator as retry context.
//
// # Faults
//
// Invocation failures are recorded as attempts carrying one critical issue
// and retried like any other failed audit. Decode failures, input builder
// failures and configuration errors are returned as *FlowError and abort the
// run:
//
//	report, err := flow.Run(ctx, input)
//	if errors.Is(err, orchestrator.ErrDecodeFault) {
//	    // unregistered tool or broken decoder
//	}
//
// A step that exhausts its retries keeps its last attempt as final. The run
// halts after it only when the step sets StopOnFailure.
//
// # Observability
//
// Runs emit a toolflow.run span with one toolflow.step child per executed
// step, Prometheus counters under the toolflow namespace and structured logs
// carrying run.id, step.position and step.tool.
package orchestrator
