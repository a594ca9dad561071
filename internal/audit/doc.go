// Package audit provides the issue model and the engine that validates step
// outputs.
//
// # Overview
//
// A Check inspects one decoded output and returns Issues. An Engine runs a
// step's checks in order, concatenates their issues and stamps each with the
// round that raised it. Whether an attempt passes is decided separately by a
// PassFunc:
//   - DefaultPass: no critical issue
//   - WeightedThreshold: the weighted severity sum stays under a limit
//
// # Severities
//
// Severities are ordered low < medium < high < critical. Filter keeps the
// issues at or above a minimum and is what the forwarding layer uses to
// decide which defects reach a generation service.
//
// # Typed Checks
//
// Checks are usually written against the concrete output type:
//
//	check := audit.Func("hex-colors", func(p *SeedColors) []audit.Issue {
//	    ...
//	})
//
// The adapter downcasts with registry.As; a mismatch is returned as an error
// because it means the check was attached to the wrong step.
package audit
