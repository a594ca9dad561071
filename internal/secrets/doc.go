// Package secrets detects and redacts secrets in text and structured payloads
// before they leave the process for the generation service.
//
// Findings never carry the matched value; only rule ids, severities and
// offsets are reported.
package secrets
