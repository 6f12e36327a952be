// Package secrets redacts credentials from diff text before it reaches the
// update agent, the run store or the logs.
//
// Two engines are available. The regex engine runs a small built-in rule set
// and needs nothing else. The gitleaks engine uses the gitleaks default rule
// pack. Both honor an allowlist file.
package secrets
