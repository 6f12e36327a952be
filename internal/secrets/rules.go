package secrets

// DefaultRules covers the credentials most often pasted into source files.
func DefaultRules() []Rule {
	return []Rule{
		{ID: "aws-access-key-id", Pattern: `(?:A3T[A-Z0-9]|AKIA|ASIA|AGPA|AIDA|AROA)[A-Z0-9]{16}`},
		{ID: "aws-secret-access-key", Pattern: `(?i)aws_secret_access_key\s*[:=]\s*['"]?[A-Za-z0-9/+=]{40}['"]?`, Keywords: []string{"aws"}},
		{ID: "private-key", Pattern: `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?: BLOCK)?-----`},
		{ID: "github-token", Pattern: `(?:ghp|gho|ghu|ghs|ghr)_[A-Za-z0-9]{36}|github_pat_[A-Za-z0-9_]{22,}`},
		{ID: "gitlab-token", Pattern: `glpat-[A-Za-z0-9\-_]{20,}`},
		{ID: "slack-token", Pattern: `xox[abposr]-[A-Za-z0-9-]{10,}`},
		{ID: "anthropic-key", Pattern: `sk-ant-[A-Za-z0-9_\-]{20,}`},
		{ID: "openai-key", Pattern: `sk-(?:proj-)?[A-Za-z0-9]{20,}`},
		{ID: "jwt", Pattern: `eyJ[A-Za-z0-9_-]{8,}\.eyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}`},
		{ID: "generic-api-key", Pattern: `(?i)(?:api[_-]?key|apikey|access[_-]?token)\s*[:=]\s*['"]?[A-Za-z0-9_\-]{16,64}['"]?`, Keywords: []string{"key", "token"}},
		{ID: "generic-password", Pattern: `(?i)(?:password|passwd|secret)\s*[:=]\s*['"][^'"\s]{8,}['"]`, Keywords: []string{"pass", "secret"}},
		{ID: "connection-string", Pattern: `(?i)(?:postgres|postgresql|mysql|mongodb(?:\+srv)?|redis|amqp)://[^:\s/]+:[^@\s]+@[^\s'"]+`},
	}
}
