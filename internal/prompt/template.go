package prompt

const defaultTemplate = `You maintain a directory guide: a short markdown file describing what a
directory contains, how its code fits together and what a contributor or
agent must know before changing it. Keep it concise and factual. Edit the
guide file in place; do not touch any other file.

Repository: {{ default "(unknown)" .Repo }} | branch: {{ default "(detached)" .Branch }} | sha: {{ default "(none)" (trunc 12 .SHA) }}
Guide: {{ .GuidePath }}
Directory: {{ .Dir }}

DIFF (directory-scoped):
{{ if .Diff -}}
` + "```diff" + `
{{ .Diff | trimSuffix "\n" }}
` + "```" + `
{{- else -}}
(no code changes under this directory)
{{- end }}

CURRENT GUIDE:
{{ if trim .Guide -}}
` + "```markdown" + `
{{ .Guide | trimSuffix "\n" }}
` + "```" + `
{{- else -}}
(empty)
{{- end }}
{{- if .Children }}

CHILD GUIDE UPDATES:
{{- range .Children }}

### {{ .Path }}
` + "```diff" + `
{{ .Diff | trimSuffix "\n" }}
` + "```" + `
{{- end }}
{{- end }}

INSTRUCTIONS:
1. Update {{ .GuidePath }} so it reflects the changes above.
2. Describe intent and usage, not line-by-line changes.
{{- if .Children }}
3. Fold relevant child guide updates into this guide's summary of its subdirectories.
{{- end }}
If the guide is already accurate, leave the file untouched and reply with exactly NO-CHANGES.
`
