package features

// Fixed vocabularies backing keyword, topic, and technology extraction.
// The stop-word list is bilingual (English + Spanish) to match the logged
// sessions the engine ingests.

var stopWords = map[string]struct{}{
	// English
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "had": {}, "her": {}, "was": {},
	"one": {}, "our": {}, "out": {}, "has": {}, "have": {}, "been": {},
	"this": {}, "that": {}, "these": {}, "those": {}, "with": {},
	"from": {}, "they": {}, "will": {}, "would": {}, "could": {},
	"should": {}, "what": {}, "which": {}, "when": {}, "where": {},
	"who": {}, "why": {}, "how": {}, "does": {}, "did": {}, "just": {},
	"like": {}, "into": {}, "then": {}, "than": {}, "there": {},
	"here": {}, "about": {}, "some": {}, "your": {}, "their": {},
	// Spanish
	"los": {}, "las": {}, "una": {}, "uno": {}, "unos": {}, "unas": {},
	"que": {}, "por": {}, "para": {}, "con": {}, "del": {}, "como": {},
	"pero": {}, "mas": {}, "más": {}, "este": {}, "esta": {}, "esto": {},
	"ese": {}, "esa": {}, "eso": {}, "son": {}, "está": {}, "están": {},
	"hay": {}, "muy": {}, "también": {}, "cuando": {}, "donde": {},
	"porque": {}, "sobre": {}, "entre": {}, "hasta": {}, "desde": {},
}

// technologies is the static vocabulary scanned for technology mentions.
var technologies = []string{
	"docker", "kubernetes", "terraform", "ansible", "nginx", "apache",
	"postgres", "postgresql", "mysql", "sqlite", "mongodb", "redis",
	"kafka", "rabbitmq", "nats", "grpc", "graphql", "rest",
	"react", "vue", "angular", "svelte", "nextjs", "node", "deno",
	"python", "golang", "rust", "java", "kotlin", "ruby", "php",
	"typescript", "javascript", "django", "flask", "rails", "spring",
	"aws", "gcp", "azure", "lambda", "s3", "dynamodb", "firebase",
	"git", "github", "gitlab", "jenkins", "prometheus", "grafana",
	"elasticsearch", "webpack", "vite", "linux", "macos", "windows",
}

// topicEntry maps a topic name to the keywords that signal it. Table order
// is the tie-break order for equal scores, so keep it stable.
type topicEntry struct {
	name     string
	keywords []string
}

var topicTable = []topicEntry{
	{"debugging", []string{
		"error", "bug", "fix", "crash", "exception", "fail", "failed",
		"debug", "traceback", "panic", "stacktrace", "broken",
	}},
	{"deployment", []string{
		"deploy", "deployment", "release", "docker", "kubernetes",
		"pipeline", "build", "rollback", "container", "helm",
	}},
	{"database", []string{
		"database", "sql", "query", "migration", "schema", "index",
		"postgres", "mysql", "mongodb", "transaction", "table",
	}},
	{"authentication", []string{
		"auth", "authentication", "login", "token", "password",
		"oauth", "jwt", "permission", "credential", "session",
	}},
	{"performance", []string{
		"slow", "performance", "optimize", "latency", "memory",
		"cpu", "cache", "profiling", "bottleneck", "throughput",
	}},
	{"configuration", []string{
		"config", "configuration", "setting", "environment",
		"variable", "setup", "install", "yaml", "flag",
	}},
	{"testing", []string{
		"test", "testing", "spec", "coverage", "mock", "assert",
		"unit", "integration", "fixture", "regression",
	}},
	{"api", []string{
		"api", "endpoint", "rest", "request", "response", "http",
		"graphql", "grpc", "webhook", "payload",
	}},
	{"frontend", []string{
		"ui", "component", "render", "css", "html", "react",
		"vue", "layout", "responsive", "browser",
	}},
	{"infrastructure", []string{
		"server", "cloud", "aws", "terraform", "network", "dns",
		"cluster", "scaling", "loadbalancer", "provisioning",
	}},
}

// fileExtensions bounds the file-path entity pattern.
const fileExtensions = `go|py|js|jsx|ts|tsx|java|kt|rb|rs|c|cc|cpp|h|hpp|cs|php|sh|sql|css|html|json|yaml|yml|toml|ini|md|txt|proto|tf`
