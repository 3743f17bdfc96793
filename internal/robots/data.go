package robots

import (
	"net/url"
	"time"
)

// DecisionReason explains why a Decide call landed where it did, for
// logging/debugging. It must never be used to drive control flow beyond
// the Allowed field itself.
type DecisionReason string

const (
	AllowedByRobots     DecisionReason = "allowed_by_robots"
	DisallowedByRobots  DecisionReason = "disallowed_by_robots"
	UserAgentNotMatched DecisionReason = "user_agent_not_matched"
	EmptyRuleSet        DecisionReason = "empty_rule_set"
	NoMatchingRules     DecisionReason = "no_matching_rules"
)

// Decision is the outcome of checking one URL against a host's
// robots.txt for the configured user agent.
type Decision struct {
	Url url.URL

	Allowed bool

	// Reason explains the decision (for logging/debugging).
	Reason DecisionReason

	// CrawlDelay is the host's requested delay between requests, zero if
	// robots.txt specified none.
	CrawlDelay time.Duration
}
