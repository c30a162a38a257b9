// Package gate implements the security pre-filter deciding whether an inbound
// message is worth spending generation resources on. Evaluation is a pure
// function over static rule tables; the scheduler owns all side effects.
package gate

import (
	"fmt"
	"strings"

	"support_server/core/domain"
)

// Action is the gate decision.
type Action string

const (
	ActionProcess Action = "PROCESS"
	ActionIgnore  Action = "IGNORE"
)

// ReasonCode explains a verdict for audit logging.
type ReasonCode string

const (
	ReasonWhitelisted     ReasonCode = "WHITELISTED"
	ReasonBlockedDomain   ReasonCode = "BLOCKED_DOMAIN"
	ReasonSystemSender    ReasonCode = "SYSTEM_SENDER"
	ReasonMarketingSpam   ReasonCode = "MARKETING_SPAM"
	ReasonMalformedSender ReasonCode = "MALFORMED_SENDER"
	ReasonDefaultAllow    ReasonCode = "DEFAULT_ALLOW"
)

// Verdict is the gate output. Derived purely from the message; no side effects.
type Verdict struct {
	Action      Action     `json:"action"`
	Reason      ReasonCode `json:"reason"`
	MatchedRule string     `json:"matched_rule,omitempty"`
}

// Rules holds the static tables the gate evaluates, in priority order.
// Matching is case-insensitive substring/prefix matching on the lowercased
// sender, subject, and body.
type Rules struct {
	Whitelist        []string // partner domains: always PROCESS, overrides everything
	BlockedDomains   []string // known phishing/spam domains
	SystemDomains    []string // automated platform senders, never answered
	SystemPrefixes   []string // automated local-part prefixes (noreply, ...)
	FreeMailDomains  []string // consumer mail providers for the high-risk rule
	HighRiskKeywords []string // local-part keywords flagged on free-mail senders
	PhishingSubjects []string
	SpamSubjects     []string
	BodySpamPhrases  []string
}

// DefaultRules returns the built-in tables. Whitelist and blocked domains are
// deployment-specific and come from configuration on top of these.
func DefaultRules() *Rules {
	return &Rules{
		SystemDomains: []string{
			"accounts.google.com",
			"drive.google.com",
			"googlemail.com",
			"shopify.com",
			"shopifyemail.com",
		},
		SystemPrefixes: []string{
			"noreply", "no-reply", "donotreply", "mailer", "daemon",
			"notification", "alert", "newsletter", "postmaster",
		},
		FreeMailDomains: []string{"gmail", "hotmail", "outlook", "yahoo"},
		HighRiskKeywords: []string{
			"seo", "traffic", "backlink", "profit", "ranking",
			"crypto", "forex", "invest",
		},
		PhishingSubjects: []string{
			"business-support", "violation", "suspended", "policy breach",
		},
		SpamSubjects: []string{
			"partnership", "collaboration", "guest post", "link building",
			"business opportunity",
		},
		BodySpamPhrases: []string{
			"increase traffic", "domain authority", "partnership plan",
			"commission", "google ranking", "seo ranking", "seo services",
			"boost your seo", "passive income", "dear business owner",
		},
	}
}

// Validate rejects malformed rule tables. A bad table is fatal at startup,
// never per-message.
func (r *Rules) Validate() error {
	check := func(table string, entries []string) error {
		for _, e := range entries {
			if strings.TrimSpace(e) == "" {
				return fmt.Errorf("gate rules: empty entry in %s table", table)
			}
			if e != strings.ToLower(e) {
				return fmt.Errorf("gate rules: %s entry %q must be lowercase", table, e)
			}
		}
		return nil
	}
	tables := map[string][]string{
		"whitelist":         r.Whitelist,
		"blocked_domains":   r.BlockedDomains,
		"system_domains":    r.SystemDomains,
		"system_prefixes":   r.SystemPrefixes,
		"free_mail_domains": r.FreeMailDomains,
		"high_risk":         r.HighRiskKeywords,
		"phishing_subjects": r.PhishingSubjects,
		"spam_subjects":     r.SpamSubjects,
		"body_spam":         r.BodySpamPhrases,
	}
	for name, entries := range tables {
		if err := check(name, entries); err != nil {
			return err
		}
	}
	return nil
}

// Gate evaluates messages against a validated rule set.
type Gate struct {
	rules *Rules
}

// New builds a gate, validating the rule tables once.
func New(rules *Rules) (*Gate, error) {
	if rules == nil {
		rules = DefaultRules()
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return &Gate{rules: rules}, nil
}

// Evaluate classifies a message. Rules apply in fixed priority order, first
// match wins: whitelist short-circuits everything so a partner domain is never
// dropped by a keyword rule.
func (g *Gate) Evaluate(msg *domain.InboundMessage) Verdict {
	local, dom, ok := msg.SenderParts()
	if !ok {
		return Verdict{Action: ActionIgnore, Reason: ReasonMalformedSender}
	}

	subject := strings.ToLower(msg.Subject)
	body := strings.ToLower(msg.Body)

	if rule, hit := matchAny(dom, g.rules.Whitelist); hit {
		return Verdict{Action: ActionProcess, Reason: ReasonWhitelisted, MatchedRule: rule}
	}
	if rule, hit := matchAny(dom, g.rules.BlockedDomains); hit {
		return Verdict{Action: ActionIgnore, Reason: ReasonBlockedDomain, MatchedRule: rule}
	}
	if rule, hit := matchAny(dom, g.rules.SystemDomains); hit {
		return Verdict{Action: ActionIgnore, Reason: ReasonBlockedDomain, MatchedRule: rule}
	}
	for _, prefix := range g.rules.SystemPrefixes {
		if strings.HasPrefix(local, prefix) {
			return Verdict{Action: ActionIgnore, Reason: ReasonSystemSender, MatchedRule: prefix}
		}
	}
	if _, free := matchAny(dom, g.rules.FreeMailDomains); free {
		if rule, hit := matchAny(local, g.rules.HighRiskKeywords); hit {
			return Verdict{Action: ActionIgnore, Reason: ReasonMarketingSpam, MatchedRule: rule}
		}
	}
	if rule, hit := matchAny(subject, g.rules.PhishingSubjects); hit {
		return Verdict{Action: ActionIgnore, Reason: ReasonMarketingSpam, MatchedRule: rule}
	}
	if rule, hit := matchAny(subject, g.rules.SpamSubjects); hit {
		return Verdict{Action: ActionIgnore, Reason: ReasonMarketingSpam, MatchedRule: rule}
	}
	// Pitch phrases show up in subjects as often as bodies.
	if rule, hit := matchAny(subject+" "+body, g.rules.BodySpamPhrases); hit {
		return Verdict{Action: ActionIgnore, Reason: ReasonMarketingSpam, MatchedRule: rule}
	}

	return Verdict{Action: ActionProcess, Reason: ReasonDefaultAllow}
}

// matchAny reports whether s contains any table entry.
func matchAny(s string, table []string) (string, bool) {
	for _, entry := range table {
		if strings.Contains(s, entry) {
			return entry, true
		}
	}
	return "", false
}
