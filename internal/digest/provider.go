package digest

import "strings"

// Provider is the mail service an email originated from.
type Provider string

const (
	ProviderGmail   Provider = "gmail"
	ProviderOutlook Provider = "outlook"
	ProviderUnknown Provider = "unknown"
)

// ProviderFor infers the provider from an email identifier. The prefix and
// substring rules are a contract with the identifier-issuing backend.
func ProviderFor(emailID string) Provider {
	switch {
	case emailID == "":
		return ProviderUnknown
	case strings.HasPrefix(emailID, "g_") || strings.Contains(emailID, "gmail"):
		return ProviderGmail
	case strings.HasPrefix(emailID, "o_") || strings.HasPrefix(emailID, "ms_") || strings.Contains(emailID, "outlook"):
		return ProviderOutlook
	default:
		return ProviderUnknown
	}
}

// ProviderCounts tallies summaries per provider.
type ProviderCounts struct {
	Gmail   int `json:"gmail"`
	Outlook int `json:"outlook"`
	Unknown int `json:"unknown"`
	Total   int `json:"total"`
}

// Add counts one email of provider p.
func (c *ProviderCounts) Add(p Provider) {
	switch p {
	case ProviderGmail:
		c.Gmail++
	case ProviderOutlook:
		c.Outlook++
	default:
		c.Unknown++
	}
	c.Total++
}
