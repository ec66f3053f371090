package adapter

import (
	"net/url"
	"strings"
)

// Service is a chat service recognised from its URL.
type Service string

const (
	ServiceChatGPT    Service = "chatgpt"
	ServiceClaude     Service = "claude"
	ServiceGemini     Service = "gemini"
	ServicePerplexity Service = "perplexity"
	ServiceCopilot    Service = "copilot"
	ServiceUnknown    Service = "unknown"
)

var serviceHosts = []struct {
	suffix  string
	service Service
}{
	{"chatgpt.com", ServiceChatGPT},
	{"chat.openai.com", ServiceChatGPT},
	{"claude.ai", ServiceClaude},
	{"gemini.google.com", ServiceGemini},
	{"bard.google.com", ServiceGemini},
	{"perplexity.ai", ServicePerplexity},
	{"copilot.microsoft.com", ServiceCopilot},
}

// DetectService maps a request URL to the service that owns it.
func DetectService(rawURL string) Service {
	if rawURL == "" {
		return ServiceUnknown
	}
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Hostname()
	}
	host = strings.ToLower(host)

	for _, h := range serviceHosts {
		if host == h.suffix || strings.HasSuffix(host, "."+h.suffix) {
			return h.service
		}
	}
	return ServiceUnknown
}

// ParseService accepts a service name as sent by a client.
func ParseService(name string) Service {
	switch s := Service(strings.ToLower(strings.TrimSpace(name))); s {
	case ServiceChatGPT, ServiceClaude, ServiceGemini, ServicePerplexity, ServiceCopilot:
		return s
	}
	return ServiceUnknown
}

// PreferredKind is the layout a service normally sends.
func (s Service) PreferredKind() Kind {
	switch s {
	case ServiceChatGPT:
		return KindChat
	case ServiceClaude:
		return KindPrompt
	case ServiceGemini:
		return KindParts
	case ServicePerplexity:
		return KindDualField
	case ServiceCopilot:
		return KindEvent
	}
	return KindNone
}

// DisplayName is the human-readable service name.
func (s Service) DisplayName() string {
	switch s {
	case ServiceChatGPT:
		return "ChatGPT"
	case ServiceClaude:
		return "Claude"
	case ServiceGemini:
		return "Gemini"
	case ServicePerplexity:
		return "Perplexity"
	case ServiceCopilot:
		return "Copilot"
	}
	return "Unknown"
}
