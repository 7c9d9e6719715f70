package domain

import (
	"sort"
	"strings"
)

// Mode is how the worker reaches its inference backend.
type Mode string

const (
	ModeOllama   Mode = "ollama"
	ModeProxy    Mode = "proxy"
	ModeVLLM     Mode = "vllm"
	ModeLlamaCpp Mode = "llamacpp"
)

// DefaultEngine is used for entries that name no engine.
const DefaultEngine = "ollama"

// WildcardModel is the model name of the single entry sent when no
// per-model prices are configured.
const WildcardModel = "*"

// Engine returns the wire engine identifier for the mode. Unknown modes map
// to DefaultEngine.
func (m Mode) Engine() string {
	switch Mode(strings.ToLower(string(m))) {
	case ModeProxy:
		return "openai"
	case ModeVLLM:
		return "vllm"
	case ModeLlamaCpp:
		return "llama.cpp"
	default:
		return DefaultEngine
	}
}

// PriceEntry is the price of one model. Prices are decimal strings per
// million tokens and travel on the wire unchanged.
type PriceEntry struct {
	Model  string `json:"model"`
	Engine string `json:"engine"`
	IPPM   string `json:"ippm"`
	OPPM   string `json:"oppm"`
}

// PriceTable maps model name to its entry.
type PriceTable map[string]PriceEntry

// Models returns the model names in sorted order.
func (t PriceTable) Models() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PriceDefaults are the global prices used where an entry is incomplete.
type PriceDefaults struct {
	Mode Mode
	IPPM string
	OPPM string
}
