package settings

import "encoding/json"

// Kind describes how a field is stored, edited and turned into flags.
type Kind int

const (
	// KindText is free-form text, emitted as "flag value" when non-blank.
	KindText Kind = iota
	// KindNumber is an optional numeric value kept as text so that an empty
	// value means "let llama-server decide".
	KindNumber
	// KindInt is a mandatory integer that is always emitted.
	KindInt
	// KindBool is a toggle emitted as a bare flag when true.
	KindBool
	// KindChoice is one of a fixed set of values.
	KindChoice
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindChoice:
		return "choice"
	}
	return "unknown"
}

// Group names used to lay fields out in tabs.
const (
	GroupModel       = "Model"
	GroupGeneration  = "Generation"
	GroupPerformance = "Performance"
	GroupAdvanced    = "Advanced"
	GroupServer      = "Server"
)

// Groups lists the field groups in display order.
var Groups = []string{GroupModel, GroupGeneration, GroupPerformance, GroupAdvanced, GroupServer}

// Field declares one configurable value.
type Field struct {
	Key     string
	Kind    Kind
	Flag    string // empty for fields that never reach the command line
	Group   string
	Label   string
	Default any

	// Choices and Omit apply to KindChoice. A value equal to Omit
	// produces no flag.
	Choices []string
	Omit    string
	Open    bool // accept values outside Choices

	// Min and Max bound KindInt values.
	Min, Max int

	// emit overrides the default flag rendering for fields whose value
	// is not passed through verbatim.
	emit func(value string) []string
}

const (
	KeyModelPath       = "model_path"
	KeyCtxSize         = "ctx_size"
	KeyGPULayers       = "gpu_layers"
	KeyHost            = "host"
	KeyPort            = "port"
	KeyServerPath      = "server_path"
	KeyCustomArguments = "custom_arguments_list"

	// legacyCustomArgs is the pre-list single-string custom argument field.
	legacyCustomArgs = "custom_args"
	// keyFlashAttn was a checkbox in older files and is now an on/off/auto choice.
	keyFlashAttn = "flash_attn"
)

// DefaultServerPath is launched when server_path is blank.
const DefaultServerPath = "llama-server"

var schema = []Field{
	// Model
	{Key: KeyModelPath, Kind: KindText, Flag: "--model", Group: GroupModel, Label: "Model path", Default: ""},
	{Key: "alias", Kind: KindText, Flag: "--alias", Group: GroupModel, Label: "Model alias", Default: ""},
	{Key: "lora_path", Kind: KindText, Flag: "--lora", Group: GroupModel, Label: "LoRA path", Default: ""},
	{Key: "mmproj_path", Kind: KindText, Flag: "--mmproj", Group: GroupModel, Label: "Multimodal projector", Default: ""},
	{Key: "chat_template", Kind: KindChoice, Flag: "--chat-template", Group: GroupModel, Label: "Chat template", Default: "",
		Open: true, Choices: []string{"", "bailing", "chatglm3", "chatglm4", "chatml", "command-r", "deepseek", "deepseek2", "gemma", "llama2", "llama3", "mistral", "openchat", "phi3", "vicuna", "zephyr"}},
	{Key: "reasoning_format", Kind: KindChoice, Flag: "--reasoning-format", Group: GroupModel, Label: "Reasoning format", Default: "",
		Open: true, Choices: []string{"", "auto", "none", "deepseek"}},
	{Key: "reasoning_effort", Kind: KindChoice, Flag: "--chat-template-kwargs", Group: GroupModel, Label: "Reasoning effort", Default: "",
		Open: true, Choices: []string{"", "low", "medium", "high"}, emit: reasoningEffortArgs},
	{Key: "jinja", Kind: KindBool, Flag: "--jinja", Group: GroupModel, Label: "Enable Jinja", Default: false},

	// Generation
	{Key: "n_predict", Kind: KindNumber, Flag: "--n-predict", Group: GroupGeneration, Label: "Tokens to generate", Default: ""},
	{Key: "ignore_eos", Kind: KindBool, Flag: "--ignore-eos", Group: GroupGeneration, Label: "Ignore end-of-sequence", Default: false},
	{Key: "temp", Kind: KindNumber, Flag: "--temp", Group: GroupGeneration, Label: "Temperature", Default: ""},
	{Key: "top_k", Kind: KindNumber, Flag: "--top-k", Group: GroupGeneration, Label: "Top-K", Default: ""},
	{Key: "top_p", Kind: KindNumber, Flag: "--top-p", Group: GroupGeneration, Label: "Top-P", Default: ""},
	{Key: "repeat_penalty", Kind: KindNumber, Flag: "--repeat-penalty", Group: GroupGeneration, Label: "Repeat penalty", Default: ""},

	// Performance
	{Key: KeyCtxSize, Kind: KindInt, Flag: "--ctx-size", Group: GroupPerformance, Label: "Context size", Default: 4096, Min: 0, Max: 1 << 20},
	{Key: KeyGPULayers, Kind: KindInt, Flag: "--n-gpu-layers", Group: GroupPerformance, Label: "GPU layers", Default: 99, Min: 0, Max: 999},
	{Key: "threads", Kind: KindNumber, Flag: "--threads", Group: GroupPerformance, Label: "CPU threads", Default: ""},
	{Key: "batch_size", Kind: KindNumber, Flag: "--batch-size", Group: GroupPerformance, Label: "Batch size", Default: ""},
	{Key: "ubatch_size", Kind: KindNumber, Flag: "--ubatch-size", Group: GroupPerformance, Label: "Physical batch size", Default: ""},
	{Key: "parallel", Kind: KindNumber, Flag: "--parallel", Group: GroupPerformance, Label: "Parallel sequences", Default: ""},
	{Key: "cont_batching", Kind: KindBool, Flag: "--cont-batching", Group: GroupPerformance, Label: "Continuous batching", Default: false},

	// Advanced
	{Key: keyFlashAttn, Kind: KindChoice, Flag: "--flash-attn", Group: GroupAdvanced, Label: "Flash attention", Default: "auto",
		Choices: []string{"on", "off", "auto"}, Omit: "auto"},
	{Key: "moe_cpu_layers", Kind: KindNumber, Flag: "--n-cpu-moe", Group: GroupAdvanced, Label: "MoE CPU layers", Default: ""},
	{Key: "mlock", Kind: KindBool, Flag: "--mlock", Group: GroupAdvanced, Label: "Memory lock", Default: false},
	{Key: "no_mmap", Kind: KindBool, Flag: "--no-mmap", Group: GroupAdvanced, Label: "No memory mapping", Default: false},
	{Key: "numa", Kind: KindBool, Flag: "--numa", Group: GroupAdvanced, Label: "NUMA optimizations", Default: false,
		emit: func(string) []string { return []string{"--numa", "distribute"} }},
	{Key: "draft_model_path", Kind: KindText, Flag: "--model-draft", Group: GroupAdvanced, Label: "Draft model", Default: ""},
	{Key: "draft_gpu_layers", Kind: KindNumber, Flag: "--n-gpu-layers-draft", Group: GroupAdvanced, Label: "Draft GPU layers", Default: ""},
	{Key: "draft_tokens", Kind: KindNumber, Flag: "--draft-max", Group: GroupAdvanced, Label: "Draft tokens", Default: ""},

	// Server
	{Key: KeyHost, Kind: KindText, Flag: "--host", Group: GroupServer, Label: "Host", Default: "127.0.0.1"},
	{Key: KeyPort, Kind: KindNumber, Flag: "--port", Group: GroupServer, Label: "Port", Default: "8080"},
	{Key: "api_key", Kind: KindText, Flag: "--api-key", Group: GroupServer, Label: "API key", Default: ""},
	{Key: "no_webui", Kind: KindBool, Flag: "--no-webui", Group: GroupServer, Label: "Disable web UI", Default: false},
	{Key: "embedding", Kind: KindBool, Flag: "--embedding", Group: GroupServer, Label: "Embeddings only", Default: false},
	{Key: "verbose", Kind: KindBool, Flag: "--verbose", Group: GroupServer, Label: "Verbose logging", Default: false},
	{Key: KeyServerPath, Kind: KindText, Group: GroupServer, Label: "llama-server path", Default: DefaultServerPath},
}

var schemaIndex = func() map[string]int {
	m := make(map[string]int, len(schema))
	for i, f := range schema {
		m[f.Key] = i
	}
	return m
}()

// Fields returns the schema in declaration order.
func Fields() []Field {
	out := make([]Field, len(schema))
	copy(out, schema)
	return out
}

// FieldsInGroup returns the fields of one group in declaration order.
func FieldsInGroup(group string) []Field {
	var out []Field
	for _, f := range schema {
		if f.Group == group {
			out = append(out, f)
		}
	}
	return out
}

// Lookup returns the field declared under key.
func Lookup(key string) (Field, bool) {
	i, ok := schemaIndex[key]
	if !ok {
		return Field{}, false
	}
	return schema[i], true
}

func reasoningEffortArgs(value string) []string {
	kwargs, _ := json.Marshal(map[string]string{"reasoning_effort": value})
	return []string{"--chat-template-kwargs", string(kwargs)}
}
