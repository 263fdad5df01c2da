package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/batalabs/convo/internal/domain"
)

// Preferences holds user-configurable behavior settings.
// Persisted to ~/.config/convo/config.json.
type Preferences struct {
	// Input grammar
	CommandPrefix    string `json:"command_prefix"`
	MentionDelimiter string `json:"mention_delimiter"`

	// Command library
	CommandsFile     string `json:"commands_file,omitempty"`
	TranscriptRecent int    `json:"transcript_recent"`

	// Backend connection
	DaemonURL   string `json:"daemon_url,omitempty"`
	DaemonToken string `json:"daemon_token,omitempty"`

	// AutoChat defaults
	AutoChatMaxIterations int    `json:"autochat_max_iterations"`
	AutoChatStopCondition string `json:"autochat_stop_condition"`
	AutoChatWebSearch     bool   `json:"autochat_web_search"`

	// Runtime
	EventsBuffer int    `json:"events_buffer"`
	LogLevel     string `json:"log_level,omitempty"`
}

// PrefEntry holds a single key-value preference entry for display.
type PrefEntry struct {
	Key   string
	Value string
}

// ConfigGroup holds a named group of preference entries for display.
type ConfigGroup struct {
	Name    string
	Entries []PrefEntry
}

// ConfigGroupDef defines a single group with a name and its keys.
type ConfigGroupDef struct {
	Name string
	Keys []string
}

// ConfigGroupDefs defines the preference key groupings and their display order.
var ConfigGroupDefs = []ConfigGroupDef{
	{Name: "input", Keys: []string{"command.prefix", "mention.delimiter"}},
	{Name: "commands", Keys: []string{"commands.file", "transcript.recent"}},
	{Name: "daemon", Keys: []string{"daemon.url", "daemon.token"}},
	{Name: "autochat", Keys: []string{"autochat.max_iterations", "autochat.stop_condition", "autochat.web_search"}},
	{Name: "runtime", Keys: []string{"events.buffer", "log.level"}},
}

// ConfigGroupNames returns the list of valid group names.
func ConfigGroupNames() []string {
	names := make([]string, len(ConfigGroupDefs))
	for i, g := range ConfigGroupDefs {
		names[i] = g.Name
	}
	return names
}

// ValidConfigKeys returns all config keys accepted by Set().
func ValidConfigKeys() []string {
	var keys []string
	for _, g := range ConfigGroupDefs {
		keys = append(keys, g.Keys...)
	}
	return keys
}

// DefaultPreferences returns the default set of preferences.
func DefaultPreferences() Preferences {
	return Preferences{
		CommandPrefix:         "/",
		MentionDelimiter:      "@",
		TranscriptRecent:      10,
		DaemonURL:             "http://127.0.0.1:4097",
		AutoChatMaxIterations: 5,
		AutoChatStopCondition: string(domain.StopIterationCount),
		EventsBuffer:          256,
		LogLevel:              "info",
	}
}

// LoadPreferences reads preferences from ~/.config/convo/config.json.
// Missing fields keep their defaults; a missing file yields the defaults.
func LoadPreferences() Preferences {
	p := DefaultPreferences()
	path := ConfigFilePath()
	if path == "" {
		return p
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p
	}
	if err := json.Unmarshal(data, &p); err != nil {
		fmt.Fprintf(os.Stderr, "config: parse %s: %v\n", path, err)
		return DefaultPreferences()
	}
	warnInsecurePermissions(path)

	if sanitizePreferences(&p) {
		// Persist cleaned values so null bytes don't accumulate across restarts.
		if err := SavePreferences(p); err != nil {
			fmt.Fprintf(os.Stderr, "config: save sanitized config: %v\n", err)
		}
	}
	return p
}

// SavePreferences writes preferences to ~/.config/convo/config.json.
func SavePreferences(p Preferences) error {
	dir := ConfigDir()
	if dir == "" {
		return fmt.Errorf("could not determine config directory")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0o600)
}

// warnInsecurePermissions prints a warning to stderr if the config file is
// readable by group or others. The file may hold the daemon token. On
// Windows, file permission bits don't map to ACLs, so the check is skipped.
func warnInsecurePermissions(path string) {
	if runtime.GOOS == "windows" {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.Mode().Perm()&0o077 != 0 {
		fmt.Fprintf(os.Stderr, "WARNING: %s is readable by others (mode %o). Run: chmod 600 %s\n",
			path, info.Mode().Perm(), path)
	}
}

// Grouped returns all preferences organized into named groups.
// Values are display-ready: tokens are masked, empty values are annotated.
func (p Preferences) Grouped() []ConfigGroup {
	var groups []ConfigGroup
	for _, def := range ConfigGroupDefs {
		var entries []PrefEntry
		for _, key := range def.Keys {
			entries = append(entries, PrefEntry{Key: key, Value: AnnotateValue(p.Get(key))})
		}
		groups = append(groups, ConfigGroup{Name: def.Name, Entries: entries})
	}
	return groups
}

// GroupByName returns entries for a single config group, or nil if not found.
func (p Preferences) GroupByName(name string) *ConfigGroup {
	for _, g := range p.Grouped() {
		if g.Name == name {
			return &g
		}
	}
	return nil
}

// Get returns the display value for a single preference key.
func (p Preferences) Get(key string) string {
	switch key {
	case "command.prefix":
		return p.CommandPrefix
	case "mention.delimiter":
		return p.MentionDelimiter
	case "commands.file":
		return p.CommandsFile
	case "transcript.recent":
		return strconv.Itoa(p.TranscriptRecent)
	case "daemon.url":
		return p.DaemonURL
	case "daemon.token":
		return MaskKey(p.DaemonToken)
	case "autochat.max_iterations":
		return strconv.Itoa(p.AutoChatMaxIterations)
	case "autochat.stop_condition":
		return p.AutoChatStopCondition
	case "autochat.web_search":
		return strconv.FormatBool(p.AutoChatWebSearch)
	case "events.buffer":
		return strconv.Itoa(p.EventsBuffer)
	case "log.level":
		return p.LogLevel
	default:
		return ""
	}
}

// Set updates a single preference key to the given value.
func (p *Preferences) Set(key, value string) error {
	value = SanitizeValue(value)
	switch key {
	case "command.prefix":
		if value == "" || strings.ContainsAny(value, " \t\n") {
			return fmt.Errorf("command.prefix must be non-empty and contain no whitespace")
		}
		p.CommandPrefix = value
	case "mention.delimiter":
		if utf8.RuneCountInString(value) != 1 || strings.TrimSpace(value) == "" {
			return fmt.Errorf("mention.delimiter must be a single non-space character")
		}
		p.MentionDelimiter = value
	case "commands.file":
		p.CommandsFile = value
	case "transcript.recent":
		n, err := parsePositive(key, value)
		if err != nil {
			return err
		}
		p.TranscriptRecent = n
	case "daemon.url":
		p.DaemonURL = strings.TrimRight(value, "/")
	case "daemon.token":
		p.DaemonToken = value
	case "autochat.max_iterations":
		n, err := parsePositive(key, value)
		if err != nil {
			return err
		}
		p.AutoChatMaxIterations = n
	case "autochat.stop_condition":
		sc, err := domain.ParseStopCondition(value)
		if err != nil {
			return err
		}
		p.AutoChatStopCondition = string(sc)
	case "autochat.web_search":
		b, err := ParseBoolish(value)
		if err != nil {
			return err
		}
		p.AutoChatWebSearch = b
	case "events.buffer":
		n, err := parsePositive(key, value)
		if err != nil {
			return err
		}
		p.EventsBuffer = n
	case "log.level":
		if _, err := ParseLogLevel(value); err != nil {
			return err
		}
		p.LogLevel = strings.ToLower(value)
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}

// AutoChatConfig returns the default AutoChat run configuration.
func (p Preferences) AutoChatConfig() domain.AutoChatConfig {
	sc, err := domain.ParseStopCondition(p.AutoChatStopCondition)
	if err != nil {
		sc = domain.StopIterationCount
	}
	n := p.AutoChatMaxIterations
	if n < 1 {
		n = DefaultPreferences().AutoChatMaxIterations
	}
	return domain.AutoChatConfig{MaxIterations: n, StopCondition: sc, WebSearchEnabled: p.AutoChatWebSearch}
}

// MentionRune returns the mention delimiter as a rune.
func (p Preferences) MentionRune() rune {
	r, _ := utf8.DecodeRuneInString(p.MentionDelimiter)
	if r == utf8.RuneError {
		return '@'
	}
	return r
}

// SanitizeValue strips null bytes, ASCII control characters (< 32 except
// \n and \t), and DEL (0x7F) from a string value and trims surrounding
// whitespace. These typically sneak in through clipboard paste artifacts.
func SanitizeValue(s string) string {
	return strings.Map(func(r rune) rune {
		if (r < 32 && r != '\n' && r != '\t') || r == 0x7F {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

// sanitizePreferences strips control characters from all string fields in
// an already-loaded Preferences struct. Returns true if any field was modified.
func sanitizePreferences(p *Preferences) bool {
	changed := false
	sanitize := func(s *string) {
		cleaned := SanitizeValue(*s)
		if cleaned != *s {
			*s = cleaned
			changed = true
		}
	}
	sanitize(&p.CommandPrefix)
	sanitize(&p.MentionDelimiter)
	sanitize(&p.CommandsFile)
	sanitize(&p.DaemonURL)
	sanitize(&p.DaemonToken)
	sanitize(&p.AutoChatStopCondition)
	sanitize(&p.LogLevel)
	return changed
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// MaskKey masks a secret for display, showing only the last 4 characters.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// ParseBoolish parses a boolean-like string value.
func ParseBoolish(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "on", "yes", "1":
		return true, nil
	case "false", "off", "no", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value: %s (use true/false, on/off, yes/no)", s)
	}
}

func parsePositive(key, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, s)
	}
	return n, nil
}

// AnnotateValue returns a display string for a config value.
// Shows "(not set)" for empty values, otherwise shows the raw value.
func AnnotateValue(value string) string {
	if value == "" {
		return "(not set)"
	}
	return value
}

// ConfigFilePath returns the absolute path to config.json.
func ConfigFilePath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.json")
}

// ---------------------------------------------------------------------------
// Config actions
// ---------------------------------------------------------------------------

// ExecuteConfigAction handles /config subcommands and returns a plain-text
// response. The caller applies its own formatting.
func ExecuteConfigAction(prefs *Preferences, args []string) (string, error) {
	sub := "show"
	if len(args) > 0 {
		sub = strings.ToLower(args[0])
	}

	switch sub {
	case "show":
		return FormatConfigGroups(prefs.Grouped()), nil

	case "set":
		if len(args) < 3 {
			return "", fmt.Errorf("usage: /config set <key> <value>")
		}
		key := args[1]
		value := strings.Join(args[2:], " ")
		if err := prefs.Set(key, value); err != nil {
			return "", err
		}
		if err := SavePreferences(*prefs); err != nil {
			return "", fmt.Errorf("failed to save: %w", err)
		}
		return fmt.Sprintf("Set %s = %s", key, prefs.Get(key)), nil

	case "reset":
		*prefs = DefaultPreferences()
		if err := SavePreferences(*prefs); err != nil {
			return "", fmt.Errorf("failed to save: %w", err)
		}
		return "Preferences reset to defaults.", nil
	}

	if group := prefs.GroupByName(sub); group != nil {
		return FormatConfigGroups([]ConfigGroup{*group}), nil
	}
	return "", fmt.Errorf("usage: /config [show|%s|set <key> <value>|reset]", strings.Join(ConfigGroupNames(), "|"))
}

// FormatConfigGroups renders config groups as plain text (no ANSI styling).
func FormatConfigGroups(groups []ConfigGroup) string {
	var lines []string
	for i, g := range groups {
		if i > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, strings.ToUpper(g.Name[:1])+g.Name[1:]+":")
		for _, e := range g.Entries {
			lines = append(lines, fmt.Sprintf("  %-24s %s", e.Key, e.Value))
		}
	}
	lines = append(lines, "")
	lines = append(lines, "  Use /config set <key> <value> to change")
	return strings.Join(lines, "\n")
}
