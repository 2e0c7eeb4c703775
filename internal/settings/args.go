package settings

import (
	"net"
	"strconv"
	"strings"
)

// Args translates the record into llama-server flags. The result depends
// only on the record: --model comes first, the remaining fields follow
// schema order, and enabled custom arguments are appended last in stored
// order.
func Args(r *Record) []string {
	var args []string
	if model := strings.TrimSpace(r.String(KeyModelPath)); model != "" {
		args = append(args, "--model", model)
	}

	for _, f := range schema {
		if f.Flag == "" || f.Key == KeyModelPath {
			continue
		}
		args = append(args, fieldArgs(f, r.values[f.Key])...)
	}

	for _, a := range r.args {
		if !a.Enabled {
			continue
		}
		// An entry such as "--rope-scaling linear" holds a flag and its
		// value; each becomes its own token.
		args = append(args, strings.Fields(a.Value)...)
	}
	return args
}

func fieldArgs(f Field, value any) []string {
	var text string
	switch v := value.(type) {
	case bool:
		if !v {
			return nil
		}
	case int:
		text = strconv.Itoa(v)
	case string:
		text = strings.TrimSpace(v)
		if text == "" || (f.Kind == KindChoice && text == f.Omit) {
			return nil
		}
	default:
		return nil
	}
	if f.emit != nil {
		return f.emit(text)
	}
	if f.Kind == KindBool {
		return []string{f.Flag}
	}
	return []string{f.Flag, text}
}

// Validate reports settings that would keep llama-server from starting.
func Validate(r *Record) error {
	if strings.TrimSpace(r.String(KeyModelPath)) == "" {
		return ErrModelRequired
	}
	return nil
}

// ServerPath returns the configured executable, falling back to
// DefaultServerPath.
func ServerPath(r *Record) string {
	if p := strings.TrimSpace(r.String(KeyServerPath)); p != "" {
		return p
	}
	return DefaultServerPath
}

// Preview renders the executable and its arguments as one line for people
// to read or paste into a shell. Tokens containing whitespace are quoted.
func Preview(executable string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	for _, a := range append([]string{executable}, args...) {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s == "" {
		return `""`
	}
	if !strings.ContainsAny(s, " \t\n\"") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// ServerURL is the address the web UI will be reachable on once the server
// is up. Wildcard hosts are shown as localhost.
func ServerURL(r *Record) string {
	host := strings.TrimSpace(r.String(KeyHost))
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	port := strings.TrimSpace(r.String(KeyPort))
	if port == "" {
		port = "8080"
	}
	return "http://" + net.JoinHostPort(host, port)
}
