// Package chatstore implements the append-only conversation directory
// store: one directory per conversation holding one file per message,
// named "<nanoseconds>-<role>.md".
//
// All filesystem access goes through an afero.Fs so tests can run against
// afero.NewMemMapFs() without touching a real directory, the way
// go-memsh's Shell is built around an injectable afero.Fs.
package chatstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/veilm/hnt/pkg/hnt"
)

// Store is a conversation store rooted at a base directory.
type Store struct {
	fs   afero.Fs
	base string
}

// New returns a Store backed by fs, rooted at base. base is created lazily.
func New(fs afero.Fs, base string) *Store {
	return &Store{fs: fs, base: base}
}

// NewOS returns a Store backed by the real filesystem, rooted at the
// user's data directory: $XDG_DATA_HOME/hinata/chat/conversations, falling
// back to ~/.local/share when XDG_DATA_HOME is unset.
func NewOS() (*Store, error) {
	dir, err := conversationsDir()
	if err != nil {
		return nil, err
	}
	return New(afero.NewOsFs(), dir), nil
}

func conversationsDir() (string, error) {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "hinata", "chat", "conversations"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving conversations dir: %w", err)
	}
	return filepath.Join(home, ".local", "share", "hinata", "chat", "conversations"), nil
}

// Base returns the store's root directory, creating it if necessary.
func (s *Store) Base() (string, error) {
	if err := s.fs.MkdirAll(s.base, 0755); err != nil {
		return "", fmt.Errorf("creating conversations dir: %w", err)
	}
	return s.base, nil
}

// Create creates a new conversation directory named by the current
// nanosecond timestamp, retrying with a 1ms backoff on the rare name
// collision. Grounded on chat.rs's create_new_conversation.
func (s *Store) Create() (string, error) {
	base, err := s.Base()
	if err != nil {
		return "", err
	}
	for attempt := 0; attempt < 10; attempt++ {
		ts := time.Now().UnixNano()
		path := filepath.Join(base, strconv.FormatInt(ts, 10))
		if err := s.fs.Mkdir(path, 0755); err != nil {
			if os.IsExist(err) {
				time.Sleep(time.Millisecond)
				continue
			}
			return "", fmt.Errorf("creating conversation dir: %w", err)
		}
		return path, nil
	}
	return "", fmt.Errorf("creating conversation dir: too many collisions")
}

// FindLatest returns the lexicographically greatest conversation directory
// under the base, or "" if none exist.
func (s *Store) FindLatest() (string, error) {
	base, err := s.Base()
	if err != nil {
		return "", err
	}
	entries, err := afero.ReadDir(s.fs, base)
	if err != nil {
		return "", fmt.Errorf("listing conversations: %w", err)
	}
	latest := ""
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if e.Name() > latest {
			latest = e.Name()
		}
	}
	if latest == "" {
		return "", nil
	}
	return filepath.Join(base, latest), nil
}

// Message is one entry returned by ListMessages.
type Message struct {
	Path      string
	Timestamp int64
	Role      hnt.Role
}

// WriteMessage writes a new message file named "<nanoseconds>-<role>.md"
// under conv, retrying on the rare timestamp collision the same way
// Create does, and returns the path relative to conv.
func (s *Store) WriteMessage(conv string, role hnt.Role, content string) (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		ts := time.Now().UnixNano()
		name := fmt.Sprintf("%d-%s.md", ts, role)
		path := filepath.Join(conv, name)
		exists, err := afero.Exists(s.fs, path)
		if err != nil {
			return "", fmt.Errorf("checking message file: %w", err)
		}
		if exists {
			time.Sleep(time.Millisecond)
			continue
		}
		f, err := s.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err != nil {
			if os.IsExist(err) {
				time.Sleep(time.Millisecond)
				continue
			}
			return "", fmt.Errorf("creating message file: %w", err)
		}
		_, werr := io.WriteString(f, content)
		cerr := f.Close()
		if werr != nil {
			return "", fmt.Errorf("writing message file: %w", werr)
		}
		if cerr != nil {
			return "", fmt.Errorf("closing message file: %w", cerr)
		}
		return name, nil
	}
	return "", fmt.Errorf("writing message file: too many collisions")
}

// ListMessages returns every recognized message under conv, sorted in
// strictly ascending timestamp order. Files whose name doesn't match
// "<int>-<known-role>.md" are silently ignored.
func (s *Store) ListMessages(conv string) ([]Message, error) {
	entries, err := afero.ReadDir(s.fs, conv)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	var out []Message
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".md")
		if name == e.Name() {
			continue // no .md suffix
		}
		tsPart, rolePart, ok := strings.Cut(name, "-")
		if !ok {
			continue
		}
		ts, err := strconv.ParseInt(tsPart, 10, 64)
		if err != nil {
			continue
		}
		role, ok := hnt.ParseRole(rolePart)
		if !ok {
			continue
		}
		out = append(out, Message{
			Path:      filepath.Join(conv, e.Name()),
			Timestamp: ts,
			Role:      role,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

// WriteAuxFile writes a non-message file under conv (e.g. the agent
// loop's best-effort cwd snapshot), overwriting any existing content.
func (s *Store) WriteAuxFile(conv, name, content string) error {
	return afero.WriteFile(s.fs, filepath.Join(conv, name), []byte(content), 0644)
}

// ReadMessage returns the raw content of a message file.
func (s *Store) ReadMessage(path string) (string, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return "", fmt.Errorf("reading message file: %w", err)
	}
	return string(data), nil
}

// Pack writes the packed prompt for conv to w: for every message in
// timestamp order, "<hnt-role>" + escaped body + "</hnt-role>\n".
// ignoreReasoning skips assistant-reasoning messages. Pack is a pure
// function of the directory snapshot.
func (s *Store) Pack(conv string, w io.Writer, ignoreReasoning bool) error {
	messages, err := s.ListMessages(conv)
	if err != nil {
		return err
	}
	for _, m := range messages {
		if ignoreReasoning && m.Role == hnt.RoleAssistantReasoning {
			continue
		}
		body, err := s.ReadMessage(m.Path)
		if err != nil {
			return err
		}
		tag := m.Role.Tag()
		if _, err := fmt.Fprintf(w, "<%s>%s</%s>\n", tag, Escape(body), tag); err != nil {
			return fmt.Errorf("writing packed prompt: %w", err)
		}
	}
	return nil
}
