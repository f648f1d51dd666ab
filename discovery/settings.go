package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
	"github.com/viant/idebridge/server"
)

const (
	serversKey   = "mcpServers"
	settingsMode = 0o600
)

// Entry is the shared registration entry
type Entry struct {
	Type    string            `json:"type"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
}

// Entry returns the registration entry currently stored in the shared settings document
func (r *Registry) Entry(ctx context.Context) (*Entry, error) {
	doc, err := r.loadSettings(ctx)
	if err != nil || doc == nil {
		return nil, err
	}
	value := gjson.GetBytes(doc, r.entryPath())
	if !value.Exists() {
		return nil, nil
	}
	entry := &Entry{}
	if err = json.Unmarshal([]byte(value.Raw), entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *Registry) upsertSettings(ctx context.Context, port int, token string) error {
	doc, err := r.loadSettings(ctx)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(doc)) == 0 {
		doc = []byte("{}")
	}
	entry, err := json.Marshal(&Entry{Type: "sse", URL: r.sseURL(port), Headers: map[string]string{server.AuthHeader: token}})
	if err != nil {
		return err
	}
	servers := gjson.GetBytes(doc, serversKey)
	switch {
	case servers.IsObject() && gjson.GetBytes(doc, r.entryPath()).Exists():
		layout := objectStyle(doc, servers.Index, servers.Index+len(servers.Raw)-1)
		doc, err = sjson.SetRawBytes(doc, r.entryPath(), layout.format(entry))
	case servers.IsObject():
		doc, err = insertMember(doc, servers.Index, servers.Index+len(servers.Raw)-1, r.serverKey, entry)
	default:
		var object []byte
		if object, err = insertMember([]byte("{}"), 0, 1, r.serverKey, entry); err != nil {
			break
		}
		if servers.Exists() {
			layout := objectStyle(doc, bytes.IndexByte(doc, '{'), bytes.LastIndexByte(doc, '}'))
			doc, err = sjson.SetRawBytes(doc, serversKey, layout.format(object))
			break
		}
		doc, err = insertMember(doc, bytes.IndexByte(doc, '{'), bytes.LastIndexByte(doc, '}'), serversKey, object)
	}
	if err != nil {
		return fmt.Errorf("failed to update %v: %w", r.settingsPath, err)
	}
	return r.replaceSettings(ctx, doc)
}

func (r *Registry) removeSettings(ctx context.Context) error {
	doc, err := r.loadSettings(ctx)
	if err != nil || doc == nil {
		return err
	}
	if !gjson.GetBytes(doc, r.entryPath()).Exists() {
		return nil
	}
	if doc, err = sjson.DeleteBytes(doc, r.entryPath()); err != nil {
		return fmt.Errorf("failed to update %v: %w", r.settingsPath, err)
	}
	if servers := gjson.GetBytes(doc, serversKey); servers.IsObject() && len(servers.Map()) == 0 {
		if doc, err = sjson.DeleteBytes(doc, serversKey); err != nil {
			return fmt.Errorf("failed to update %v: %w", r.settingsPath, err)
		}
	}
	if err = r.replaceSettings(ctx, doc); err != nil {
		return err
	}
	r.logger.Info("removed server entry", "path", r.settingsPath, "key", r.serverKey)
	return nil
}

// loadSettings returns nil when the document does not exist; an invalid document is an error
// so that it never gets overwritten.
func (r *Registry) loadSettings(ctx context.Context) ([]byte, error) {
	if ok, _ := r.fs.Exists(ctx, r.settingsPath); !ok {
		return nil, nil
	}
	doc, err := r.fs.DownloadWithURL(ctx, r.settingsPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read %v: %w", r.settingsPath, err)
	}
	if len(bytes.TrimSpace(doc)) == 0 {
		return doc, nil
	}
	if !gjson.ValidBytes(doc) || !gjson.ParseBytes(doc).IsObject() {
		return nil, fmt.Errorf("%v is not a JSON object", r.settingsPath)
	}
	return doc, nil
}

// replaceSettings writes a temp file next to the document and renames it over the original
func (r *Registry) replaceSettings(ctx context.Context, doc []byte) error {
	tmp := r.settingsPath + tmpSuffix
	if err := r.fs.Upload(ctx, tmp, settingsMode, bytes.NewReader(doc)); err != nil {
		return fmt.Errorf("cannot write settings tmp %v: %w", tmp, err)
	}
	if err := r.fs.Move(ctx, tmp, r.settingsPath); err != nil {
		_ = r.fs.Delete(ctx, tmp)
		return fmt.Errorf("cannot update %v: %w", r.settingsPath, err)
	}
	return nil
}

// style is the whitespace layout of one JSON object inside a document
type style struct {
	multiline bool
	indent    string
	unit      string
	closing   string
}

// objectStyle infers the layout of the object spanning doc[start:end+1]
func objectStyle(doc []byte, start, end int) *style {
	ret := &style{closing: lineIndent(doc, start), unit: "  "}
	first := start + 1
	for first < end && doc[first] <= ' ' {
		first++
	}
	empty := first == end
	ret.multiline = bytes.IndexByte(doc[start:end+1], '\n') >= 0 || (empty && bytes.IndexByte(doc, '\n') >= 0)
	if empty || !ret.multiline {
		ret.indent = ret.closing + ret.unit
		return ret
	}
	ret.indent = lineIndent(doc, first)
	if len(ret.indent) > len(ret.closing) && strings.HasPrefix(ret.indent, ret.closing) {
		ret.unit = ret.indent[len(ret.closing):]
	}
	return ret
}

// format renders a member value so that it lines up with its siblings
func (s *style) format(value []byte) []byte {
	if !s.multiline {
		return pretty.Ugly(value)
	}
	return bytes.TrimSpace(pretty.PrettyOptions(value, &pretty.Options{Width: 80, Prefix: s.indent, Indent: s.unit}))
}

// insertMember appends "key": value as the last member of the object spanning doc[start:end+1].
// Everything outside the inserted member is kept byte for byte, so deleting the member with
// sjson gives back the original document.
func insertMember(doc []byte, start, end int, key string, value []byte) ([]byte, error) {
	if start < 0 || end <= start || doc[start] != '{' || doc[end] != '}' {
		return nil, fmt.Errorf("expected an object at offset %v", start)
	}
	name, err := json.Marshal(key)
	if err != nil {
		return nil, err
	}
	layout := objectStyle(doc, start, end)
	value = layout.format(value)
	last := end - 1
	for last > start && doc[last] <= ' ' {
		last--
	}
	member := &bytes.Buffer{}
	if last == start {
		member.WriteByte('{')
		if layout.multiline {
			member.WriteString("\n" + layout.indent)
		}
		writeMember(member, name, value, layout.multiline)
		if layout.multiline {
			member.WriteString("\n" + layout.closing)
		}
		member.WriteByte('}')
		return splice(doc, start, end+1, member.Bytes()), nil
	}
	member.WriteByte(',')
	if layout.multiline {
		member.WriteString("\n" + layout.indent)
	}
	writeMember(member, name, value, layout.multiline)
	return splice(doc, last+1, last+1, member.Bytes()), nil
}

func writeMember(buffer *bytes.Buffer, name, value []byte, spaced bool) {
	buffer.Write(name)
	buffer.WriteByte(':')
	if spaced {
		buffer.WriteByte(' ')
	}
	buffer.Write(value)
}

// lineIndent returns the leading whitespace of the line holding doc[pos]
func lineIndent(doc []byte, pos int) string {
	begin := bytes.LastIndexByte(doc[:pos], '\n') + 1
	end := begin
	for end < pos && (doc[end] == ' ' || doc[end] == '\t') {
		end++
	}
	return string(doc[begin:end])
}

func splice(doc []byte, from, to int, insert []byte) []byte {
	ret := make([]byte, 0, len(doc)+len(insert))
	ret = append(ret, doc[:from]...)
	ret = append(ret, insert...)
	return append(ret, doc[to:]...)
}

func (r *Registry) entryPath() string {
	return serversKey + "." + escapePath(r.serverKey)
}

func escapePath(key string) string {
	replacer := strings.NewReplacer(`\`, `\\`, ".", `\.`, "*", `\*`, "?", `\?`)
	return replacer.Replace(key)
}

// lockPID reports the pid recorded in a lock file and whether the content is valid JSON
func lockPID(data []byte) (int, bool) {
	if !gjson.ValidBytes(data) {
		return 0, false
	}
	value := gjson.GetBytes(data, "pid")
	if value.Type != gjson.Number || value.Num < 0 || value.Num != float64(int64(value.Num)) {
		return 0, true
	}
	return int(value.Int()), true
}
