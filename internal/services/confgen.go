package services

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"asteriskgui/internal/models"
)

const (
	PJSIPConfFile  = "pjsip.conf"
	QueuesConfFile = "queues.conf"
)

var confFuncs = template.FuncMap{
	"transport": func(protocol string) string {
		if protocol == "" {
			protocol = "udp"
		}
		return "transport-" + strings.ToLower(protocol)
	},
	"qualifyFrequency": func(t models.Trunk) int {
		if strings.EqualFold(t.Qualify, "no") {
			return 0
		}
		return t.QualifyFrequency
	},
	"registers": func(t models.Trunk) bool {
		return strings.EqualFold(t.Register, "yes") && t.Username != ""
	},
	"enabled": func(status string) bool {
		return status != "inactive"
	},
}

var pjsipTemplate = template.Must(template.New(PJSIPConfFile).Funcs(confFuncs).Parse(`; Managed by asteriskgui. Manual edits are overwritten.
{{- range .Accounts}}{{if enabled .Status}}

[{{.ID}}]
type=endpoint
context={{.Context}}
disallow=all
allow={{.Codecs}}
auth={{.ID}}
aors={{.ID}}
{{- if .CallerID}}
callerid={{.CallerID}}
{{- end}}

[{{.ID}}]
type=auth
auth_type=userpass
username={{.Username}}
password={{.Password}}

[{{.ID}}]
type=aor
max_contacts=1
remove_existing=yes
{{- end}}{{end}}
{{- range .Trunks}}{{if enabled .Status}}

[{{.ID}}]
type=endpoint
transport={{transport .Protocol}}
context={{.Context}}
disallow=all
allow=ulaw,alaw
aors={{.ID}}
{{- if .Username}}
outbound_auth={{.ID}}-auth
{{- end}}
{{- if .FromUser}}
from_user={{.FromUser}}
{{- end}}
{{- if .FromDomain}}
from_domain={{.FromDomain}}
{{- end}}
{{- if .Username}}

[{{.ID}}-auth]
type=auth
auth_type=userpass
username={{.Username}}
password={{.Password}}
{{- end}}

[{{.ID}}]
type=aor
contact=sip:{{.Host}}:{{.Port}}
qualify_frequency={{qualifyFrequency .}}

[{{.ID}}]
type=identify
endpoint={{.ID}}
match={{.Host}}
{{- if registers .}}

[{{.ID}}-reg]
type=registration
transport={{transport .Protocol}}
outbound_auth={{.ID}}-auth
server_uri=sip:{{.Host}}:{{.Port}}
client_uri=sip:{{.Username}}@{{.Host}}:{{.Port}}
retry_interval=60
{{- end}}
{{- end}}{{end}}
`))

var queuesTemplate = template.Must(template.New(QueuesConfFile).Parse(`; Managed by asteriskgui. Manual edits are overwritten.

[general]
persistentmembers=yes
{{- range .}}

[{{.ID}}]
strategy={{.Strategy}}
timeout={{.Timeout}}
wrapuptime={{.WrapupTime}}
maxlen={{.MaxLen}}
servicelevel={{.ServiceLevel}}
musicclass={{.MusicClass}}
announce={{.Announce}}
{{- range .Members}}
member => {{.Interface}},{{.Penalty}},{{.MemberName}}
{{- end}}
{{- end}}
`))

// ConfigGenerator renders the Asterisk config files owned by the console
// into the generated directory.
type ConfigGenerator struct {
	dir string
}

func NewConfigGenerator(dir string) *ConfigGenerator {
	return &ConfigGenerator{dir: dir}
}

func (g *ConfigGenerator) Dir() string {
	return g.dir
}

func RenderPJSIP(accounts []models.SIPAccount, trunks []models.Trunk) ([]byte, error) {
	var buf bytes.Buffer
	err := pjsipTemplate.Execute(&buf, struct {
		Accounts []models.SIPAccount
		Trunks   []models.Trunk
	}{accounts, trunks})
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", PJSIPConfFile, err)
	}
	return buf.Bytes(), nil
}

func RenderQueues(queues []models.Queue) ([]byte, error) {
	var buf bytes.Buffer
	if err := queuesTemplate.Execute(&buf, queues); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", QueuesConfFile, err)
	}
	return buf.Bytes(), nil
}

func (g *ConfigGenerator) WritePJSIP(accounts []models.SIPAccount, trunks []models.Trunk) error {
	data, err := RenderPJSIP(accounts, trunks)
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(g.dir, PJSIPConfFile), data)
}

func (g *ConfigGenerator) WriteQueues(queues []models.Queue) error {
	data, err := RenderQueues(queues)
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(g.dir, QueuesConfFile), data)
}

// writeFileAtomic writes to path.tmp and renames it over path so readers
// never observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
