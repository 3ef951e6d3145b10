package systemd

import (
	"fmt"
	"strings"
	"text/template"
)

// Unit is the input to service unit rendering.
type Unit struct {
	Domain       string
	AppType      string
	Port         int
	AppDir       string
	EnvFile      string
	StartCommand string
	LogDir       string
}

const unitTmpl = `# Application service: {{.Domain}}
# Managed by webfleet; manual edits will be overwritten.

[Unit]
Description={{.Domain}} application ({{.AppType}})
After=network.target
Wants=network.target

[Service]
Type=simple
User=www-data
Group=www-data
WorkingDirectory={{.AppDir}}

EnvironmentFile={{.EnvFile}}
{{- if eq .AppType "fastapi"}}
Environment=PYTHONPATH={{.AppDir}}
Environment=HOST=0.0.0.0
Environment=ENVIRONMENT=production
Environment=PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin:{{.AppDir}}/.venv/bin
{{- else}}
Environment=NODE_ENV=production
Environment=HOSTNAME=localhost
Environment=PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin:{{.AppDir}}/node_modules/.bin
{{- end}}
Environment=PORT={{.Port}}

ExecStartPre=/bin/sleep 5
{{- if eq .AppType "fastapi"}}
ExecStart=/bin/bash -c 'cd {{.AppDir}} && source .venv/bin/activate && {{.StartCommand}}'
{{- else}}
ExecStart=/bin/bash -c 'cd {{.AppDir}} && {{.StartCommand}}'
{{- end}}
ExecReload=/bin/kill -USR1 $MAINPID
ExecStop=/bin/kill -TERM $MAINPID
KillMode=mixed
KillSignal=SIGTERM
TimeoutStartSec=60
TimeoutStopSec=30

Restart=always
RestartSec=10
StartLimitInterval=120
StartLimitBurst=3

StandardOutput=journal
StandardError=journal
SyslogIdentifier={{.Domain}}

NoNewPrivileges=true
PrivateTmp=true
ProtectSystem=strict
ProtectHome=true
ReadWritePaths={{.AppDir}}
ReadWritePaths={{.LogDir}}
ReadWritePaths=/tmp

LimitNOFILE=65536
LimitNPROC=32768

OOMScoreAdjust=500

[Install]
WantedBy=multi-user.target
`

var unitTemplate = template.Must(template.New("unit").Parse(unitTmpl))

// RenderUnit produces the service file contents for u.
func RenderUnit(u Unit) (string, error) {
	var b strings.Builder
	if err := unitTemplate.Execute(&b, u); err != nil {
		return "", fmt.Errorf("render unit for %s: %w", u.Domain, err)
	}
	return b.String(), nil
}

// UnitName returns the systemd unit name for a domain.
func UnitName(domain string) string {
	return fmt.Sprintf("app-%s.service", domain)
}
