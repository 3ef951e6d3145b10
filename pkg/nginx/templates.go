package nginx

import (
	"fmt"
	"strings"
	"text/template"
)

// Mode selects which vhost variant is rendered.
type Mode string

const (
	ModeNormal      Mode = "normal"
	ModeMaintenance Mode = "maintenance"
)

// VHost is the input to vhost rendering. Every nginx change re-renders
// the full file from this struct; the previous file is never edited.
type VHost struct {
	Domain         string
	Port           int
	AppType        string
	Mode           Mode
	SSL            bool   // render the 443 server block with the certbot cert paths
	Root           string // document root, static sites and maintenance only
	LogDir         string
	MaintenanceDir string
}

// listenTmpl and redirectTmpl are shared by every vhost variant so a
// re-render never loses the TLS server block once a certificate exists.
const listenTmpl = `{{define "listen"}}
{{- if .SSL}}    listen 443 ssl;
    ssl_certificate /etc/letsencrypt/live/{{.Domain}}/fullchain.pem;
    ssl_certificate_key /etc/letsencrypt/live/{{.Domain}}/privkey.pem;
    include /etc/letsencrypt/options-ssl-nginx.conf;
    ssl_dhparam /etc/letsencrypt/ssl-dhparams.pem;
{{- else}}    listen 80;
{{- end}}{{end}}`

const redirectTmpl = `{{define "redirect"}}{{if .SSL}}
server {
    listen 80;
    server_name {{.Domain}};
    return 301 https://$host$request_uri;
}
{{end}}{{end}}`

const proxyVhostTmpl = `# {{.Title}}: {{.Domain}}
# Managed by webfleet; manual edits will be overwritten.

server {
{{template "listen" .}}
    server_name {{.Domain}};

    access_log {{.LogDir}}/{{.Domain}}-access.log combined;
    error_log {{.LogDir}}/{{.Domain}}-error.log warn;

    limit_req zone=webapp_global burst={{.Burst}} nodelay;

    add_header X-Frame-Options "SAMEORIGIN" always;
    add_header X-Content-Type-Options "nosniff" always;

    location / {
        proxy_pass http://localhost:{{.Port}};
        proxy_http_version 1.1;
        proxy_set_header Upgrade $http_upgrade;
        proxy_set_header Connection 'upgrade';
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
        proxy_set_header X-Forwarded-Host $host;
        proxy_cache_bypass $http_upgrade;

        proxy_buffering on;
        proxy_buffer_size {{.BufferSize}};
        proxy_buffers {{.Buffers}};
        proxy_busy_buffers_size {{.BusyBuffers}};

        proxy_connect_timeout {{.ConnectTimeout}};
        proxy_send_timeout 60s;
        proxy_read_timeout 60s;
    }
{{- range .ExtraLocations}}

    location {{.Path}} {
        proxy_pass http://localhost:{{$.Port}}{{.Path}};
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
    }
{{- end}}

    location /nginx-health {
        access_log off;
        return 200 "nginx healthy\n";
        add_header Content-Type text/plain;
    }

    location ~ /\. {
        deny all;
        access_log off;
        log_not_found off;
    }

    location ~ /(package\.json|package-lock\.json|yarn\.lock|\.env|\.env\..*)$ {
        deny all;
        access_log off;
        log_not_found off;
    }

    client_max_body_size 100M;
    client_body_timeout 60s;
    client_header_timeout 60s;
}
{{template "redirect" .}}`

const staticVhostTmpl = `# Static site: {{.Domain}}
# Managed by webfleet; manual edits will be overwritten.

server {
{{template "listen" .}}
    server_name {{.Domain}};
    root {{.Root}};
    index index.html index.htm;

    access_log {{.LogDir}}/{{.Domain}}-access.log;
    error_log {{.LogDir}}/{{.Domain}}-error.log;

    limit_req zone=webapp_global burst=50 nodelay;

    location / {
        try_files $uri $uri/ =404;
    }

    location ~* \.(js|css|png|jpg|jpeg|gif|ico|svg|woff|woff2|ttf|eot)$ {
        expires 1y;
        add_header Cache-Control "public, immutable";
    }

    location ~ /\. {
        deny all;
        access_log off;
        log_not_found off;
    }
}
{{template "redirect" .}}`

const maintenanceVhostTmpl = `# Maintenance mode: {{.Domain}}
# Managed by webfleet; manual edits will be overwritten.

server {
{{template "listen" .}}
    server_name {{.Domain}};
    root {{.MaintenanceDir}};
    index index.html;

    access_log {{.LogDir}}/{{.Domain}}-access.log combined;
    error_log {{.LogDir}}/{{.Domain}}-error.log warn;

    add_header X-Frame-Options "DENY" always;
    add_header X-Content-Type-Options "nosniff" always;

    location / {
        try_files /index.html =404;
    }

    location ~* \.(html)$ {
        expires 30s;
        add_header Cache-Control "public, must-revalidate, proxy-revalidate";
    }

    location /nginx-health {
        access_log off;
        return 200 "nginx healthy\n";
        add_header Content-Type text/plain;
    }
}
{{template "redirect" .}}`

type proxyParams struct {
	VHost
	Title          string
	Burst          int
	BufferSize     string
	Buffers        string
	BusyBuffers    string
	ConnectTimeout string
	ExtraLocations []extraLocation
}

type extraLocation struct {
	Path string
}

var (
	proxyTemplate       = mustVhostTemplate("proxy", proxyVhostTmpl)
	staticTemplate      = mustVhostTemplate("static", staticVhostTmpl)
	maintenanceTemplate = mustVhostTemplate("maintenance", maintenanceVhostTmpl)
)

func mustVhostTemplate(name, body string) *template.Template {
	t := template.New(name)
	template.Must(t.Parse(listenTmpl))
	template.Must(t.Parse(redirectTmpl))
	return template.Must(t.Parse(body))
}

// Render produces the vhost file contents for v.
func Render(v VHost) (string, error) {
	var b strings.Builder
	var err error

	switch {
	case v.Mode == ModeMaintenance:
		err = maintenanceTemplate.Execute(&b, v)
	case v.AppType == "static":
		err = staticTemplate.Execute(&b, v)
	case v.AppType == "fastapi":
		err = proxyTemplate.Execute(&b, proxyParams{
			VHost:          v,
			Title:          "FastAPI application",
			Burst:          100,
			BufferSize:     "64k",
			Buffers:        "8 64k",
			BusyBuffers:    "128k",
			ConnectTimeout: "30s",
			ExtraLocations: []extraLocation{{Path: "/docs"}, {Path: "/redoc"}},
		})
	case v.AppType == "nextjs":
		err = proxyTemplate.Execute(&b, proxyParams{
			VHost:          v,
			Title:          "Next.js application",
			Burst:          50,
			BufferSize:     "128k",
			Buffers:        "4 256k",
			BusyBuffers:    "256k",
			ConnectTimeout: "60s",
		})
	default:
		err = proxyTemplate.Execute(&b, proxyParams{
			VHost:          v,
			Title:          "Node.js application",
			Burst:          50,
			BufferSize:     "128k",
			Buffers:        "4 256k",
			BusyBuffers:    "256k",
			ConnectTimeout: "60s",
		})
	}
	if err != nil {
		return "", fmt.Errorf("render vhost for %s: %w", v.Domain, err)
	}
	return b.String(), nil
}
