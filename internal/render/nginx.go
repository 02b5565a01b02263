package render

import (
	"fmt"
)

// Fixed workload paths.
const (
	RootPath         = "/web"
	CataloguePath    = RootPath + "/config.json"
	NginxConfigPath  = "/etc/nginx/nginx.conf"
	CertsDir         = "/etc/catalogue/certs"
	ServerCertPath   = CertsDir + "/catalogue.cert.pem"
	PrivateKeyPath   = CertsDir + "/catalogue.key.pem"
	CACertPath       = CertsDir + "/ca.cert"
	HTTPPort         = 80
	HTTPSPort        = 443
	ServiceName      = "catalogue"
	serverErrorPages = "500 502 503 504"
)

var httpService = fmt.Sprintf(`http {
    include            mime.types;
    default_type       application/octet-stream;
    sendfile           on;
    keepalive_timeout  65;

    server {
        listen               %d;
        server_name          localhost;
        root                 %s;

        location /api/ {
            default_type     application/json;
            try_files        $uri $uri.json =404;
        }

        error_page           %s  /50x.html;
        location = /50x.html {
            root             /usr/share/nginx/html;
        }
    }
}
`, HTTPPort, RootPath, serverErrorPages)

var httpsService = fmt.Sprintf(`http {
    include             mime.types;
    default_type        application/octet-stream;
    sendfile            on;
    ssl_session_cache   shared:SSL:10m;
    ssl_session_timeout 10m;

    server {
        listen               %d ssl;
        server_name          localhost;
        keepalive_timeout    70;
        root                 %s;
        ssl_certificate      %s;
        ssl_certificate_key  %s;
        ssl_trusted_certificate %s;
        ssl_protocols        TLSv1.2 TLSv1.3;
        ssl_ciphers          HIGH:!aNULL:!MD5;

        location /api/ {
            default_type     application/json;
            try_files        $uri $uri.json =404;
        }

        error_page           %s  /50x.html;
        location = /50x.html {
            root             /usr/share/nginx/html;
        }
    }
}
`, HTTPSPort, RootPath, ServerCertPath, PrivateKeyPath, CACertPath, serverErrorPages)

// RenderNginx returns the nginx configuration: a plaintext listener on port 80,
// or a TLS listener on port 443 using the certificate files under CertsDir.
func RenderNginx(tls bool) []byte {
	service := httpService
	if tls {
		service = httpsService
	}
	return []byte(fmt.Sprintf("worker_processes  1;\nevents {\n    worker_connections  1024;\n}\n\n%s", service))
}
