package honeypot

import (
	"fmt"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain/honeypot"
	"github.com/google/uuid"
)

// templates builds the decoy resource set of one kind. Credential decoys
// embed a canary token unique to the honeypot so leaked values can be traced
// back to the engagement.
func templates(kind honeypot.Kind, canary string) []honeypot.Resource {
	switch kind {
	case honeypot.KindDatabase:
		return []honeypot.Resource{
			{
				Path:        "/api/internal/db/schema",
				Method:      "GET",
				ContentType: "application/json",
				Body:        `{"tables":[{"name":"users","columns":["id","email","password_hash","role"]},{"name":"payments","columns":["id","user_id","card_last4","amount"]},{"name":"sessions","columns":["token","user_id","expires_at"]}]}`,
			},
			{
				Path:        "/api/internal/db/users",
				Method:      "GET",
				ContentType: "application/json",
				Body:        `{"rows":[{"id":1,"email":"admin@corp.internal","role":"admin","password_hash":"$2a$10$Q9x1pYVhI6rZ0c8b3Jk2UeN4b7mW1dS5tL0aR8vF2gH6jK3lP9oXy"},{"id":2,"email":"svc-backup@corp.internal","role":"service","password_hash":"$2a$10$7hG2kL9pQ1wE4rT6yU8iOeA3sD5fG7hJ9kL1zX3cV5bN7mQ2wE4rT"}],"total":2}`,
			},
			{
				Path:        "/api/internal/db/query",
				Method:      "POST",
				ContentType: "application/json",
				Body:        `{"status":"ok","rows_affected":0,"rows":[]}`,
			},
		}
	case honeypot.KindResourceExhaustion:
		return []honeypot.Resource{
			{
				Path:        "/api/reports/export",
				Method:      "GET",
				ContentType: "text/csv",
				Body:        "id,account,balance\n1,ACME-001,1045.22\n2,ACME-002,88.10\n",
				DelayMs:     5000,
			},
			{
				Path:        "/api/search/full",
				Method:      "GET",
				ContentType: "application/json",
				Body:        `{"results":[],"next_page":"p2","estimated_total":184223}`,
				DelayMs:     3000,
			},
		}
	case honeypot.KindCredential:
		return []honeypot.Resource{
			{
				Path:        "/.env",
				Method:      "GET",
				ContentType: "text/plain",
				Body:        fmt.Sprintf("DB_HOST=10.12.4.31\nDB_USER=app_rw\nDB_PASSWORD=%s\nAWS_ACCESS_KEY_ID=AKIA%s\n", canary, canary[:12]),
			},
			{
				Path:        "/config/database.yml",
				Method:      "GET",
				ContentType: "application/x-yaml",
				Body:        fmt.Sprintf("production:\n  adapter: postgresql\n  host: db-primary.corp.internal\n  username: deploy\n  password: %s\n", canary),
			},
			{
				Path:        "/backup/credentials.json",
				Method:      "GET",
				ContentType: "application/json",
				Body:        fmt.Sprintf(`{"service_account":"backup@corp.internal","api_token":"%s"}`, canary),
			},
		}
	}
	return nil
}

// resourcesFor returns the decoy set for a deploy. Aggressive deploys carry
// every template, with the requested kind first.
func resourcesFor(kind honeypot.Kind, aggressive bool, canary string) []honeypot.Resource {
	if !aggressive {
		return templates(kind, canary)
	}
	order := []honeypot.Kind{kind}
	for _, k := range []honeypot.Kind{honeypot.KindDatabase, honeypot.KindResourceExhaustion, honeypot.KindCredential} {
		if k != kind {
			order = append(order, k)
		}
	}
	seen := make(map[string]struct{})
	var out []honeypot.Resource
	for _, k := range order {
		for _, r := range templates(k, canary) {
			if _, dup := seen[r.Path]; dup {
				continue
			}
			seen[r.Path] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

var credentialPaths = func() map[string]struct{} {
	paths := make(map[string]struct{})
	for _, r := range templates(honeypot.KindCredential, newCanary()) {
		paths[r.Path] = struct{}{}
	}
	return paths
}()

func isCredentialResource(path string) bool {
	_, ok := credentialPaths[path]
	return ok
}

func newCanary() string {
	return fmt.Sprintf("%x", uuid.New())[:24]
}
