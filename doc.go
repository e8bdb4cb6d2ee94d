// Package deployhub deploys Java, Python and static Web projects onto
// Docker hosts.
//
// # Overview
//
// DeployHub has two server components:
//   - Center: authenticates operators, keeps the user and agent directories
//     and proxies operator calls to agents
//   - Agent: runs on every Docker host, keeps the projects of that host and
//     executes their deploy pipelines
//
// # Architecture
//
//	┌─────────────────┐
//	│   Operator UI   │
//	└────────┬────────┘
//	         │ Bearer token
//	┌────────▼────────┐  X-User  ┌─────────────────┐
//	│     Center      │─────────►│      Agent      │
//	│  (Echo REST)    │          │  (gorilla/mux)  │
//	└────────┬────────┘          └────────┬────────┘
//	         │                            │
//	┌────────▼────────┐          ┌────────▼────────┐
//	│   JSON stores   │          │ JSON stores +   │
//	│ users, agents   │          │ Docker engine   │
//	└─────────────────┘          └─────────────────┘
//
// Every response, from either component, is the envelope
//
//	{"code": 200, "status": "success", "msg": ..., "data": ...}
//
// # Deploy Pipeline
//
// A deployment runs within the triggering request:
//  1. stage the project directory and its logs/, jars/ or app/ folders
//  2. place the uploaded jar or archive
//  3. write the Dockerfile (Java, Python)
//  4. remove the previous container and image, best effort
//  5. build name:tag and run the supplied docker command
//  6. mark the project deployed and log SUCCESS
//
// A failing build or run step is logged as FAILED in the deploy history
// together with its reason. Web projects stop after step 2.
//
// # Usage
//
// Start the Center:
//
//	deployhub center --config config.yaml
//
// Start an agent on a Docker host:
//
//	deployhub agent --config config.yaml
//
// Issue a token for scripts:
//
//	deployhub token user admin
//
// # Configuration
//
// Configuration can be provided via:
//   - YAML file (config.yaml)
//   - .env file
//   - Environment variables (DH_ prefix)
//
// Example configuration:
//
//	center:
//	  port: 8090
//	agent:
//	  port: 2333
//	  template_dir: ./template
//	storage:
//	  data_dir: ./data
//	security:
//	  jwt_secret: change-me
//	  bootstrap_admin_username: admin
//
// # API Endpoints
//
// Center (/api/deploy-center):
//   - POST   /auth/login                 - Exchange credentials for a token
//   - GET    /2fa/setup/:username        - Bind an authenticator
//   - GET    /user/list                  - List operators
//   - GET    /agent/list                 - List registered agents
//   - POST   /agent/:id/call-api         - Forward a call to an agent
//   - GET    /system-config/list         - List settings
//
// Agent (/api/deploy-agent):
//   - POST   /project/{java|python|web}/add     - Register a project
//   - POST   /project/{java|python|web}/deploy  - Deploy an upload
//   - GET    /deploy-history/list               - Deployment attempts
//   - GET    /docker/containers                 - Containers on the host
//   - GET    /statistics/project-status         - Projects by runtime state
//   - GET    /metrics                           - Prometheus metrics
//
// # Development
//
// Run tests:
//
//	go test ./...
//
// Build the binary:
//
//	go build -o deployhub ./cmd/deployhub
package deployhub
